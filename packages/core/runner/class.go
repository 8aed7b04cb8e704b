package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/abdul-hamid-achik/hitrun/packages/core/aggregator"
	"github.com/abdul-hamid-achik/hitrun/packages/core/fixtures"
	"github.com/abdul-hamid-achik/hitrun/packages/core/messages"
	"github.com/abdul-hamid-achik/hitrun/packages/core/model"
	"github.com/abdul-hamid-achik/hitrun/packages/core/testcontext"
)

// classRun is the per-class state every test of the class is built from.
type classRun struct {
	class    *model.Class
	ctor     *model.Constructor
	fixtures *fixtures.Manager
	// args holds the resolved fixture arguments; per-test roles are left
	// nil and bound in argsFor.
	args []any
}

func (e *execution) runClass(ctx context.Context, parent *testcontext.Context, k *model.Class, collectionFixtures *fixtures.Manager, parentAgg *aggregator.Aggregator) (summary model.RunSummary) {
	ctx, span := e.tracer.Start(ctx, fmt.Sprintf("class %s", k.Name))
	defer span.End()

	logger := e.logger.With("class", k.Name)
	start := time.Now()
	ids := classIDs(k)
	tctx := parent.ForClass(k)

	e.queue(messages.TestClassStarting{
		ClassMessage:  messages.NewClassMessage(ids),
		TestClassName: k.Name,
		Traits:        traitsOf(k.Traits),
	})

	defer func() {
		if r := recover(); r != nil {
			err := aggregator.NewPanicError(r)
			logger.Error("class runner panicked", "error", err)
			e.reportError(err)
		}
		summary.Time = since(start)
		e.queue(messages.TestClassFinished{
			ClassMessage:     messages.NewClassMessage(ids),
			ExecutionSummary: summaryOf(summary),
		})
	}()

	agg := parentAgg.Clone()
	run := &classRun{
		class:    k,
		fixtures: fixtures.NewManager(fixtures.ScopeClass, collectionFixtures),
	}

	for _, err := range validateClass(k) {
		logger.Error("invalid test class", "error", err)
		agg.Add(err)
	}
	if !agg.HasErrors() {
		run.ctor = k.Constructors[0]

		var defs []fixtures.Definition
		if k.Collection != nil {
			defs = append(defs, k.Collection.ClassFixtures...)
		}
		defs = append(defs, k.ClassFixtures...)
		run.fixtures.InitializeAsync(testcontext.With(ctx, tctx.WithStage(testcontext.StageInitialization)), defs, agg)
	}
	if !agg.HasErrors() {
		if err := run.resolveArguments(); err != nil {
			agg.Add(err)
		}
	}

	cases, err := e.orderCases(k)
	if err != nil {
		logger.Error("test case orderer failed", "error", err)
		e.reportError(err)
	} else {
		for _, group := range groupByMethod(cases) {
			if ctx.Err() != nil {
				break
			}
			summary.Add(e.runMethod(ctx, tctx, group.method, group.cases, run, agg))
		}
	}

	cleanupCtx := testcontext.With(cleanupContext(ctx), tctx.WithStage(testcontext.StageCleanup))
	if err := disposeScope(cleanupCtx, run.fixtures, agg); err != nil {
		e.queue(messages.TestClassCleanupFailure{
			ClassMessage:  messages.NewClassMessage(ids),
			ErrorMetadata: messages.ConvertError(err),
		})
	}
	return summary
}

func validateClass(k *model.Class) []error {
	var errs []error
	switch n := len(k.Constructors); {
	case n == 0:
		errs = append(errs, newPipelineError(k.Name, "Test class %s does not define a public constructor", k.Name))
	case n > 1:
		errs = append(errs, newPipelineError(k.Name, "A test class may only define a single public constructor (%s defines %d)", k.Name, n))
	}
	if len(k.CollectionFixtures) > 0 {
		errs = append(errs, newPipelineError(k.Name, "Test class %s may not declare collection fixtures; declare them on the collection definition instead", k.Name))
	}
	return errs
}

// resolveArguments looks up every fixture parameter once for the class.
// Context and output parameters are bound per test.
func (run *classRun) resolveArguments() error {
	params := run.ctor.Params
	run.args = make([]any, len(params))

	var missing []model.Parameter
	for i, p := range params {
		switch p.Role {
		case model.RoleContextAccessor, model.RoleOutputHelper:
			continue
		case model.RoleFixture:
			if p.Type != nil {
				if v, ok := run.fixtures.GetFixture(p.Type); ok {
					run.args[i] = v
					continue
				}
			}
		}
		if p.Optional {
			run.args[i] = p.Default
			continue
		}
		missing = append(missing, p)
	}
	if len(missing) > 0 {
		return missingParametersError(run.class.Name, missing)
	}
	return nil
}

// argsFor returns the constructor arguments for one test.
func (run *classRun) argsFor(tctx *testcontext.Context) []any {
	args := make([]any, len(run.args))
	copy(args, run.args)
	for i, p := range run.ctor.Params {
		switch p.Role {
		case model.RoleContextAccessor:
			args[i] = tctx
		case model.RoleOutputHelper:
			args[i] = tctx.Output()
		}
	}
	return args
}

func (e *execution) orderCases(k *model.Class) ([]*model.TestCase, error) {
	orderer := k.Orderer
	if orderer == nil && k.Collection != nil {
		orderer = k.Collection.TestCaseOrderer
	}
	if orderer == nil {
		orderer = e.opts.TestCaseOrderer
	}

	var ordered []*model.TestCase
	err := aggregator.Try(func() error {
		var err error
		ordered, err = orderer.OrderTestCases(k.TestCases())
		return err
	})
	if err != nil {
		return nil, &PipelineError{Scope: k.Name, Msg: fmt.Sprintf("Test case orderer %T failed while ordering %s", orderer, k.Name), Err: err}
	}
	return ordered, nil
}

type methodGroup struct {
	method *model.Method
	cases  []*model.TestCase
}

// groupByMethod groups cases by method in order of first appearance.
func groupByMethod(cases []*model.TestCase) []methodGroup {
	var groups []methodGroup
	index := make(map[*model.Method]int)
	for _, tc := range cases {
		i, ok := index[tc.Method]
		if !ok {
			i = len(groups)
			index[tc.Method] = i
			groups = append(groups, methodGroup{method: tc.Method})
		}
		groups[i].cases = append(groups[i].cases, tc)
	}
	return groups
}
