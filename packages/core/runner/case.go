package runner

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/abdul-hamid-achik/hitrun/packages/core/aggregator"
	"github.com/abdul-hamid-achik/hitrun/packages/core/lifetime"
	"github.com/abdul-hamid-achik/hitrun/packages/core/messages"
	"github.com/abdul-hamid-achik/hitrun/packages/core/model"
	"github.com/abdul-hamid-achik/hitrun/packages/core/testcontext"
)

func (e *execution) runTestCase(ctx context.Context, parent *testcontext.Context, tc *model.TestCase, run *classRun, parentAgg *aggregator.Aggregator) (summary model.RunSummary) {
	if e.testSlots != nil {
		if err := e.testSlots.Acquire(ctx, 1); err != nil {
			return summary
		}
		defer e.testSlots.Release(1)
	}

	ctx, span := e.tracer.Start(ctx, fmt.Sprintf("case %s", tc.DisplayName),
		trace.WithAttributes(attribute.String("hitrun.test_case_id", tc.UniqueID)))
	defer span.End()

	start := time.Now()
	ids := caseIDs(tc)
	tctx := parent.ForTestCase(tc)

	var className, methodName string
	if m := tc.Method; m != nil {
		methodName = m.Name
		if m.Class != nil {
			className = m.Class.Name
		}
	}

	e.queue(messages.TestCaseStarting{
		TestCaseMessage:     messages.NewTestCaseMessage(ids),
		TestCaseDisplayName: tc.DisplayName,
		TestClassName:       className,
		TestMethodName:      methodName,
		Explicit:            tc.Explicit,
		SkipReason:          tc.SkipReason,
		SourceFilePath:      tc.SourceFile,
		SourceLineNumber:    tc.SourceLine,
		Traits:              traitsOf(tc.AllTraits()),
	})

	defer func() {
		if r := recover(); r != nil {
			err := aggregator.NewPanicError(r)
			e.logger.Error("test case runner panicked", "test_case", tc.DisplayName, "error", err)
			e.reportError(err)
		}
		if summary.Time <= 0 {
			summary.Time = since(start)
		}
		e.queue(messages.TestCaseFinished{
			TestCaseMessage:  messages.NewTestCaseMessage(ids),
			ExecutionSummary: summaryOf(summary),
		})
		span.SetAttributes(attribute.Int("hitrun.tests.failed", summary.Failed))
	}()

	summary = e.runTest(ctx, tctx, model.NewTest(tc, 0), run, parentAgg)

	cleanup := aggregator.New()
	cleanupCtx := testcontext.With(cleanupContext(ctx), tctx.WithStage(testcontext.StageCleanup))
	for _, arg := range tc.Args {
		if lifetime.IsDisposable(arg) {
			cleanup.RunContext(cleanupCtx, func(ctx context.Context) error {
				return lifetime.Dispose(ctx, arg)
			})
		}
	}
	if cleanup.HasErrors() {
		e.queue(messages.TestCaseCleanupFailure{
			TestCaseMessage: messages.NewTestCaseMessage(ids),
			ErrorMetadata:   messages.ConvertError(cleanup.ToError()),
		})
	}
	return summary
}
