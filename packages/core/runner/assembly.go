package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/abdul-hamid-achik/hitrun/packages/core/aggregator"
	"github.com/abdul-hamid-achik/hitrun/packages/core/fixtures"
	"github.com/abdul-hamid-achik/hitrun/packages/core/messages"
	"github.com/abdul-hamid-achik/hitrun/packages/core/model"
	"github.com/abdul-hamid-achik/hitrun/packages/core/testcontext"
)

func (e *execution) runAssembly(ctx context.Context, a *model.Assembly) (summary model.RunSummary) {
	ctx, span := e.tracer.Start(ctx, fmt.Sprintf("assembly %s", a.Name),
		trace.WithAttributes(attribute.String("hitrun.run_id", e.runID)))
	defer span.End()

	logger := e.logger.With("assembly", a.Name)
	start := time.Now()
	ids := messages.IDs{Assembly: a.UniqueID}
	tctx := e.root.ForAssembly(a)

	e.queue(messages.TestAssemblyStarting{
		AssemblyMessage:          messages.NewAssemblyMessage(ids),
		AssemblyName:             a.Name,
		AssemblyPath:             a.Path,
		ConfigFilePath:           a.ConfigPath,
		RunID:                    e.runID,
		Seed:                     e.opts.Seed,
		StartTime:                start,
		TestEnvironment:          e.opts.Environment,
		TestFrameworkDisplayName: FrameworkDisplayName,
		Traits:                   traitsOf(a.Traits),
	})
	logger.Debug("assembly starting", "collections", len(a.Collections))

	// Finished must be emitted even if something below panics.
	defer func() {
		if r := recover(); r != nil {
			err := aggregator.NewPanicError(r)
			logger.Error("assembly runner panicked", "error", err)
			e.reportError(err)
		}
		summary.Time = since(start)
		e.queue(messages.TestAssemblyFinished{
			AssemblyMessage:  messages.NewAssemblyMessage(ids),
			ExecutionSummary: summaryOf(summary),
			FinishTime:       time.Now(),
		})
		span.SetAttributes(
			attribute.Int("hitrun.tests.total", summary.Total),
			attribute.Int("hitrun.tests.failed", summary.Failed),
		)
		logger.Debug("assembly finished", "total", summary.Total, "failed", summary.Failed)
	}()

	agg := aggregator.New()
	mgr := fixtures.NewManager(fixtures.ScopeAssembly, nil)
	initCtx := testcontext.With(ctx, tctx.WithStage(testcontext.StageInitialization))
	mgr.InitializeAsync(initCtx, a.Fixtures, agg)
	if agg.HasErrors() {
		logger.Warn("assembly fixtures failed to initialize", "error", agg.ToError())
	}

	summary = e.runCollections(ctx, tctx, a, mgr, agg)

	cleanupCtx := testcontext.With(cleanupContext(ctx), tctx.WithStage(testcontext.StageCleanup))
	if err := disposeScope(cleanupCtx, mgr, agg); err != nil {
		e.queue(messages.TestAssemblyCleanupFailure{
			AssemblyMessage: messages.NewAssemblyMessage(ids),
			ErrorMetadata:   messages.ConvertError(err),
		})
	}
	return summary
}

func (e *execution) orderCollections(a *model.Assembly) []*model.Collection {
	orderer := a.CollectionOrderer
	if orderer == nil {
		orderer = model.DefaultCollectionOrderer{}
	}
	ordered, err := orderer.OrderCollections(a.Collections)
	if err != nil {
		e.reportError(&PipelineError{Scope: a.Name, Msg: fmt.Sprintf("collection orderer %T failed", orderer), Err: err})
		return a.Collections
	}
	return ordered
}

// runCollections schedules parallel collections first and runs the remaining
// ones serially afterwards.
func (e *execution) runCollections(ctx context.Context, tctx *testcontext.Context, a *model.Assembly, mgr *fixtures.Manager, agg *aggregator.Aggregator) model.RunSummary {
	var parallel, serial []*model.Collection
	for _, col := range e.orderCollections(a) {
		if e.opts.DisableParallelization || col.DisableParallelization {
			serial = append(serial, col)
		} else {
			parallel = append(parallel, col)
		}
	}

	e.internalDiagnostic("scheduling %d parallel and %d serial collections (algorithm = %s, max threads = %d)",
		len(parallel), len(serial), e.opts.ParallelAlgorithm, e.opts.threads())

	var (
		mu      sync.Mutex
		summary model.RunSummary
	)

	if len(parallel) > 0 {
		var g errgroup.Group
		if n := e.opts.threads(); n > 0 && e.opts.ParallelAlgorithm == Conservative {
			g.SetLimit(n)
		}
		for _, col := range parallel {
			col := col
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				s := e.runCollection(ctx, tctx, col, mgr, agg)
				mu.Lock()
				summary.Add(s)
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
	}

	for _, col := range serial {
		if ctx.Err() != nil {
			break
		}
		summary.Add(e.runCollection(ctx, tctx, col, mgr, agg))
	}
	return summary
}
