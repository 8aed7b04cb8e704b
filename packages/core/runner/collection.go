package runner

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/abdul-hamid-achik/hitrun/packages/core/aggregator"
	"github.com/abdul-hamid-achik/hitrun/packages/core/fixtures"
	"github.com/abdul-hamid-achik/hitrun/packages/core/messages"
	"github.com/abdul-hamid-achik/hitrun/packages/core/model"
	"github.com/abdul-hamid-achik/hitrun/packages/core/testcontext"
)

func (e *execution) runCollection(ctx context.Context, parent *testcontext.Context, col *model.Collection, assemblyFixtures *fixtures.Manager, parentAgg *aggregator.Aggregator) (summary model.RunSummary) {
	ctx, span := e.tracer.Start(ctx, fmt.Sprintf("collection %s", col.DisplayName),
		trace.WithAttributes(attribute.Bool("hitrun.parallel", !col.DisableParallelization)))
	defer span.End()

	logger := e.logger.With("collection", col.DisplayName)
	start := time.Now()
	ids := collectionIDs(col)
	tctx := parent.ForCollection(col)

	e.queue(messages.TestCollectionStarting{
		CollectionMessage:         messages.NewCollectionMessage(ids),
		TestCollectionDisplayName: col.DisplayName,
		TestCollectionClassName:   col.DefinitionName,
		Traits:                    traitsOf(col.Traits),
	})

	defer func() {
		if r := recover(); r != nil {
			err := aggregator.NewPanicError(r)
			logger.Error("collection runner panicked", "error", err)
			e.reportError(err)
		}
		summary.Time = since(start)
		e.queue(messages.TestCollectionFinished{
			CollectionMessage: messages.NewCollectionMessage(ids),
			ExecutionSummary:  summaryOf(summary),
		})
	}()

	agg := parentAgg.Clone()
	mgr := fixtures.NewManager(fixtures.ScopeCollection, assemblyFixtures)
	mgr.InitializeAsync(testcontext.With(ctx, tctx.WithStage(testcontext.StageInitialization)), col.Fixtures, agg)

	for _, k := range e.orderClasses(col) {
		if ctx.Err() != nil {
			logger.Debug("run cancelled, not starting remaining classes")
			break
		}
		summary.Add(e.runClass(ctx, tctx, k, mgr, agg))
	}

	cleanupCtx := testcontext.With(cleanupContext(ctx), tctx.WithStage(testcontext.StageCleanup))
	if err := disposeScope(cleanupCtx, mgr, agg); err != nil {
		e.queue(messages.TestCollectionCleanupFailure{
			CollectionMessage: messages.NewCollectionMessage(ids),
			ErrorMetadata:     messages.ConvertError(err),
		})
	}
	return summary
}

// disposeScope disposes the fixtures of a finished scope. It returns nil when
// every disposal succeeded; otherwise the scope's earlier errors followed by
// the disposal errors in fixture creation order.
func disposeScope(ctx context.Context, mgr *fixtures.Manager, scopeErrs *aggregator.Aggregator) error {
	cleanup := scopeErrs.Clone()
	prior := len(cleanup.Errors())
	mgr.DisposeAsync(ctx, cleanup)
	if len(cleanup.Errors()) == prior {
		return nil
	}
	return cleanup.ToError()
}

func (e *execution) orderClasses(col *model.Collection) []*model.Class {
	orderer := col.ClassOrderer
	if orderer == nil {
		orderer = model.DefaultClassOrderer{}
	}
	ordered, err := orderer.OrderClasses(col.Classes)
	if err != nil {
		e.reportError(&PipelineError{Scope: col.DisplayName, Msg: fmt.Sprintf("class orderer %T failed", orderer), Err: err})
		return col.Classes
	}
	return ordered
}
