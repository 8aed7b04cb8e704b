package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/abdul-hamid-achik/hitrun/packages/core/aggregator"
	"github.com/abdul-hamid-achik/hitrun/packages/core/messages"
	"github.com/abdul-hamid-achik/hitrun/packages/core/model"
	"github.com/abdul-hamid-achik/hitrun/packages/core/testcontext"
)

func (e *execution) runMethod(ctx context.Context, parent *testcontext.Context, m *model.Method, cases []*model.TestCase, run *classRun, parentAgg *aggregator.Aggregator) (summary model.RunSummary) {
	ctx, span := e.tracer.Start(ctx, fmt.Sprintf("method %s", m.Name))
	defer span.End()

	start := time.Now()
	ids := methodIDs(m)
	tctx := parent.ForMethod(m)

	e.queue(messages.TestMethodStarting{
		MethodMessage: messages.NewMethodMessage(ids),
		MethodName:    m.Name,
		Traits:        traitsOf(m.Traits),
	})

	defer func() {
		if r := recover(); r != nil {
			err := aggregator.NewPanicError(r)
			e.logger.Error("method runner panicked", "method", m.Name, "error", err)
			e.reportError(err)
		}
		summary.Time = since(start)
		e.queue(messages.TestMethodFinished{
			MethodMessage:    messages.NewMethodMessage(ids),
			ExecutionSummary: summaryOf(summary),
		})
	}()

	agg := parentAgg.Clone()
	for _, tc := range cases {
		if ctx.Err() != nil {
			break
		}
		summary.Add(e.runTestCase(ctx, tctx, tc, run, agg))
	}
	return summary
}
