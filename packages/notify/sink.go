package notify

import (
	"context"

	"github.com/abdul-hamid-achik/hitrun/packages/core/messages"
	"github.com/abdul-hamid-achik/hitrun/packages/output"
)

// Sink collects the results of one run, across every plan in it, for a
// single notification.
type Sink struct {
	manager     *Manager
	environment string
	collector   *output.Collector
}

func NewSink(manager *Manager, environment string) *Sink {
	return &Sink{
		manager:     manager,
		environment: environment,
		collector:   output.NewCollector(),
	}
}

func (s *Sink) OnMessage(msg messages.Message) bool {
	return s.collector.OnMessage(msg)
}

// Send notifies about everything collected so far.
func (s *Sink) Send(ctx context.Context) error {
	return s.manager.Notify(ctx, Summarize(s.collector, s.environment))
}

// Summarize condenses collected results into a RunSummary.
func Summarize(c *output.Collector, environment string) *RunSummary {
	totals := c.Totals()
	summary := &RunSummary{
		TotalTests:   totals.TestsTotal,
		PassedTests:  totals.TestsPassed(),
		FailedTests:  totals.TestsFailed,
		SkippedTests: totals.TestsSkipped,
		NotRunTests:  totals.TestsNotRun,
		Duration:     totals.ExecutionTime,
		Environment:  environment,
		Errors:       c.Errors(),
	}

	for _, a := range c.Assemblies() {
		summary.Plans++
		summary.Errors = append(summary.Errors, a.Errors...)
		for _, r := range a.Tests {
			if r.Status != output.StatusFailed {
				continue
			}
			summary.FailedResults = append(summary.FailedResults, FailedTest{
				Name:   r.Class + "." + r.DisplayName,
				File:   r.SourceFile,
				Line:   r.SourceLine,
				Errors: r.Error.Messages,
			})
		}
	}
	return summary
}
