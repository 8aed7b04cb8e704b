package history

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/abdul-hamid-achik/hitrun/packages/core/messages"
	"github.com/abdul-hamid-achik/hitrun/packages/output"
)

// Sink saves every finished assembly to a Store.
type Sink struct {
	ctx       context.Context
	store     *Store
	logger    *slog.Logger
	collector *output.Collector

	mu   sync.Mutex
	errs []error
}

func NewSink(ctx context.Context, store *Store, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{
		ctx:       ctx,
		store:     store,
		logger:    logger.With("component", "history"),
		collector: output.NewCollector(),
	}
}

// OnMessage implements messages.Sink. A failed save is logged and reported
// by Err; it never stops the run.
func (s *Sink) OnMessage(msg messages.Message) bool {
	s.collector.OnMessage(msg)

	finished, ok := msg.(messages.TestAssemblyFinished)
	if !ok {
		return true
	}
	for _, a := range s.collector.Assemblies() {
		if a.UniqueID != finished.AssemblyUniqueID {
			continue
		}
		run, tests := record(a)
		if err := s.store.SaveRun(s.ctx, run, tests); err != nil {
			s.logger.Error("failed to record run", "run", run.ID, "error", err)
			s.mu.Lock()
			s.errs = append(s.errs, err)
			s.mu.Unlock()
			continue
		}
		s.logger.Debug("recorded run", "run", run.ID, "tests", len(tests))
	}
	return true
}

// Err returns the save errors seen so far.
func (s *Sink) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Join(s.errs...)
}

func record(a *output.AssemblyResult) (Run, []TestRecord) {
	run := Run{
		ID:        a.RunID,
		Assembly:  a.Name,
		Path:      a.Path,
		StartedAt: a.StartTime,
		Duration:  a.Summary.ExecutionTime,
		Total:     a.Summary.TestsTotal,
		Failed:    a.Summary.TestsFailed,
		Skipped:   a.Summary.TestsSkipped,
		NotRun:    a.Summary.TestsNotRun,
	}
	if run.ID == "" {
		run.ID = a.UniqueID
	}

	tests := make([]TestRecord, 0, len(a.Tests))
	for _, r := range a.Tests {
		tests = append(tests, TestRecord{
			Collection: r.Collection,
			Class:      r.Class,
			Name:       r.DisplayName,
			Status:     string(r.Status),
			Cause:      string(r.Cause),
			Message:    r.ErrorMessage(),
			Duration:   r.Duration,
		})
	}
	return run, tests
}
