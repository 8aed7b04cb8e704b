package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/abdul-hamid-achik/hitrun/packages/core/bus"
	"github.com/abdul-hamid-achik/hitrun/packages/core/messages"
	"github.com/abdul-hamid-achik/hitrun/packages/core/model"
	"github.com/abdul-hamid-achik/hitrun/packages/core/testcontext"
)

// Runner executes test assemblies.
type Runner struct {
	opts   *Options
	logger *slog.Logger
	tracer trace.Tracer
}

// NewRunner returns a runner. A nil opts uses the defaults.
func NewRunner(opts *Options) *Runner {
	o := opts.withDefaults()
	return &Runner{
		opts:   o,
		logger: o.Logger.With("component", "runner"),
		tracer: o.Tracer,
	}
}

// Result is what a run produced.
type Result struct {
	RunID   string
	Summary model.RunSummary
	// Stopped is true when the sink or stop-on-fail ended the run early.
	Stopped bool
}

// execution holds the state shared by every scope of one run.
type execution struct {
	*Runner
	bus    *bus.MessageBus
	cancel context.CancelFunc
	root   *testcontext.Context
	runID  string

	// testSlots limits concurrently running tests with the aggressive
	// algorithm. Nil otherwise.
	testSlots *semaphore.Weighted
	watchdog  *watchdog
}

// Run executes assembly and reports every message to sink. It only returns
// an error when the run could not start; test failures are reported through
// the sink and the summary.
func (r *Runner) Run(ctx context.Context, assembly *model.Assembly, sink messages.Sink) (*Result, error) {
	if assembly == nil {
		return nil, errors.New("no assembly to run")
	}
	if sink == nil {
		return nil, errors.New("no message sink")
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	e := &execution{
		Runner: r,
		bus:    bus.New(sink, bus.WithStopOnFail(r.opts.StopOnFail), bus.WithLogger(r.opts.Logger)),
		cancel: cancel,
		runID:  uuid.NewString(),
	}
	defer e.bus.Close()

	e.root = testcontext.New(testcontext.NewStore(), e.diagnostic)
	if r.opts.ParallelAlgorithm == Aggressive && !r.opts.DisableParallelization {
		if n := r.opts.threads(); n > 0 {
			e.testSlots = semaphore.NewWeighted(int64(n))
		}
	}
	if r.opts.LongRunningTestTime > 0 {
		e.watchdog = newWatchdog(r.opts.LongRunningTestTime, e.diagnostic)
		stop := e.watchdog.start()
		defer stop()
	}

	summary := e.runAssembly(runCtx, assembly)
	return &Result{RunID: e.runID, Summary: summary, Stopped: e.bus.Stopped()}, nil
}

// queue delivers msg and cancels the run when the bus says stop.
func (e *execution) queue(msg messages.Message) bool {
	cont, err := e.bus.QueueMessage(msg)
	if err != nil {
		e.logger.Warn("message dropped", "message", msg.MessageType(), "error", err)
		return false
	}
	if !cont {
		e.cancel()
	}
	return cont
}

func (e *execution) diagnostic(msg string) {
	e.queue(messages.DiagnosticMessage{Message: msg})
}

func (e *execution) internalDiagnostic(format string, args ...any) {
	if !e.opts.InternalDiagnostics {
		return
	}
	e.queue(messages.InternalDiagnosticMessage{Message: fmt.Sprintf(format, args...)})
}

// reportError emits an ErrorMessage for a failure that belongs to no test.
func (e *execution) reportError(err error) {
	e.queue(messages.ErrorMessage{ErrorMetadata: messages.ConvertError(err)})
}

// cleanupContext returns a context for teardown that ignores run
// cancellation.
func cleanupContext(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

func summaryOf(s model.RunSummary) messages.ExecutionSummary {
	return messages.ExecutionSummary{
		TestsTotal:    s.Total,
		TestsFailed:   s.Failed,
		TestsSkipped:  s.Skipped,
		TestsNotRun:   s.NotRun,
		ExecutionTime: s.Time,
	}
}

func traitsOf(t model.Traits) messages.Traits {
	if len(t) == 0 {
		return nil
	}
	return messages.Traits(t)
}

// since returns the elapsed time, never zero once work has run.
func since(start time.Time) time.Duration {
	d := time.Since(start)
	if d <= 0 {
		d = time.Nanosecond
	}
	return d
}

func collectionIDs(col *model.Collection) messages.IDs {
	ids := messages.IDs{Collection: col.UniqueID}
	if col.Assembly != nil {
		ids.Assembly = col.Assembly.UniqueID
	}
	return ids
}

func classIDs(k *model.Class) messages.IDs {
	var ids messages.IDs
	if k.Collection != nil {
		ids = collectionIDs(k.Collection)
	}
	ids.Class = k.UniqueID
	return ids
}

func methodIDs(m *model.Method) messages.IDs {
	var ids messages.IDs
	if m.Class != nil {
		ids = classIDs(m.Class)
	}
	ids.Method = m.UniqueID
	return ids
}

func caseIDs(tc *model.TestCase) messages.IDs {
	var ids messages.IDs
	if tc.Method != nil {
		ids = methodIDs(tc.Method)
	}
	ids.TestCase = tc.UniqueID
	return ids
}

func testIDs(t *model.Test) messages.IDs {
	ids := caseIDs(t.Case)
	ids.Test = t.UniqueID
	return ids
}
