package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/abdul-hamid-achik/hitrun/packages/core/aggregator"
	"github.com/abdul-hamid-achik/hitrun/packages/core/lifetime"
	"github.com/abdul-hamid-achik/hitrun/packages/core/messages"
	"github.com/abdul-hamid-achik/hitrun/packages/core/model"
	"github.com/abdul-hamid-achik/hitrun/packages/core/testcontext"
)

type outcome int

const (
	outcomePassed outcome = iota
	outcomeFailed
	outcomeSkipped
	outcomeNotRun
)

type testResult struct {
	outcome    outcome
	err        error
	skipReason string
	output     string
	warnings   []string
	elapsed    time.Duration
}

// FailSkipError replaces a skip when skipped tests are configured to fail.
type FailSkipError struct {
	Reason string
}

func (e *FailSkipError) Error() string {
	return e.Reason
}

func (e *execution) runTest(ctx context.Context, parent *testcontext.Context, test *model.Test, run *classRun, agg *aggregator.Aggregator) model.RunSummary {
	tc := test.Case
	base := messages.NewTestMessage(testIDs(test))

	e.queue(messages.TestStarting{
		TestMessage:     base,
		TestDisplayName: test.DisplayName,
		Explicit:        tc.Explicit,
		StartTime:       time.Now(),
		Timeout:         tc.Timeout,
		Traits:          traitsOf(tc.AllTraits()),
	})

	res := e.executeTest(ctx, parent, test, run, agg)
	return e.reportResult(base, res)
}

func (e *execution) notRun(tc *model.TestCase) bool {
	switch e.opts.Explicit {
	case ExplicitOff:
		return tc.Explicit
	case ExplicitOnly:
		return !tc.Explicit
	}
	return false
}

func (e *execution) executeTest(ctx context.Context, parent *testcontext.Context, test *model.Test, run *classRun, agg *aggregator.Aggregator) testResult {
	tc := test.Case

	if agg.HasErrors() {
		return testResult{outcome: outcomeFailed, err: agg.ToError()}
	}
	if e.notRun(tc) {
		return testResult{outcome: outcomeNotRun}
	}
	if tc.SkipReason != "" {
		return testResult{outcome: outcomeSkipped, skipReason: tc.SkipReason}
	}
	if tc.SkipFunc != nil {
		var reason string
		err := aggregator.Try(func() error {
			var err error
			reason, err = tc.SkipFunc(testcontext.With(ctx, parent))
			return err
		})
		if err != nil {
			return testResult{outcome: outcomeFailed, err: &DiscoveryError{Err: aggregator.Normalize(err)}}
		}
		if reason != "" {
			return testResult{outcome: outcomeSkipped, skipReason: reason}
		}
	}
	return e.invokeTest(ctx, parent, test, run)
}

// invokeTest constructs the class, runs the body and disposes the instance.
func (e *execution) invokeTest(ctx context.Context, parent *testcontext.Context, test *model.Test, run *classRun) testResult {
	start := time.Now()
	base := messages.NewTestMessage(testIDs(test))

	testCtx, cancelTest := context.WithCancel(ctx)
	defer cancelTest()

	output := testcontext.NewOutputHelper(func(text string) {
		e.queue(messages.TestOutput{TestMessage: base, Output: text})
	})
	tctx := parent.ForTest(test, output, cancelTest)
	bodyCtx := testcontext.With(testCtx, tctx)

	if e.watchdog != nil {
		e.watchdog.begin(test)
		defer e.watchdog.end(test)
	}

	agg := aggregator.New()
	var skipReason string

	if instance, ok := e.construct(bodyCtx, tctx, base, run, agg); ok {
		tctx.SetTestState(testcontext.TestRunning)
		err := e.invokeBody(bodyCtx, cancelTest, test, instance)
		if reason, skipped := testcontext.AsSkip(err); skipped {
			skipReason = reason
		} else {
			agg.Add(err)
		}

		tctx.SetTestState(testcontext.TestDisposing)
		disposeAgg := aggregator.New()
		e.disposeInstance(cleanupContext(bodyCtx), base, instance, disposeAgg)
		if disposeAgg.HasErrors() {
			agg.Add(&aggregator.AggregateError{Errs: disposeAgg.Errors()})
		}
	}
	tctx.SetTestState(testcontext.TestFinished)

	res := testResult{
		output:   output.Output(),
		warnings: tctx.Warnings(),
		elapsed:  since(start),
	}
	switch {
	case agg.HasErrors():
		res.outcome = outcomeFailed
		res.err = agg.ToError()
	case skipReason != "":
		res.outcome = outcomeSkipped
		res.skipReason = skipReason
	default:
		res.outcome = outcomePassed
	}
	return res
}

func (e *execution) construct(ctx context.Context, tctx *testcontext.Context, base messages.TestMessage, run *classRun, agg *aggregator.Aggregator) (any, bool) {
	tctx.SetTestState(testcontext.TestConstructing)
	e.queue(messages.TestClassConstructionStarting{TestMessage: base})

	var instance any
	agg.Run(func() error {
		if run.ctor.New == nil {
			return nil
		}
		v, err := run.ctor.New(ctx, run.argsFor(tctx))
		instance = v
		return err
	})

	e.queue(messages.TestClassConstructionFinished{TestMessage: base})
	return instance, !agg.HasErrors()
}

// invokeBody runs the test method and waits for it according to its return
// kind and timeout.
func (e *execution) invokeBody(ctx context.Context, cancel context.CancelFunc, test *model.Test, instance any) error {
	tc := test.Case
	m := tc.Method

	switch {
	case m.Returns == model.ReturnsFireAndForget:
		return errAsyncVoid
	case tc.Timeout > 0 && m.Returns == model.ReturnsNothing:
		return errSyncTimeout
	case m.Invoke == nil:
		return fmt.Errorf("test method %s has no body", m.Name)
	}

	var task model.Task
	err := aggregator.Try(func() error {
		var err error
		task, err = m.Invoke(ctx, instance, tc.Args)
		return err
	})
	if err != nil || m.Returns == model.ReturnsNothing || task == nil {
		return err
	}
	if !task.Started() {
		return errNonStartedTask
	}

	if tc.Timeout <= 0 {
		<-task.Done()
		return task.Err()
	}

	timer := time.NewTimer(time.Duration(tc.Timeout) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-task.Done():
		return task.Err()
	case <-timer.C:
		cancel()
		return &TimeoutError{Milliseconds: tc.Timeout}
	}
}

func (e *execution) disposeInstance(ctx context.Context, base messages.TestMessage, instance any, agg *aggregator.Aggregator) {
	if instance == nil || !lifetime.IsDisposable(instance) {
		return
	}
	e.queue(messages.TestClassDisposeStarting{TestMessage: base})
	agg.RunContext(ctx, func(ctx context.Context) error {
		return lifetime.Dispose(ctx, instance)
	})
	e.queue(messages.TestClassDisposeFinished{TestMessage: base})
}

// reportResult emits the terminal messages of a test.
func (e *execution) reportResult(base messages.TestMessage, res testResult) model.RunSummary {
	if res.outcome == outcomeSkipped && e.opts.FailSkips {
		res.outcome = outcomeFailed
		res.err = &FailSkipError{Reason: res.skipReason}
	}

	result := messages.TestResultMessage{
		TestMessage:   base,
		ExecutionTime: res.elapsed,
		FinishTime:    time.Now(),
		Output:        res.output,
		Warnings:      res.warnings,
	}
	summary := model.RunSummary{Total: 1, Time: res.elapsed}

	switch res.outcome {
	case outcomeFailed:
		summary.Failed = 1
		e.queue(messages.TestFailed{
			TestResultMessage: result,
			ErrorMetadata:     messages.ConvertError(res.err),
			Cause:             messages.CauseOf(res.err),
		})
	case outcomeSkipped:
		summary.Skipped = 1
		e.queue(messages.TestSkipped{TestResultMessage: result, Reason: res.skipReason})
	case outcomeNotRun:
		summary.NotRun = 1
		e.queue(messages.TestNotRun{TestResultMessage: result})
	default:
		e.queue(messages.TestPassed{TestResultMessage: result})
	}

	e.queue(messages.TestFinished{TestResultMessage: result})
	return summary
}
