package runner

import (
	"fmt"
	"strings"

	"github.com/abdul-hamid-achik/hitrun/packages/core/model"
)

// PipelineError is a configuration problem detected by a scope before any
// test ran. It fails every test below the scope.
type PipelineError struct {
	Scope string
	Msg   string
	Err   error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

func newPipelineError(scope, format string, args ...any) *PipelineError {
	return &PipelineError{Scope: scope, Msg: fmt.Sprintf(format, args...)}
}

// TimeoutError is reported when a test does not finish within its timeout.
type TimeoutError struct {
	Milliseconds int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("Test execution timed out after %d milliseconds", e.Milliseconds)
}

func (e *TimeoutError) IsTimeout() bool {
	return true
}

// DiscoveryError wraps a failure of a case's skip accessor.
type DiscoveryError struct {
	Err error
}

func (e *DiscoveryError) Error() string {
	return "Exception during discovery:\n" + e.Err.Error()
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// TestMethodError reports a test method whose shape cannot be executed.
type TestMethodError struct {
	Msg string
}

func (e *TestMethodError) Error() string {
	return e.Msg
}

var (
	errNonStartedTask = &TestMethodError{Msg: "Test method returned a non-started Task (tasks must be started before being returned)"}
	errSyncTimeout    = &TestMethodError{Msg: "Tests marked with Timeout are only supported for async tests"}
	errAsyncVoid      = &TestMethodError{Msg: "Tests marked as 'async void' are no longer supported. Please convert to 'async Task' or 'async ValueTask'."}
)

func missingParametersError(class string, params []model.Parameter) *PipelineError {
	parts := make([]string, len(params))
	for i, p := range params {
		parts[i] = p.TypeName() + " " + p.Name
	}
	return newPipelineError(class, "The following constructor parameters did not have matching fixture data: %s", strings.Join(parts, ", "))
}
