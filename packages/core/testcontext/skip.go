package testcontext

import (
	"errors"
	"fmt"
)

// SkipError requests that the running test be reported as skipped.
type SkipError struct {
	Reason string
}

func (e *SkipError) Error() string {
	return "test skipped: " + e.Reason
}

// Skip returns a SkipError for the test body to return.
func Skip(reason string) error {
	return &SkipError{Reason: reason}
}

// Skipf is Skip with a formatted reason.
func Skipf(format string, args ...any) error {
	return Skip(fmt.Sprintf(format, args...))
}

// SkipNow aborts the test body immediately. The engine recovers the panic and
// reports the test as skipped.
func SkipNow(reason string) {
	panic(&SkipError{Reason: reason})
}

// SkipUnless skips when cond is false.
func SkipUnless(cond bool, reason string) {
	if !cond {
		SkipNow(reason)
	}
}

// SkipWhen skips when cond is true.
func SkipWhen(cond bool, reason string) {
	if cond {
		SkipNow(reason)
	}
}

// AsSkip reports whether err carries a skip request and returns its reason.
func AsSkip(err error) (string, bool) {
	var se *SkipError
	if errors.As(err, &se) {
		return se.Reason, true
	}
	return "", false
}
