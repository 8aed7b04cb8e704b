package aggregator

import (
	"fmt"
	"runtime/debug"
	"strings"
)

// AggregateHeader is the message prefix of every AggregateError.
const AggregateHeader = "One or more errors occurred."

// AggregateError is the composite produced when more than one error was
// captured.
type AggregateError struct {
	Errs []error
}

func (e *AggregateError) Error() string {
	var sb strings.Builder
	sb.WriteString(AggregateHeader)
	for _, err := range e.Errs {
		sb.WriteString(" (")
		sb.WriteString(err.Error())
		sb.WriteString(")")
	}
	return sb.String()
}

func (e *AggregateError) Unwrap() []error {
	return e.Errs
}

// InvocationError wraps an error surfaced through a reflective or indirect
// invocation of user code. It carries no information of its own and is
// removed by Normalize.
type InvocationError struct {
	Err error
}

func (e *InvocationError) Error() string {
	return "error invoking target: " + e.Err.Error()
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}

// PanicError records a recovered panic.
type PanicError struct {
	Value any
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// StackTrace returns the stack of the goroutine that panicked.
func (e *PanicError) StackTrace() string {
	return e.Stack
}

// Unwrap exposes the panic value when it was itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// NewPanicError converts a recovered value into a PanicError capturing the
// current stack.
func NewPanicError(v any) *PanicError {
	return &PanicError{Value: v, Stack: string(debug.Stack())}
}

// Normalize strips trivial wrapper types from err.
func Normalize(err error) error {
	for {
		inv, ok := err.(*InvocationError)
		if !ok {
			return err
		}
		err = inv.Err
	}
}

// Try runs fn and converts a panic into a PanicError.
func Try(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewPanicError(r)
		}
	}()
	return fn()
}
