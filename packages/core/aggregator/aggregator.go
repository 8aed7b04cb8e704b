package aggregator

import (
	"context"
	"sync"
)

// Aggregator accumulates errors. It is safe for concurrent use.
type Aggregator struct {
	mu   sync.Mutex
	errs []error
}

// New returns an empty aggregator.
func New() *Aggregator {
	return &Aggregator{}
}

// Add records err after normalizing it. Nil errors are ignored.
func (a *Aggregator) Add(err error) {
	err = Normalize(err)
	if err == nil {
		return
	}
	a.mu.Lock()
	a.errs = append(a.errs, err)
	a.mu.Unlock()
}

// Run executes fn and records its error or panic. It always runs fn, even
// when errors were already captured.
func (a *Aggregator) Run(fn func() error) {
	a.Add(Try(fn))
}

// RunContext is Run for operations that take a context.
func (a *Aggregator) RunContext(ctx context.Context, fn func(context.Context) error) {
	a.Add(Try(func() error { return fn(ctx) }))
}

// HasErrors reports whether anything was captured.
func (a *Aggregator) HasErrors() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.errs) > 0
}

// Errors returns a copy of the captured errors in capture order.
func (a *Aggregator) Errors() []error {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]error, len(a.errs))
	copy(out, a.errs)
	return out
}

// Aggregate appends every error captured by other.
func (a *Aggregator) Aggregate(other *Aggregator) {
	if other == nil || other == a {
		return
	}
	for _, err := range other.Errors() {
		a.Add(err)
	}
}

// Clear drops all captured errors.
func (a *Aggregator) Clear() {
	a.mu.Lock()
	a.errs = nil
	a.mu.Unlock()
}

// Clone returns an aggregator with the same errors and no shared state.
func (a *Aggregator) Clone() *Aggregator {
	return &Aggregator{errs: a.Errors()}
}

// ToError returns nil when empty, the error itself when exactly one was
// captured, and an *AggregateError otherwise.
func (a *Aggregator) ToError() error {
	errs := a.Errors()
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return &AggregateError{Errs: errs}
	}
}
