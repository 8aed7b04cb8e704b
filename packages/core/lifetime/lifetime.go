// Package lifetime describes the optional lifecycle capabilities a fixture,
// test class instance or test case argument may expose, and the policy used
// to pick between them.
//
// Capabilities are checked independently:
//   - AsyncInitializer: InitializeAsync is called once after construction
//   - AsyncDisposer: DisposeAsync is preferred when present
//   - Disposer / io.Closer: synchronous disposal, used only when no
//     AsyncDisposer is implemented
package lifetime

import (
	"context"
	"io"
)

// AsyncInitializer is implemented by values that need asynchronous setup
// after construction.
type AsyncInitializer interface {
	InitializeAsync(ctx context.Context) error
}

// AsyncDisposer is implemented by values with asynchronous teardown.
type AsyncDisposer interface {
	DisposeAsync(ctx context.Context) error
}

// Disposer is implemented by values with synchronous teardown.
type Disposer interface {
	Dispose() error
}

// AsyncLifetime pairs asynchronous initialization with asynchronous disposal.
type AsyncLifetime interface {
	AsyncInitializer
	AsyncDisposer
}

// DisposalKind identifies which capability a disposal used.
type DisposalKind int

const (
	DisposalNone DisposalKind = iota
	DisposalAsync
	DisposalSync
	DisposalClose
)

func (k DisposalKind) String() string {
	switch k {
	case DisposalAsync:
		return "DisposeAsync"
	case DisposalSync:
		return "Dispose"
	case DisposalClose:
		return "Close"
	default:
		return "none"
	}
}

// DisposalOf returns the disposal capability that Dispose would use for v.
func DisposalOf(v any) DisposalKind {
	switch v.(type) {
	case AsyncDisposer:
		return DisposalAsync
	case Disposer:
		return DisposalSync
	case io.Closer:
		return DisposalClose
	default:
		return DisposalNone
	}
}

// IsDisposable reports whether v exposes any disposal capability.
func IsDisposable(v any) bool {
	return DisposalOf(v) != DisposalNone
}

// Dispose tears v down with its preferred capability. Values without any
// disposal capability are ignored.
func Dispose(ctx context.Context, v any) error {
	switch d := v.(type) {
	case AsyncDisposer:
		return d.DisposeAsync(ctx)
	case Disposer:
		return d.Dispose()
	case io.Closer:
		return d.Close()
	}
	return nil
}

// Initialize runs InitializeAsync when v implements AsyncInitializer.
func Initialize(ctx context.Context, v any) error {
	if i, ok := v.(AsyncInitializer); ok {
		return i.InitializeAsync(ctx)
	}
	return nil
}
