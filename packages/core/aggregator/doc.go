// Package aggregator collects errors from independent operations (construction,
// test body, disposal) into a single composite failure without stopping the
// operations that follow.
//
// Every captured error is normalized first: trivial wrappers such as
// InvocationError are peeled off so reports show the error raised by user code.
// Panics raised inside Run are recovered and recorded as PanicError values that
// keep the goroutine stack.
package aggregator
