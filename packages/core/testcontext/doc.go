// Package testcontext is the cooperative API running test code uses to talk
// back to the engine.
//
// The engine stores a *Context in the context.Context it hands to fixtures,
// constructors and test bodies. From there code can:
//
//   - inspect the current pipeline stage and test descriptors
//   - record warnings with AddWarning
//   - skip itself at run time with Skip or SkipNow
//   - write diagnostic output through the OutputHelper
//   - cancel the current test with CancelCurrentTest
//   - share values through the run-wide key/value Store
//
// A warning recorded while no test is running cannot be attached to any
// result. It is reported through the diagnostic callback instead, naming the
// stage that was active.
package testcontext
