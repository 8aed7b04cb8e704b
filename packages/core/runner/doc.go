// Package runner executes a discovered test assembly and reports every step
// as a message.
//
// Execution is a fixed pipeline of nested scopes:
//   - assembly: assembly fixtures, collection scheduling
//   - collection: collection fixtures, classes run one after another
//   - class: constructor selection, parameter resolution, class fixtures,
//     test case ordering
//   - method: groups the ordered cases of one method
//   - case and test: construction, invocation, timeouts, disposal and the
//     final outcome
//
// Every scope emits a Starting message before doing any work and exactly one
// Finished message afterwards, even when its own setup failed. Failures that
// happen above the test level are aggregated and handed down, so every test
// below a broken scope is reported as failed with the scope's error.
package runner
