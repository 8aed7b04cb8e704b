// Package output provides sinks that turn the run message stream into
// reports.
//
// Supported output formats:
//   - Console: Human-readable colored terminal output
//   - JSON: Machine-readable JSON summary
//   - JSONL: One JSON object per message, streamed as the run progresses
//   - JUnit: JUnit XML format for CI integration
//   - TAP: Test Anything Protocol format
//   - HTML: A self-contained HTML report
//
// Every sink implements messages.Sink. Sinks that accumulate results before
// writing also implement Flushable.
package output
