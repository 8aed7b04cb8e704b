package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/abdul-hamid-achik/hitrun/packages/core/messages"
)

// TAPSink writes TAP version 13 on Flush.
type TAPSink struct {
	writer    io.Writer
	collector *Collector
}

func NewTAPSink(w io.Writer) *TAPSink {
	return &TAPSink{writer: w, collector: NewCollector()}
}

func (f *TAPSink) OnMessage(msg messages.Message) bool {
	return f.collector.OnMessage(msg)
}

// Flush writes the accumulated TAP output
func (f *TAPSink) Flush() error {
	var results []*TestResult
	for _, a := range f.collector.Assemblies() {
		results = append(results, a.Tests...)
	}

	var b strings.Builder
	b.WriteString("TAP version 13\n")
	fmt.Fprintf(&b, "1..%d\n", len(results))

	for i, r := range results {
		n := i + 1
		switch r.Status {
		case StatusPassed:
			fmt.Fprintf(&b, "ok %d - %s\n", n, r.DisplayName)
		case StatusSkipped:
			reason := r.SkipReason
			if reason == "" {
				reason = "skipped"
			}
			fmt.Fprintf(&b, "ok %d - %s # SKIP %s\n", n, r.DisplayName, reason)
		case StatusNotRun:
			fmt.Fprintf(&b, "ok %d - %s # SKIP not run\n", n, r.DisplayName)
		default:
			fmt.Fprintf(&b, "not ok %d - %s\n", n, r.DisplayName)
			b.WriteString("  ---\n")
			fmt.Fprintf(&b, "  message: %s\n", escapeYAML(r.ErrorMessage()))
			fmt.Fprintf(&b, "  severity: %s\n", severity(r.Cause))
			if r.SourceFile != "" {
				fmt.Fprintf(&b, "  at: %s\n", escapeYAML(fmt.Sprintf("%s:%d", r.SourceFile, r.SourceLine)))
			}
			fmt.Fprintf(&b, "  duration_ms: %d\n", r.Duration.Milliseconds())
			b.WriteString("  ...\n")
		}
	}

	_, err := io.WriteString(f.writer, b.String())
	return err
}

func severity(cause messages.FailureCause) string {
	if cause == messages.CauseAssertion {
		return "fail"
	}
	return "error"
}

func escapeYAML(s string) string {
	if strings.ContainsAny(s, ":\n\"'[]{}#&*!|>%@`") {
		s = strings.ReplaceAll(s, "\\", "\\\\")
		s = strings.ReplaceAll(s, "\"", "\\\"")
		s = strings.ReplaceAll(s, "\n", "\\n")
		return "\"" + s + "\""
	}
	return s
}
