package output

import (
	"encoding/json"
	"io"
	"time"

	"github.com/acarl005/stripansi"

	"github.com/abdul-hamid-achik/hitrun/packages/core/messages"
)

// JSONOutput is the document written by JSONSink.
type JSONOutput struct {
	Summary    JSONSummary    `json:"summary"`
	Assemblies []JSONAssembly `json:"assemblies"`
	Errors     []string       `json:"errors,omitempty"`
	Duration   float64        `json:"duration"`
	Time       string         `json:"time"`
}

type JSONSummary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	NotRun  int `json:"notRun"`
}

type JSONAssembly struct {
	Name        string      `json:"name"`
	Path        string      `json:"path,omitempty"`
	RunID       string      `json:"runId"`
	Summary     JSONSummary `json:"summary"`
	Duration    float64     `json:"duration"`
	Tests       []JSONTest  `json:"tests"`
	Errors      []string    `json:"errors,omitempty"`
	Diagnostics []string    `json:"diagnostics,omitempty"`
}

type JSONTest struct {
	Name       string              `json:"name"`
	Collection string              `json:"collection"`
	Class      string              `json:"class"`
	Method     string              `json:"method"`
	File       string              `json:"file,omitempty"`
	Line       int                 `json:"line,omitempty"`
	Status     Status              `json:"status"`
	Duration   float64             `json:"duration"`
	SkipReason string              `json:"skipReason,omitempty"`
	Cause      string              `json:"cause,omitempty"`
	Error      string              `json:"error,omitempty"`
	StackTrace string              `json:"stackTrace,omitempty"`
	Output     string              `json:"output,omitempty"`
	Warnings   []string            `json:"warnings,omitempty"`
	Traits     map[string][]string `json:"traits,omitempty"`
}

// JSONSink writes every result as one JSON document on Flush.
type JSONSink struct {
	writer    io.Writer
	collector *Collector
}

func NewJSONSink(w io.Writer) *JSONSink {
	return &JSONSink{writer: w, collector: NewCollector()}
}

func (f *JSONSink) OnMessage(msg messages.Message) bool {
	return f.collector.OnMessage(msg)
}

// Flush writes the accumulated JSON output.
func (f *JSONSink) Flush() error {
	totals := f.collector.Totals()
	out := JSONOutput{
		Summary:    jsonSummary(totals),
		Assemblies: make([]JSONAssembly, 0),
		Errors:     f.collector.Errors(),
		Duration:   float64(totals.ExecutionTime.Milliseconds()),
		Time:       time.Now().Format(time.RFC3339),
	}

	for _, a := range f.collector.Assemblies() {
		ja := JSONAssembly{
			Name:        a.Name,
			Path:        a.Path,
			RunID:       a.RunID,
			Summary:     jsonSummary(a.Summary),
			Duration:    float64(a.Summary.ExecutionTime.Milliseconds()),
			Tests:       make([]JSONTest, 0, len(a.Tests)),
			Errors:      a.Errors,
			Diagnostics: a.Diagnostics,
		}
		for _, r := range a.Tests {
			ja.Tests = append(ja.Tests, JSONTest{
				Name:       r.DisplayName,
				Collection: r.Collection,
				Class:      r.Class,
				Method:     r.Method,
				File:       r.SourceFile,
				Line:       r.SourceLine,
				Status:     r.Status,
				Duration:   float64(r.Duration.Milliseconds()),
				SkipReason: r.SkipReason,
				Cause:      string(r.Cause),
				Error:      r.ErrorMessage(),
				StackTrace: r.StackTrace(),
				Output:     stripansi.Strip(r.Output),
				Warnings:   r.Warnings,
				Traits:     r.Traits,
			})
		}
		out.Assemblies = append(out.Assemblies, ja)
	}

	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}

func jsonSummary(s messages.ExecutionSummary) JSONSummary {
	return JSONSummary{
		Total:   s.TestsTotal,
		Passed:  s.TestsPassed(),
		Failed:  s.TestsFailed,
		Skipped: s.TestsSkipped,
		NotRun:  s.TestsNotRun,
	}
}
