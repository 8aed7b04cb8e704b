package output

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/acarl005/stripansi"

	"github.com/abdul-hamid-achik/hitrun/packages/core/messages"
)

// HTMLOutput is the data handed to the report template.
type HTMLOutput struct {
	Version        string
	Summary        JSONSummary
	Assemblies     []HTMLAssembly
	Errors         []string
	Duration       float64
	Time           string
	PassedPercent  float64
	FailedPercent  float64
	SkippedPercent float64
}

type HTMLAssembly struct {
	Name        string
	Summary     JSONSummary
	Duration    float64
	Tests       []HTMLTest
	Errors      []string
	Diagnostics []string
}

type HTMLTest struct {
	Name        string
	Class       string
	Location    string
	StatusClass string
	Status      Status
	Duration    float64
	SkipReason  string
	Error       string
	StackTrace  string
	Output      string
	Warnings    []string
}

// HTMLSink writes a self-contained HTML report on Flush.
type HTMLSink struct {
	writer    io.Writer
	collector *Collector
	version   string
}

func NewHTMLSink(w io.Writer) *HTMLSink {
	return &HTMLSink{writer: w, collector: NewCollector()}
}

// SetVersion records the tool version shown in the report footer.
func (f *HTMLSink) SetVersion(version string) {
	f.version = version
}

func (f *HTMLSink) OnMessage(msg messages.Message) bool {
	return f.collector.OnMessage(msg)
}

// Flush writes the accumulated HTML output
func (f *HTMLSink) Flush() error {
	totals := f.collector.Totals()
	out := HTMLOutput{
		Version:  f.version,
		Summary:  jsonSummary(totals),
		Errors:   f.collector.Errors(),
		Duration: float64(totals.ExecutionTime.Milliseconds()),
		Time:     time.Now().Format("2006-01-02 15:04:05"),
	}
	if totals.TestsTotal > 0 {
		total := float64(totals.TestsTotal)
		out.PassedPercent = float64(totals.TestsPassed()) / total * 100
		out.FailedPercent = float64(totals.TestsFailed) / total * 100
		out.SkippedPercent = float64(totals.TestsSkipped+totals.TestsNotRun) / total * 100
	}

	for _, a := range f.collector.Assemblies() {
		ha := HTMLAssembly{
			Name:        a.Name,
			Summary:     jsonSummary(a.Summary),
			Duration:    float64(a.Summary.ExecutionTime.Milliseconds()),
			Errors:      a.Errors,
			Diagnostics: a.Diagnostics,
		}
		for _, r := range a.Tests {
			t := HTMLTest{
				Name:        r.DisplayName,
				Class:       r.Class,
				StatusClass: string(r.Status),
				Status:      r.Status,
				Duration:    float64(r.Duration.Milliseconds()),
				SkipReason:  r.SkipReason,
				Error:       r.ErrorMessage(),
				StackTrace:  r.StackTrace(),
				Output:      stripansi.Strip(r.Output),
				Warnings:    r.Warnings,
			}
			if r.SourceFile != "" {
				t.Location = fmt.Sprintf("%s:%d", r.SourceFile, r.SourceLine)
			}
			ha.Tests = append(ha.Tests, t)
		}
		out.Assemblies = append(out.Assemblies, ha)
	}

	tmpl, err := template.New("report").Parse(htmlTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse HTML template: %w", err)
	}
	return tmpl.Execute(f.writer, out)
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>hitrun report</title>
<style>
body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif; margin: 2rem; color: #222; }
h1 { margin-bottom: .25rem; }
.meta { color: #666; margin-bottom: 1.5rem; }
.bar { display: flex; height: 12px; border-radius: 6px; overflow: hidden; background: #eee; margin-bottom: 1.5rem; }
.bar .passed { background: #2da44e; }
.bar .failed { background: #cf222e; }
.bar .skipped { background: #d4a72c; }
table { border-collapse: collapse; width: 100%; margin-bottom: 2rem; }
th, td { text-align: left; padding: .4rem .6rem; border-bottom: 1px solid #eee; vertical-align: top; }
td.num { text-align: right; }
tr.failed td.status { color: #cf222e; font-weight: bold; }
tr.passed td.status { color: #2da44e; }
tr.skipped td.status, tr.notRun td.status { color: #9a6700; }
pre { background: #f6f8fa; padding: .5rem; margin: .25rem 0; white-space: pre-wrap; }
.errors { color: #cf222e; }
</style>
</head>
<body>
<h1>Test Report</h1>
<div class="meta">{{.Summary.Total}} tests, {{.Summary.Passed}} passed, {{.Summary.Failed}} failed, {{.Summary.Skipped}} skipped, {{.Summary.NotRun}} not run in {{printf "%.0f" .Duration}}ms &middot; {{.Time}}</div>
<div class="bar">
<div class="passed" style="width: {{printf "%.2f" .PassedPercent}}%"></div>
<div class="failed" style="width: {{printf "%.2f" .FailedPercent}}%"></div>
<div class="skipped" style="width: {{printf "%.2f" .SkippedPercent}}%"></div>
</div>
{{range .Errors}}<pre class="errors">{{.}}</pre>{{end}}
{{range .Assemblies}}
<h2>{{.Name}}</h2>
<div class="meta">{{.Summary.Total}} tests, {{.Summary.Failed}} failed in {{printf "%.0f" .Duration}}ms</div>
{{range .Errors}}<pre class="errors">{{.}}</pre>{{end}}
<table>
<thead><tr><th>Status</th><th>Class</th><th>Test</th><th class="num">Time</th></tr></thead>
<tbody>
{{range .Tests}}<tr class="{{.StatusClass}}">
<td class="status">{{.Status}}</td>
<td>{{.Class}}</td>
<td>{{.Name}}{{if .Location}}<br><small>{{.Location}}</small>{{end}}
{{if .SkipReason}}<div>{{.SkipReason}}</div>{{end}}
{{if .Error}}<pre>{{.Error}}{{if .StackTrace}}
{{.StackTrace}}{{end}}</pre>{{end}}
{{range .Warnings}}<div>warning: {{.}}</div>{{end}}
{{if .Output}}<details><summary>output</summary><pre>{{.Output}}</pre></details>{{end}}
</td>
<td class="num">{{printf "%.0f" .Duration}}ms</td>
</tr>
{{end}}</tbody>
</table>
{{if .Diagnostics}}<h3>Diagnostics</h3>{{range .Diagnostics}}<pre>{{.}}</pre>{{end}}{{end}}
{{end}}
{{if .Version}}<footer class="meta">hitrun {{.Version}}</footer>{{end}}
</body>
</html>
`
