package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/time/rate"

	"github.com/abdul-hamid-achik/hitrun/packages/core/messages"
)

// ConsoleSink prints results as they arrive and a summary table after each
// assembly.
type ConsoleSink struct {
	mu              sync.Mutex
	writer          io.Writer
	verbose         bool
	noColor         bool
	showDiagnostics bool
	progress        bool
	progressEvery   time.Duration

	collector *Collector
	sometimes *rate.Sometimes
	finished  int
	failed    int
}

type ConsoleOption func(*ConsoleSink)

func NewConsoleSink(opts ...ConsoleOption) *ConsoleSink {
	f := &ConsoleSink{
		writer:          os.Stdout,
		showDiagnostics: true,
		progressEvery:   time.Second,
		collector:       NewCollector(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.noColor {
		color.NoColor = true
	}
	f.sometimes = &rate.Sometimes{Interval: f.progressEvery}
	return f
}

func WithWriter(w io.Writer) ConsoleOption {
	return func(f *ConsoleSink) {
		f.writer = w
	}
}

// WithVerbose prints passing tests, test output and stack traces.
func WithVerbose(v bool) ConsoleOption {
	return func(f *ConsoleSink) {
		f.verbose = v
	}
}

func WithNoColor(nc bool) ConsoleOption {
	return func(f *ConsoleSink) {
		f.noColor = nc
	}
}

// WithDiagnostics controls whether diagnostic messages are shown.
func WithDiagnostics(show bool) ConsoleOption {
	return func(f *ConsoleSink) {
		f.showDiagnostics = show
	}
}

// WithProgress replaces the line per passing test with a periodic progress
// line.
func WithProgress(enabled bool, every time.Duration) ConsoleOption {
	return func(f *ConsoleSink) {
		f.progress = enabled
		if every > 0 {
			f.progressEvery = every
		}
	}
}

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	faint  = color.New(color.Faint).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

func (f *ConsoleSink) OnMessage(msg messages.Message) bool {
	f.collector.OnMessage(msg)

	f.mu.Lock()
	defer f.mu.Unlock()

	switch m := msg.(type) {
	case messages.TestAssemblyStarting:
		fmt.Fprintf(f.writer, "\n%s\n\n", bold("Running: "+m.AssemblyName))
	case messages.TestOutput:
		if f.verbose {
			for _, line := range splitLines(m.Output) {
				fmt.Fprintf(f.writer, "    %s %s\n", faint("|"), line)
			}
		}
	case messages.TestPassed:
		f.finished++
		if f.verbose || !f.progress {
			fmt.Fprintf(f.writer, "  %s %s %s\n", green("✓"), f.name(m.TestUniqueID), cyan(fmt.Sprintf("(%dms)", m.ExecutionTime.Milliseconds())))
		}
		f.reportWarnings(m.Warnings)
	case messages.TestFailed:
		f.finished++
		f.failed++
		fmt.Fprintf(f.writer, "  %s %s %s\n", red("✗"), f.name(m.TestUniqueID), cyan(fmt.Sprintf("(%dms)", m.ExecutionTime.Milliseconds())))
		for _, line := range splitLines(strings.Join(m.Messages, "\n")) {
			fmt.Fprintf(f.writer, "    %s %s\n", red("→"), line)
		}
		if f.verbose {
			for _, st := range m.StackTraces {
				for _, line := range splitLines(st) {
					fmt.Fprintf(f.writer, "      %s\n", faint(line))
				}
			}
		}
		if out := strings.TrimSpace(m.Output); out != "" && !f.verbose {
			fmt.Fprintf(f.writer, "    Output:\n")
			for _, line := range splitLines(out) {
				fmt.Fprintf(f.writer, "      %s\n", line)
			}
		}
		f.reportWarnings(m.Warnings)
	case messages.TestSkipped:
		f.finished++
		fmt.Fprintf(f.writer, "  %s %s (%s)\n", yellow("-"), f.name(m.TestUniqueID), m.Reason)
	case messages.TestNotRun:
		f.finished++
		if f.verbose {
			fmt.Fprintf(f.writer, "  %s %s (not run)\n", faint("○"), f.name(m.TestUniqueID))
		}
	case messages.DiagnosticMessage:
		if f.showDiagnostics {
			fmt.Fprintf(f.writer, "  %s %s\n", yellow("[diagnostic]"), m.Message)
		}
	case messages.ErrorMessage:
		f.printError("Error", m.ErrorMetadata)
	case messages.TestAssemblyCleanupFailure:
		f.printError("Test Assembly Cleanup Failure", m.ErrorMetadata)
	case messages.TestCollectionCleanupFailure:
		f.printError("Test Collection Cleanup Failure", m.ErrorMetadata)
	case messages.TestClassCleanupFailure:
		f.printError("Test Class Cleanup Failure", m.ErrorMetadata)
	case messages.TestMethodCleanupFailure:
		f.printError("Test Method Cleanup Failure", m.ErrorMetadata)
	case messages.TestCaseCleanupFailure:
		f.printError("Test Case Cleanup Failure", m.ErrorMetadata)
	case messages.TestCleanupFailure:
		f.printError("Test Cleanup Failure", m.ErrorMetadata)
	case messages.TestAssemblyFinished:
		for _, a := range f.collector.Assemblies() {
			if a.UniqueID == m.AssemblyUniqueID {
				f.renderSummary(a)
			}
		}
	}

	if f.progress && !f.verbose {
		switch msg.(type) {
		case messages.TestPassed, messages.TestFailed, messages.TestSkipped, messages.TestNotRun:
			f.sometimes.Do(func() {
				fmt.Fprintf(f.writer, "  %s\n", faint(fmt.Sprintf("… %d tests finished, %d failed", f.finished, f.failed)))
			})
		}
	}
	return true
}

func (f *ConsoleSink) name(testID string) string {
	f.collector.mu.Lock()
	defer f.collector.mu.Unlock()
	if r := f.collector.tests[testID]; r != nil {
		return r.DisplayName
	}
	return testID
}

func (f *ConsoleSink) reportWarnings(warnings []string) {
	for _, w := range warnings {
		fmt.Fprintf(f.writer, "    %s %s\n", yellow("warning:"), w)
	}
}

func (f *ConsoleSink) printError(title string, md messages.ErrorMetadata) {
	fmt.Fprintf(f.writer, "%s %s\n", red(title+":"), strings.Join(md.Messages, "\n"))
}

func (f *ConsoleSink) renderSummary(a *AssemblyResult) {
	type classRow struct {
		collection, class              string
		total, passed, failed, skipped int
		notRun                         int
	}
	var rows []*classRow
	index := make(map[string]*classRow)
	for _, r := range a.Tests {
		key := r.Collection + "\x00" + r.Class
		row := index[key]
		if row == nil {
			row = &classRow{collection: r.Collection, class: r.Class}
			index[key] = row
			rows = append(rows, row)
		}
		row.total++
		switch r.Status {
		case StatusPassed:
			row.passed++
		case StatusFailed:
			row.failed++
		case StatusSkipped:
			row.skipped++
		case StatusNotRun:
			row.notRun++
		}
	}

	t := table.NewWriter()
	t.SetOutputMirror(f.writer)
	t.SetTitle(fmt.Sprintf("%s (%s)", a.Name, formatDuration(a.Summary.ExecutionTime)))
	t.AppendHeader(table.Row{"Collection", "Class", "Tests", "Passed", "Failed", "Skipped", "Not Run"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Collection", AutoMerge: true, WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Class", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Tests", Align: text.AlignRight},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Skipped", Align: text.AlignRight},
		{Name: "Not Run", Align: text.AlignRight},
	})
	for _, row := range rows {
		t.AppendRow(table.Row{row.collection, row.class, row.total, row.passed, row.failed, row.skipped, row.notRun})
	}

	s := a.Summary
	t.AppendFooter(table.Row{"TOTAL", "", s.TestsTotal, s.TestsPassed(), s.TestsFailed, s.TestsSkipped, s.TestsNotRun})

	switch {
	case f.noColor:
		t.SetStyle(table.StyleLight)
	case s.TestsFailed > 0:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	case s.TestsSkipped > 0 || s.TestsNotRun > 0:
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	}

	fmt.Fprintln(f.writer)
	t.Render()

	fmt.Fprintf(f.writer, "\nTests: ")
	if n := s.TestsPassed(); n > 0 {
		fmt.Fprintf(f.writer, "%s, ", green(fmt.Sprintf("%d passed", n)))
	}
	if s.TestsFailed > 0 {
		fmt.Fprintf(f.writer, "%s, ", red(fmt.Sprintf("%d failed", s.TestsFailed)))
	}
	if s.TestsSkipped > 0 {
		fmt.Fprintf(f.writer, "%s, ", yellow(fmt.Sprintf("%d skipped", s.TestsSkipped)))
	}
	if s.TestsNotRun > 0 {
		fmt.Fprintf(f.writer, "%d not run, ", s.TestsNotRun)
	}
	fmt.Fprintf(f.writer, "%d total\n", s.TestsTotal)
	fmt.Fprintf(f.writer, "Time:  %dms\n\n", s.ExecutionTime.Milliseconds())
}

// FormatError prints an error that prevented a run.
func (f *ConsoleSink) FormatError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fmt.Fprintf(f.writer, "%s %v\n", red("Error:"), err)
}

// FormatHeader prints the tool banner.
func (f *ConsoleSink) FormatHeader(version string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fmt.Fprintf(f.writer, "%s %s\n", bold("hitrun"), version)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Round(10 * time.Millisecond).String()
}

func splitLines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
