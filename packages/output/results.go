package output

import (
	"strings"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/hitrun/packages/core/messages"
)

// Status is the terminal state of a test.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
	StatusNotRun  Status = "notRun"
)

// TestResult is one test, assembled from its messages.
type TestResult struct {
	UniqueID    string
	Collection  string
	Class       string
	Method      string
	DisplayName string
	SourceFile  string
	SourceLine  int
	Traits      messages.Traits

	Status     Status
	Duration   time.Duration
	Output     string
	Warnings   []string
	SkipReason string
	Cause      messages.FailureCause
	Error      messages.ErrorMetadata
}

// ErrorMessage returns the failure messages joined by newlines.
func (r *TestResult) ErrorMessage() string {
	return strings.Join(r.Error.Messages, "\n")
}

// StackTrace returns the first non-empty stack trace of the failure.
func (r *TestResult) StackTrace() string {
	for _, st := range r.Error.StackTraces {
		if st != "" {
			return st
		}
	}
	return ""
}

// AssemblyResult is one assembly run.
type AssemblyResult struct {
	UniqueID  string
	Name      string
	Path      string
	RunID     string
	StartTime time.Time
	Finished  bool
	Summary   messages.ExecutionSummary
	Tests     []*TestResult
	// Errors holds pipeline errors and cleanup failures.
	Errors      []string
	Diagnostics []string
}

type caseInfo struct {
	display    string
	sourceFile string
	sourceLine int
	traits     messages.Traits
}

// Collector accumulates results from the message stream. It is safe for
// concurrent use.
type Collector struct {
	mu          sync.Mutex
	assemblies  []*AssemblyResult
	byID        map[string]*AssemblyResult
	collections map[string]string
	classes     map[string]string
	methods     map[string]string
	cases       map[string]caseInfo
	tests       map[string]*TestResult
	// Errors not tied to any assembly.
	orphanErrors []string
}

func NewCollector() *Collector {
	return &Collector{
		byID:        make(map[string]*AssemblyResult),
		collections: make(map[string]string),
		classes:     make(map[string]string),
		methods:     make(map[string]string),
		cases:       make(map[string]caseInfo),
		tests:       make(map[string]*TestResult),
	}
}

// OnMessage records msg. It always answers true.
func (c *Collector) OnMessage(msg messages.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch m := msg.(type) {
	case messages.TestAssemblyStarting:
		a := &AssemblyResult{
			UniqueID:  m.AssemblyUniqueID,
			Name:      m.AssemblyName,
			Path:      m.AssemblyPath,
			RunID:     m.RunID,
			StartTime: m.StartTime,
		}
		c.assemblies = append(c.assemblies, a)
		c.byID[m.AssemblyUniqueID] = a
	case messages.TestAssemblyFinished:
		if a := c.byID[m.AssemblyUniqueID]; a != nil {
			a.Finished = true
			a.Summary = m.ExecutionSummary
		}
	case messages.TestCollectionStarting:
		c.collections[m.TestCollectionUniqueID] = m.TestCollectionDisplayName
	case messages.TestClassStarting:
		c.classes[m.TestClassUniqueID] = m.TestClassName
	case messages.TestMethodStarting:
		c.methods[m.TestMethodUniqueID] = m.MethodName
	case messages.TestCaseStarting:
		c.cases[m.TestCaseUniqueID] = caseInfo{
			display:    m.TestCaseDisplayName,
			sourceFile: m.SourceFilePath,
			sourceLine: m.SourceLineNumber,
			traits:     m.Traits,
		}
	case messages.TestStarting:
		info := c.cases[m.TestCaseUniqueID]
		r := &TestResult{
			UniqueID:    m.TestUniqueID,
			Collection:  c.collections[m.TestCollectionUniqueID],
			Class:       c.classes[m.TestClassUniqueID],
			Method:      c.methods[m.TestMethodUniqueID],
			DisplayName: m.TestDisplayName,
			SourceFile:  info.sourceFile,
			SourceLine:  info.sourceLine,
			Traits:      m.Traits,
		}
		c.tests[m.TestUniqueID] = r
		if a := c.byID[m.AssemblyUniqueID]; a != nil {
			a.Tests = append(a.Tests, r)
		}
	case messages.TestPassed:
		c.finish(m.TestResultMessage, StatusPassed)
	case messages.TestFailed:
		if r := c.finish(m.TestResultMessage, StatusFailed); r != nil {
			r.Cause = m.Cause
			r.Error = m.ErrorMetadata
		}
	case messages.TestSkipped:
		if r := c.finish(m.TestResultMessage, StatusSkipped); r != nil {
			r.SkipReason = m.Reason
		}
	case messages.TestNotRun:
		c.finish(m.TestResultMessage, StatusNotRun)
	case messages.TestAssemblyCleanupFailure:
		c.addError(m.AssemblyUniqueID, "Test Assembly Cleanup Failure", m.ErrorMetadata)
	case messages.TestCollectionCleanupFailure:
		c.addError(m.AssemblyUniqueID, "Test Collection Cleanup Failure ("+c.collections[m.TestCollectionUniqueID]+")", m.ErrorMetadata)
	case messages.TestClassCleanupFailure:
		c.addError(m.AssemblyUniqueID, "Test Class Cleanup Failure ("+c.classes[m.TestClassUniqueID]+")", m.ErrorMetadata)
	case messages.TestMethodCleanupFailure:
		c.addError(m.AssemblyUniqueID, "Test Method Cleanup Failure ("+c.methods[m.TestMethodUniqueID]+")", m.ErrorMetadata)
	case messages.TestCaseCleanupFailure:
		c.addError(m.AssemblyUniqueID, "Test Case Cleanup Failure ("+c.cases[m.TestCaseUniqueID].display+")", m.ErrorMetadata)
	case messages.TestCleanupFailure:
		c.addError(m.AssemblyUniqueID, "Test Cleanup Failure ("+c.cases[m.TestCaseUniqueID].display+")", m.ErrorMetadata)
	case messages.ErrorMessage:
		c.addError("", "Error", m.ErrorMetadata)
	case messages.DiagnosticMessage:
		if a := c.last(); a != nil {
			a.Diagnostics = append(a.Diagnostics, m.Message)
		}
	}
	return true
}

func (c *Collector) finish(m messages.TestResultMessage, status Status) *TestResult {
	r := c.tests[m.TestUniqueID]
	if r == nil {
		return nil
	}
	r.Status = status
	r.Duration = m.ExecutionTime
	r.Output = m.Output
	r.Warnings = m.Warnings
	return r
}

func (c *Collector) addError(assemblyID, title string, md messages.ErrorMetadata) {
	text := title + ": " + strings.Join(md.Messages, "\n")
	a := c.byID[assemblyID]
	if a == nil {
		a = c.last()
	}
	if a == nil {
		c.orphanErrors = append(c.orphanErrors, text)
		return
	}
	a.Errors = append(a.Errors, text)
}

func (c *Collector) last() *AssemblyResult {
	if len(c.assemblies) == 0 {
		return nil
	}
	return c.assemblies[len(c.assemblies)-1]
}

// Assemblies returns the assemblies seen so far, in start order.
func (c *Collector) Assemblies() []*AssemblyResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*AssemblyResult(nil), c.assemblies...)
}

// Errors returns errors reported before any assembly started.
func (c *Collector) Errors() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.orphanErrors...)
}

// Totals sums the summaries of every finished assembly.
func (c *Collector) Totals() messages.ExecutionSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total messages.ExecutionSummary
	for _, a := range c.assemblies {
		total.TestsTotal += a.Summary.TestsTotal
		total.TestsFailed += a.Summary.TestsFailed
		total.TestsSkipped += a.Summary.TestsSkipped
		total.TestsNotRun += a.Summary.TestsNotRun
		total.ExecutionTime += a.Summary.ExecutionTime
	}
	return total
}
