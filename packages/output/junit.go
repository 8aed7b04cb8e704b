package output

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/acarl005/stripansi"

	"github.com/abdul-hamid-achik/hitrun/packages/core/messages"
)

// JUnit XML structures

// JUnitTestSuites is the root element
type JUnitTestSuites struct {
	XMLName    xml.Name         `xml:"testsuites"`
	Name       string           `xml:"name,attr,omitempty"`
	Tests      int              `xml:"tests,attr"`
	Failures   int              `xml:"failures,attr"`
	Errors     int              `xml:"errors,attr"`
	Skipped    int              `xml:"skipped,attr"`
	Time       float64          `xml:"time,attr"`
	Timestamp  string           `xml:"timestamp,attr,omitempty"`
	TestSuites []JUnitTestSuite `xml:"testsuite"`
}

// JUnitTestSuite is one assembly.
type JUnitTestSuite struct {
	XMLName    xml.Name        `xml:"testsuite"`
	Name       string          `xml:"name,attr"`
	Tests      int             `xml:"tests,attr"`
	Failures   int             `xml:"failures,attr"`
	Errors     int             `xml:"errors,attr"`
	Skipped    int             `xml:"skipped,attr"`
	Time       float64         `xml:"time,attr"`
	Timestamp  string          `xml:"timestamp,attr,omitempty"`
	Properties []JUnitProperty `xml:"properties>property,omitempty"`
	TestCases  []JUnitTestCase `xml:"testcase"`
	SystemErr  string          `xml:"system-err,omitempty"`
}

type JUnitProperty struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// JUnitTestCase represents a single test case
type JUnitTestCase struct {
	XMLName   xml.Name      `xml:"testcase"`
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	File      string        `xml:"file,attr,omitempty"`
	Line      int           `xml:"line,attr,omitempty"`
	Time      float64       `xml:"time,attr"`
	Failure   *JUnitFailure `xml:"failure,omitempty"`
	Error     *JUnitError   `xml:"error,omitempty"`
	Skipped   *JUnitSkipped `xml:"skipped,omitempty"`
	SystemOut string        `xml:"system-out,omitempty"`
}

// JUnitFailure represents a test failure
type JUnitFailure struct {
	Message string `xml:"message,attr,omitempty"`
	Type    string `xml:"type,attr,omitempty"`
	Content string `xml:",chardata"`
}

// JUnitError represents a test error
type JUnitError struct {
	Message string `xml:"message,attr,omitempty"`
	Type    string `xml:"type,attr,omitempty"`
	Content string `xml:",chardata"`
}

// JUnitSkipped represents a skipped test
type JUnitSkipped struct {
	Message string `xml:"message,attr,omitempty"`
}

// JUnitSink writes JUnit XML on Flush. Assertion failures become <failure>
// elements; exceptions and timeouts become <error> elements.
type JUnitSink struct {
	writer    io.Writer
	collector *Collector
}

func NewJUnitSink(w io.Writer) *JUnitSink {
	return &JUnitSink{writer: w, collector: NewCollector()}
}

func (f *JUnitSink) OnMessage(msg messages.Message) bool {
	return f.collector.OnMessage(msg)
}

// Flush writes the accumulated JUnit XML output
func (f *JUnitSink) Flush() error {
	suites := JUnitTestSuites{
		Name:       "hitrun",
		Timestamp:  time.Now().Format(time.RFC3339),
		TestSuites: make([]JUnitTestSuite, 0),
	}

	for _, a := range f.collector.Assemblies() {
		suite := junitSuite(a)
		suites.Tests += suite.Tests
		suites.Failures += suite.Failures
		suites.Errors += suite.Errors
		suites.Skipped += suite.Skipped
		suites.Time += suite.Time
		suites.TestSuites = append(suites.TestSuites, suite)
	}

	fmt.Fprintf(f.writer, "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	encoder := xml.NewEncoder(f.writer)
	encoder.Indent("", "  ")
	if err := encoder.Encode(suites); err != nil {
		return err
	}
	_, err := fmt.Fprintln(f.writer)
	return err
}

func junitSuite(a *AssemblyResult) JUnitTestSuite {
	suite := JUnitTestSuite{
		Name:      a.Name,
		Tests:     len(a.Tests),
		Time:      a.Summary.ExecutionTime.Seconds(),
		Timestamp: a.StartTime.Format(time.RFC3339),
		TestCases: make([]JUnitTestCase, 0, len(a.Tests)),
		SystemErr: strings.Join(a.Errors, "\n"),
	}
	if a.RunID != "" {
		suite.Properties = append(suite.Properties, JUnitProperty{Name: "runId", Value: a.RunID})
	}
	if a.Path != "" {
		suite.Properties = append(suite.Properties, JUnitProperty{Name: "path", Value: a.Path})
	}

	for _, r := range a.Tests {
		tc := JUnitTestCase{
			Name:      r.DisplayName,
			ClassName: r.Class,
			File:      r.SourceFile,
			Line:      r.SourceLine,
			Time:      r.Duration.Seconds(),
			SystemOut: stripansi.Strip(r.Output),
		}

		switch r.Status {
		case StatusSkipped:
			suite.Skipped++
			tc.Skipped = &JUnitSkipped{Message: r.SkipReason}
		case StatusNotRun:
			suite.Skipped++
			tc.Skipped = &JUnitSkipped{Message: "not run"}
		case StatusFailed:
			content := r.ErrorMessage()
			if st := r.StackTrace(); st != "" {
				content += "\n" + st
			}
			if r.Cause == messages.CauseAssertion {
				suite.Failures++
				tc.Failure = &JUnitFailure{
					Message: firstLine(r.ErrorMessage()),
					Type:    exceptionType(r, "AssertionError"),
					Content: content,
				}
			} else {
				suite.Errors++
				tc.Error = &JUnitError{
					Message: firstLine(r.ErrorMessage()),
					Type:    exceptionType(r, string(r.Cause)),
					Content: content,
				}
			}
		}

		suite.TestCases = append(suite.TestCases, tc)
	}
	return suite
}

func exceptionType(r *TestResult, fallback string) string {
	if len(r.Error.ExceptionTypes) > 0 && r.Error.ExceptionTypes[0] != "" {
		return r.Error.ExceptionTypes[0]
	}
	return fallback
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
