package output

import (
	"bufio"
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/hitrun/packages/core/messages"
)

func ids(test string) messages.IDs {
	return messages.IDs{
		Assembly:   "a1",
		Collection: "c1",
		Class:      "k1",
		Method:     "m1",
		TestCase:   "tc-" + test,
		Test:       "t-" + test,
	}
}

func result(test string, d time.Duration, output string) messages.TestResultMessage {
	return messages.TestResultMessage{
		TestMessage:   messages.NewTestMessage(ids(test)),
		ExecutionTime: d,
		Output:        output,
	}
}

func testStart(name string, line int) []messages.Message {
	return []messages.Message{
		messages.TestCaseStarting{
			TestCaseMessage:     messages.NewTestCaseMessage(ids(name)),
			TestCaseDisplayName: name,
			TestClassName:       "Users",
			TestMethodName:      "create",
			SourceFilePath:      "users.plan.yaml",
			SourceLineNumber:    line,
		},
		messages.TestStarting{
			TestMessage:     messages.NewTestMessage(ids(name)),
			TestDisplayName: name,
		},
	}
}

// sampleStream is one assembly with a test in every terminal state.
func sampleStream() []messages.Message {
	base := ids("")
	var msgs []messages.Message
	msgs = append(msgs,
		messages.TestAssemblyStarting{
			AssemblyMessage: messages.NewAssemblyMessage(base),
			AssemblyName:    "plans",
			AssemblyPath:    "/tmp/users.plan.yaml",
			RunID:           "run-1",
			StartTime:       time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		},
		messages.TestCollectionStarting{
			CollectionMessage:         messages.NewCollectionMessage(base),
			TestCollectionDisplayName: "api",
		},
		messages.TestClassStarting{ClassMessage: messages.NewClassMessage(base), TestClassName: "Users"},
		messages.TestMethodStarting{MethodMessage: messages.NewMethodMessage(base), MethodName: "create"},
	)

	msgs = append(msgs, testStart("create(1)", 10)...)
	msgs = append(msgs,
		messages.TestOutput{TestMessage: messages.NewTestMessage(ids("create(1)")), Output: "hello\n"},
		messages.TestPassed{TestResultMessage: result("create(1)", 10*time.Millisecond, "hello\n")},
	)

	msgs = append(msgs, testStart("create(2)", 14)...)
	msgs = append(msgs, messages.TestFailed{
		TestResultMessage: result("create(2)", 20*time.Millisecond, "\x1b[31mboom\x1b[0m\n"),
		ErrorMetadata: messages.ErrorMetadata{
			ExceptionParentIndices: []int{-1},
			ExceptionTypes:         []string{"ExpectationError"},
			Messages:               []string{"exit code: expected 0, got 1"},
			StackTraces:            []string{""},
		},
		Cause: messages.CauseAssertion,
	})

	msgs = append(msgs, testStart("slow", 20)...)
	msgs = append(msgs, messages.TestFailed{
		TestResultMessage: result("slow", 100*time.Millisecond, ""),
		ErrorMetadata: messages.ErrorMetadata{
			ExceptionParentIndices: []int{-1},
			ExceptionTypes:         []string{""},
			Messages:               []string{"Test execution timed out after 100 milliseconds"},
			StackTraces:            []string{""},
		},
		Cause: messages.CauseTimeout,
	})

	msgs = append(msgs, testStart("skipme", 30)...)
	msgs = append(msgs, messages.TestSkipped{TestResultMessage: result("skipme", 0, ""), Reason: "not ready"})

	msgs = append(msgs, testStart("explicit", 40)...)
	msgs = append(msgs, messages.TestNotRun{TestResultMessage: result("explicit", 0, "")})

	msgs = append(msgs,
		messages.DiagnosticMessage{Message: "fixture warmed up"},
		messages.TestClassCleanupFailure{
			ClassMessage:  messages.NewClassMessage(base),
			ErrorMetadata: messages.ErrorMetadata{Messages: []string{"teardown failed"}},
		},
		messages.TestAssemblyFinished{
			AssemblyMessage: messages.NewAssemblyMessage(base),
			ExecutionSummary: messages.ExecutionSummary{
				TestsTotal:    5,
				TestsFailed:   2,
				TestsSkipped:  1,
				TestsNotRun:   1,
				ExecutionTime: 250 * time.Millisecond,
			},
		},
	)
	return msgs
}

func feed(t *testing.T, sink messages.Sink) {
	t.Helper()
	for _, msg := range sampleStream() {
		require.True(t, sink.OnMessage(msg), "sink asked to stop on %s", msg.MessageType())
	}
}

func TestCollector(t *testing.T) {
	c := NewCollector()
	feed(t, c)

	assemblies := c.Assemblies()
	require.Len(t, assemblies, 1)
	a := assemblies[0]
	assert.True(t, a.Finished)
	assert.Equal(t, "plans", a.Name)
	assert.Equal(t, "run-1", a.RunID)
	require.Len(t, a.Tests, 5)

	first := a.Tests[0]
	assert.Equal(t, "api", first.Collection)
	assert.Equal(t, "Users", first.Class)
	assert.Equal(t, "create", first.Method)
	assert.Equal(t, "users.plan.yaml", first.SourceFile)
	assert.Equal(t, 10, first.SourceLine)
	assert.Equal(t, StatusPassed, first.Status)
	assert.Equal(t, "hello\n", first.Output)

	var statuses []Status
	for _, r := range a.Tests {
		statuses = append(statuses, r.Status)
	}
	assert.Equal(t, []Status{StatusPassed, StatusFailed, StatusFailed, StatusSkipped, StatusNotRun}, statuses)
	assert.Equal(t, "not ready", a.Tests[3].SkipReason)
	assert.Equal(t, messages.CauseTimeout, a.Tests[2].Cause)
	assert.Equal(t, "exit code: expected 0, got 1", a.Tests[1].ErrorMessage())

	assert.Equal(t, []string{"Test Class Cleanup Failure (Users): teardown failed"}, a.Errors)
	assert.Equal(t, []string{"fixture warmed up"}, a.Diagnostics)
	assert.Equal(t, 1, c.Totals().TestsPassed())
	assert.Empty(t, c.Errors())
}

func TestCollectorOrphanError(t *testing.T) {
	c := NewCollector()
	c.OnMessage(messages.ErrorMessage{ErrorMetadata: messages.ErrorMetadata{Messages: []string{"no plans found"}}})
	assert.Equal(t, []string{"Error: no plans found"}, c.Errors())
}

func TestConsoleSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSink(WithWriter(&buf), WithNoColor(true))
	feed(t, sink)

	out := buf.String()
	assert.Contains(t, out, "Running: plans")
	assert.Contains(t, out, "✓ create(1) (10ms)")
	assert.Contains(t, out, "✗ create(2) (20ms)")
	assert.Contains(t, out, "→ exit code: expected 0, got 1")
	assert.Contains(t, out, "→ Test execution timed out after 100 milliseconds")
	assert.Contains(t, out, "- skipme (not ready)")
	assert.NotContains(t, out, "explicit (not run)")
	assert.Contains(t, out, "[diagnostic] fixture warmed up")
	assert.Contains(t, out, "Test Class Cleanup Failure: teardown failed")
	assert.Contains(t, out, "TOTAL")
	assert.Contains(t, out, "Users")
	assert.Contains(t, out, "Tests: 1 passed, 2 failed, 1 skipped, 1 not run, 5 total")
	assert.Contains(t, out, "Time:  250ms")
	assert.NotContains(t, out, "| hello", "output is only shown in verbose mode")
}

func TestConsoleSinkVerbose(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSink(WithWriter(&buf), WithNoColor(true), WithVerbose(true), WithDiagnostics(false))
	feed(t, sink)

	out := buf.String()
	assert.Contains(t, out, "| hello")
	assert.Contains(t, out, "○ explicit (not run)")
	assert.NotContains(t, out, "[diagnostic]")
}

func TestConsoleSinkProgress(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSink(WithWriter(&buf), WithNoColor(true), WithProgress(true, time.Hour))
	feed(t, sink)

	out := buf.String()
	assert.NotContains(t, out, "✓ create(1)")
	assert.Contains(t, out, "✗ create(2)")
	assert.Equal(t, 1, strings.Count(out, "tests finished"), "progress is rate limited")
	assert.Contains(t, out, "… 1 tests finished, 0 failed")
}

func TestConsoleSinkHeaderAndError(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSink(WithWriter(&buf), WithNoColor(true))
	sink.FormatHeader("v1.2.3")
	sink.FormatError(errors.New("no plans found"))
	assert.Equal(t, "hitrun v1.2.3\nError: no plans found\n", buf.String())
}

func TestJSONSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONSink(&buf)
	feed(t, sink)
	require.NoError(t, sink.Flush())

	var out JSONOutput
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, JSONSummary{Total: 5, Passed: 1, Failed: 2, Skipped: 1, NotRun: 1}, out.Summary)
	assert.Equal(t, float64(250), out.Duration)
	require.Len(t, out.Assemblies, 1)

	tests := out.Assemblies[0].Tests
	require.Len(t, tests, 5)
	assert.Equal(t, "create(2)", tests[1].Name)
	assert.Equal(t, StatusFailed, tests[1].Status)
	assert.Equal(t, "Assertion", tests[1].Cause)
	assert.Equal(t, "boom\n", tests[1].Output, "ansi escapes are stripped")
	assert.Equal(t, "Timeout", tests[2].Cause)
	assert.Equal(t, "users.plan.yaml", tests[0].File)
	assert.Equal(t, 10, tests[0].Line)
	assert.Equal(t, []string{"Test Class Cleanup Failure (Users): teardown failed"}, out.Assemblies[0].Errors)
}

func TestJSONSinkEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewJSONSink(&buf).Flush())
	assert.Contains(t, buf.String(), `"assemblies": []`)
}

func TestJSONLSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONLSink(&buf)
	feed(t, sink)
	require.NoError(t, sink.Flush())

	var decoded []messages.Message
	scanner := bufio.NewScanner(&buf)
	for scanner.Scan() {
		msg, err := messages.Unmarshal(scanner.Bytes())
		require.NoError(t, err)
		decoded = append(decoded, msg)
	}
	require.NoError(t, scanner.Err())
	require.Len(t, decoded, len(sampleStream()))

	start, ok := decoded[0].(*messages.TestAssemblyStarting)
	require.True(t, ok)
	assert.Equal(t, "run-1", start.RunID)
	failed, ok := decoded[10].(*messages.TestFailed)
	require.True(t, ok)
	assert.Equal(t, messages.CauseAssertion, failed.Cause)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestJSONLSinkWriteError(t *testing.T) {
	sink := NewJSONLSink(failingWriter{})
	feed(t, sink)
	assert.EqualError(t, sink.Flush(), "disk full")
}

func TestJUnitSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJUnitSink(&buf)
	feed(t, sink)
	require.NoError(t, sink.Flush())

	assert.True(t, strings.HasPrefix(buf.String(), `<?xml version="1.0" encoding="UTF-8"?>`))

	var suites JUnitTestSuites
	require.NoError(t, xml.Unmarshal(buf.Bytes(), &suites))
	assert.Equal(t, 5, suites.Tests)
	assert.Equal(t, 1, suites.Failures)
	assert.Equal(t, 1, suites.Errors)
	assert.Equal(t, 2, suites.Skipped)
	require.Len(t, suites.TestSuites, 1)

	suite := suites.TestSuites[0]
	assert.Equal(t, "plans", suite.Name)
	assert.Contains(t, suite.SystemErr, "teardown failed")
	assert.Contains(t, suite.Properties, JUnitProperty{Name: "runId", Value: "run-1"})
	require.Len(t, suite.TestCases, 5)

	failure := suite.TestCases[1]
	assert.Equal(t, "Users", failure.ClassName)
	require.NotNil(t, failure.Failure)
	assert.Equal(t, "exit code: expected 0, got 1", failure.Failure.Message)
	assert.Equal(t, "ExpectationError", failure.Failure.Type)
	assert.Equal(t, "boom\n", failure.SystemOut)

	timeout := suite.TestCases[2]
	require.NotNil(t, timeout.Error)
	assert.Equal(t, "Timeout", timeout.Error.Type)

	require.NotNil(t, suite.TestCases[3].Skipped)
	assert.Equal(t, "not ready", suite.TestCases[3].Skipped.Message)
	require.NotNil(t, suite.TestCases[4].Skipped)
	assert.Equal(t, "not run", suite.TestCases[4].Skipped.Message)
}

func TestTAPSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewTAPSink(&buf)
	feed(t, sink)
	require.NoError(t, sink.Flush())

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "TAP version 13\n1..5\n"))
	assert.Contains(t, out, "ok 1 - create(1)\n")
	assert.Contains(t, out, "not ok 2 - create(2)\n")
	assert.Contains(t, out, `  message: "exit code: expected 0, got 1"`)
	assert.Contains(t, out, "  severity: fail\n")
	assert.Contains(t, out, "  severity: error\n")
	assert.Contains(t, out, "  at: \"users.plan.yaml:14\"\n")
	assert.Contains(t, out, "ok 4 - skipme # SKIP not ready\n")
	assert.Contains(t, out, "ok 5 - explicit # SKIP not run\n")
}

func TestEscapeYAML(t *testing.T) {
	assert.Equal(t, "plain", escapeYAML("plain"))
	assert.Equal(t, `"a: \"b\"\nc"`, escapeYAML("a: \"b\"\nc"))
}

func TestHTMLSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewHTMLSink(&buf)
	sink.SetVersion("v1.2.3")
	feed(t, sink)
	require.NoError(t, sink.Flush())

	out := buf.String()
	assert.Contains(t, out, "<h2>plans</h2>")
	assert.Contains(t, out, "5 tests, 1 passed, 2 failed, 1 skipped, 1 not run")
	assert.Contains(t, out, `<tr class="failed">`)
	assert.Contains(t, out, "exit code: expected 0, got 1")
	assert.Contains(t, out, "users.plan.yaml:14")
	assert.Contains(t, out, "hitrun v1.2.3")
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("JUnit")
	require.NoError(t, err)
	assert.Equal(t, FormatJUnit, f)

	_, err = ParseFormat("xml")
	assert.EqualError(t, err, `unknown output format "xml" (expected one of console, json, jsonl, junit, tap, html)`)
}

func TestNew(t *testing.T) {
	for _, format := range Formats {
		sink, err := New(format, &bytes.Buffer{}, WithNoColor(true))
		require.NoError(t, err, format)
		assert.NotNil(t, sink, format)
	}
	_, err := New("xml", &bytes.Buffer{})
	assert.Error(t, err)
}

type flushSink struct {
	messages.SinkFunc
	err error
}

func (f flushSink) Flush() error { return f.err }

func TestMulti(t *testing.T) {
	var a, b int
	m := NewMulti(messages.SinkFunc(func(messages.Message) bool {
		a++
		return true
	}))
	m.Add(flushSink{SinkFunc: func(messages.Message) bool {
		b++
		return false
	}, err: errors.New("flush failed")})

	assert.False(t, m.OnMessage(messages.DiagnosticMessage{Message: "x"}))
	assert.Equal(t, 1, a)
	assert.Equal(t, 1, b, "every sink sees the message even after one asks to stop")
	assert.EqualError(t, m.Flush(), "flush failed")
}
