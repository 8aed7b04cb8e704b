package plan

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/abdul-hamid-achik/hitrun/packages/assertions"
)

// ExpectationError lists every expectation a command result missed.
type ExpectationError struct {
	Failures []string
}

func (e *ExpectationError) Error() string {
	if len(e.Failures) == 1 {
		return "expectation failed: " + e.Failures[0]
	}
	return fmt.Sprintf("%d expectations failed:\n  - %s", len(e.Failures), strings.Join(e.Failures, "\n  - "))
}

// IsAssertionFailure marks expectation misses as assertion failures.
func (e *ExpectationError) IsAssertionFailure() bool { return true }

// Check evaluates e against res. A nil Expect only requires exit code 0.
// resolve interpolates expected strings; opts configure assert blocks.
func (e *Expect) Check(res *ShellResult, resolve func(string) string, opts ...assertions.EvaluatorOption) error {
	var failures []string

	want := 0
	if e != nil && e.ExitCode != nil {
		want = *e.ExitCode
	}
	if res.ExitCode != want {
		failures = append(failures, fmt.Sprintf("exit code: expected %d, got %d", want, res.ExitCode))
	}

	if e != nil {
		for _, s := range e.StdoutContains {
			if s = resolve(s); !strings.Contains(res.Stdout, s) {
				failures = append(failures, fmt.Sprintf("stdout does not contain %q", s))
			}
		}
		for _, s := range e.StderrContains {
			if s = resolve(s); !strings.Contains(res.Stderr, s) {
				failures = append(failures, fmt.Sprintf("stderr does not contain %q", s))
			}
		}
		failures = append(failures, e.checkJSON(res.Stdout, resolve)...)
		failures = append(failures, e.checkAsserts(res, resolve, opts)...)
	}

	if len(failures) > 0 {
		return &ExpectationError{Failures: failures}
	}
	return nil
}

func (e *Expect) checkJSON(stdout string, resolve func(string) string) []string {
	if len(e.JSON) == 0 {
		return nil
	}
	if !gjson.Valid(stdout) {
		return []string{"stdout is not valid JSON"}
	}

	paths := make([]string, 0, len(e.JSON))
	for p := range e.JSON {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var failures []string
	for _, path := range paths {
		actual := gjson.Get(stdout, path)
		if !actual.Exists() {
			failures = append(failures, fmt.Sprintf("json %s: path not found", path))
			continue
		}
		expected, err := normalizeJSON(resolveValue(e.JSON[path], resolve))
		if err != nil {
			failures = append(failures, fmt.Sprintf("json %s: %v", path, err))
			continue
		}
		if !reflect.DeepEqual(expected, actual.Value()) {
			failures = append(failures, fmt.Sprintf("json %s: expected %s, got %s", path, formatJSON(expected), actual.Raw))
		}
	}
	return failures
}

func (e *Expect) checkAsserts(res *ShellResult, resolve func(string) string, opts []assertions.EvaluatorOption) []string {
	if len(e.Assert) == 0 {
		return nil
	}

	var failures []string
	list := make([]*assertions.Assertion, 0, len(e.Assert))
	for _, a := range e.Assert {
		op, err := assertions.ParseOperator(a.Op)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", a.Subject, err))
			continue
		}
		list = append(list, &assertions.Assertion{
			Subject:  a.Subject,
			Operator: op,
			Expected: resolveValue(a.Value, resolve),
		})
	}

	out := assertions.Output{
		ExitCode: res.ExitCode,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		Duration: res.Duration,
	}
	for _, r := range assertions.EvaluateAll(out, list, opts...) {
		if !r.Passed {
			failures = append(failures, r.String())
		}
	}
	return failures
}

func resolveValue(v any, resolve func(string) string) any {
	switch t := v.(type) {
	case string:
		return resolve(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = resolveValue(item, resolve)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = resolveValue(item, resolve)
		}
		return out
	}
	return v
}

// normalizeJSON converts a YAML value to the shape gjson produces.
func normalizeJSON(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("expected value cannot be encoded: %w", err)
	}
	return gjson.ParseBytes(raw).Value(), nil
}

func formatJSON(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(raw)
}

// captureValue extracts a capture from a result. The sources stdout, stderr
// and exitCode select the raw values; anything else is a gjson path into
// stdout.
func captureValue(res *ShellResult, source string) (any, bool) {
	switch source {
	case "stdout":
		return strings.TrimSpace(res.Stdout), true
	case "stderr":
		return strings.TrimSpace(res.Stderr), true
	case "exitCode":
		return res.ExitCode, true
	}
	v := gjson.Get(res.Stdout, source)
	if !v.Exists() {
		return nil, false
	}
	return v.Value(), true
}
