package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/hitrun/packages/core/messages"
)

func identity(s string) string { return s }

func intPtr(i int) *int { return &i }

func TestExpectCheck(t *testing.T) {
	out := &ShellResult{
		Stdout:   `{"user":{"name":"alice","roles":["admin"],"age":30},"ok":true}`,
		Stderr:   "warning: slow",
		ExitCode: 0,
	}

	tests := []struct {
		name     string
		expect   *Expect
		result   *ShellResult
		failures []string
	}{
		{name: "nil expect passes on exit 0", result: out},
		{name: "nil expect fails on exit 1", result: &ShellResult{ExitCode: 1}, failures: []string{"exit code: expected 0, got 1"}},
		{name: "expected non-zero exit", expect: &Expect{ExitCode: intPtr(2)}, result: &ShellResult{ExitCode: 2}},
		{
			name:   "contains",
			expect: &Expect{StdoutContains: []string{"alice", "bob"}, StderrContains: []string{"slow"}},
			result: out,
			failures: []string{
				`stdout does not contain "bob"`,
			},
		},
		{
			name: "json paths",
			expect: &Expect{JSON: map[string]any{
				"user.name":  "alice",
				"user.age":   30,
				"user.roles": []any{"admin"},
				"ok":         true,
			}},
			result: out,
		},
		{
			name: "json mismatch and missing path",
			expect: &Expect{JSON: map[string]any{
				"user.name": "bob",
				"user.mail": "x",
			}},
			result: out,
			failures: []string{
				"json user.mail: path not found",
				`json user.name: expected "bob", got "alice"`,
			},
		},
		{
			name: "asserts",
			expect: &Expect{Assert: []*Assert{
				{Subject: "json.user.age", Op: ">", Value: 18},
				{Subject: "stderr", Op: "contains", Value: "slow"},
				{Subject: "json.user.roles", Op: "includes", Value: "admin"},
			}},
			result: out,
		},
		{
			name: "failed asserts",
			expect: &Expect{Assert: []*Assert{
				{Subject: "json.user.roles", Op: "length", Value: 2},
				{Subject: "exitCode", Op: "notEquals", Value: 0},
			}},
			result: out,
			failures: []string{
				"json.user.roles length: expected length 2, got 1",
				"exitCode notEquals: expected 0 not to satisfy equals 0",
			},
		},
		{
			name:     "json on plain output",
			expect:   &Expect{JSON: map[string]any{"a": 1}},
			result:   &ShellResult{Stdout: "not json"},
			failures: []string{"stdout is not valid JSON"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.expect.Check(tt.result, identity)
			if tt.failures == nil {
				assert.NoError(t, err)
				return
			}
			var expErr *ExpectationError
			require.ErrorAs(t, err, &expErr)
			assert.Equal(t, tt.failures, expErr.Failures)
		})
	}
}

func TestExpectCheckResolvesExpectedValues(t *testing.T) {
	expect := &Expect{
		StdoutContains: []string{"{{name}}"},
		JSON:           map[string]any{"name": "{{name}}"},
	}
	resolve := func(s string) string {
		if s == "{{name}}" {
			return "alice"
		}
		return s
	}
	assert.NoError(t, expect.Check(&ShellResult{Stdout: `{"name":"alice"}`}, resolve))

	withAssert := &Expect{Assert: []*Assert{{Subject: "name", Op: "equals", Value: "{{name}}"}}}
	assert.NoError(t, withAssert.Check(&ShellResult{Stdout: `{"name":"alice"}`}, resolve))
}

func TestExpectationErrorIsAssertion(t *testing.T) {
	err := &ExpectationError{Failures: []string{"a", "b"}}
	assert.Equal(t, messages.CauseAssertion, messages.CauseOf(err))
	assert.Equal(t, "2 expectations failed:\n  - a\n  - b", err.Error())
	assert.Equal(t, "expectation failed: a", (&ExpectationError{Failures: []string{"a"}}).Error())
}

func TestCaptureValue(t *testing.T) {
	res := &ShellResult{Stdout: "{\"id\": 42}\n", Stderr: " oops \n", ExitCode: 3}

	v, ok := captureValue(res, "id")
	assert.True(t, ok)
	assert.Equal(t, float64(42), v)

	v, ok = captureValue(res, "stdout")
	assert.True(t, ok)
	assert.Equal(t, `{"id": 42}`, v)

	v, _ = captureValue(res, "stderr")
	assert.Equal(t, "oops", v)

	v, _ = captureValue(res, "exitCode")
	assert.Equal(t, 3, v)

	_, ok = captureValue(res, "missing")
	assert.False(t, ok)
}
