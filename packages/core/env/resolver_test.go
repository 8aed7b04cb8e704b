package env

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolverHasUnresolvedVariables(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		variables map[string]any
		capture   bool
		expected  bool
	}{
		{name: "no variables", input: "hello world", expected: false},
		{name: "resolved variable", input: "{{foo}}", variables: map[string]any{"foo": "bar"}, expected: false},
		{name: "unresolved variable", input: "{{foo}}", expected: true},
		{name: "mixed resolved and unresolved", input: "{{foo}} and {{bar}}", variables: map[string]any{"foo": "hello"}, expected: true},
		{name: "function call", input: "{{uuid()}}", expected: false},
		{name: "nested path unresolved", input: "{{setupProject.projectId}}", expected: true},
		{name: "nested path resolved via capture", input: "{{setupProject.projectId}}", capture: true, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver()
			r.SetVariables(tt.variables)
			if tt.capture {
				r.SetCapture("setupProject", "projectId", "123")
			}
			assert.Equal(t, tt.expected, r.HasUnresolvedVariables(tt.input))
		})
	}
}

func TestResolverGetUnresolvedVariables(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		variables map[string]any
		expected  []string
	}{
		{name: "no variables", input: "hello world"},
		{name: "resolved variable", input: "{{foo}}", variables: map[string]any{"foo": "bar"}},
		{name: "single unresolved variable", input: "{{foo}}", expected: []string{"foo"}},
		{name: "multiple unresolved variables", input: "{{foo}} and {{ bar }}", expected: []string{"foo", "bar"}},
		{
			name:      "mixed resolved and unresolved",
			input:     "{{foo}} and {{bar}} and {{baz}}",
			variables: map[string]any{"bar": "middle"},
			expected:  []string{"foo", "baz"},
		},
		{name: "nested path unresolved", input: "{{setupProject.projectId}}/tasks", expected: []string{"setupProject.projectId"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver()
			r.SetVariables(tt.variables)
			assert.Equal(t, tt.expected, r.GetUnresolvedVariables(tt.input))
		})
	}
}

func TestResolverResolve(t *testing.T) {
	t.Setenv("HITRUN_RESOLVE_HOME", "/home/test")

	tests := []struct {
		name      string
		input     string
		variables map[string]any
		captures  [][3]string
		expected  string
	}{
		{name: "no variables", input: "hello world", expected: "hello world"},
		{name: "simple variable", input: "hello {{name}}", variables: map[string]any{"name": "world"}, expected: "hello world"},
		{
			name:      "multiple variables",
			input:     "{{greeting}} {{name}}!",
			variables: map[string]any{"greeting": "Hello", "name": "World"},
			expected:  "Hello World!",
		},
		{name: "non-string variable", input: "port {{port}}", variables: map[string]any{"port": 8080}, expected: "port 8080"},
		{name: "capture variable", input: "project {{projectId}}", captures: [][3]string{{"setup", "projectId", "123"}}, expected: "project 123"},
		{name: "namespaced capture", input: "project {{setup.projectId}}", captures: [][3]string{{"setup", "projectId", "456"}}, expected: "project 456"},
		{
			name:      "capture shadows variable",
			input:     "{{id}}",
			variables: map[string]any{"id": "var"},
			captures:  [][3]string{{"t", "id", "cap"}},
			expected:  "cap",
		},
		{name: "os environment", input: "{{$HITRUN_RESOLVE_HOME}}/bin", expected: "/home/test/bin"},
		{name: "function", input: `{{base64("hi")}}`, expected: "aGk="},
		{name: "unresolved stays as-is", input: "hello {{unknown}}", expected: "hello {{unknown}}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver()
			r.SetVariables(tt.variables)
			for _, c := range tt.captures {
				r.SetCapture(c[0], c[1], c[2])
			}
			assert.Equal(t, tt.expected, r.Resolve(tt.input))
		})
	}
}

func TestResolverWarnsOnUnresolved(t *testing.T) {
	r := NewResolver()
	var warnings []string
	r.SetWarnFunc(func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	})

	r.Resolve("{{missing}} {{random(x)}}")
	assert.Equal(t, []string{
		"unresolved variable: missing",
		"function call failed: random(): argument 1: \"x\" is not an integer",
		"unresolved variable: random(x)",
	}, warnings)
}

func TestResolverClone(t *testing.T) {
	r := NewResolver()
	r.SetVariable("a", "1")
	clone := r.Clone()
	clone.SetVariable("a", "2")
	clone.SetCapture("t", "b", "3")

	assert.Equal(t, "1", r.Resolve("{{a}}"))
	assert.False(t, r.HasVariable("b"))
	assert.Equal(t, "2", clone.Resolve("{{a}}"))
}

func TestResolverConcurrentCaptures(t *testing.T) {
	r := NewResolver()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.SetCapture(fmt.Sprintf("t%d", i), "value", i)
			_ = r.Resolve("{{value}}")
		}(i)
	}
	wg.Wait()
	assert.True(t, r.HasVariable("t19.value"))
}
