package assertions

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/xeipuuv/gojsonschema"

	"github.com/abdul-hamid-achik/hitrun/packages/snapshot"
)

// Assertion applies Operator to the value Subject selects.
type Assertion struct {
	Subject  string
	Operator Operator
	Expected any
}

// Output is what a test command produced.
type Output struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

type Result struct {
	Passed   bool
	Message  string
	Expected any
	Actual   any
	Subject  string
	Operator string
}

// String formats a failed result for an error message.
func (r *Result) String() string {
	return fmt.Sprintf("%s %s: %s", r.Subject, r.Operator, r.Message)
}

type Evaluator struct {
	output    Output
	json      gjson.Result
	isJSON    bool
	baseDir   string // schema files resolve against it and may not leave it
	snapshots *snapshot.Manager
	planFile  string
	testName  string
}

// EvaluatorOption is a functional option for configuring an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithBaseDir sets the directory schema paths are resolved in.
func WithBaseDir(dir string) EvaluatorOption {
	return func(e *Evaluator) {
		e.baseDir = dir
	}
}

// WithSnapshots enables the snapshot operator for one test of planFile.
func WithSnapshots(m *snapshot.Manager, planFile, testName string) EvaluatorOption {
	return func(e *Evaluator) {
		e.snapshots = m
		e.planFile = planFile
		e.testName = testName
	}
}

func NewEvaluator(out Output, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{output: out}
	if trimmed := strings.TrimSpace(out.Stdout); trimmed != "" && gjson.Valid(trimmed) {
		e.json = gjson.Parse(trimmed)
		e.isJSON = true
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Evaluator) Evaluate(a *Assertion) *Result {
	result := &Result{
		Subject:  a.Subject,
		Operator: a.Operator.String(),
		Expected: a.Expected,
	}

	actual, err := e.value(a.Subject)
	if err != nil {
		result.Message = err.Error()
		return result
	}
	result.Actual = actual

	result.Passed, result.Message = e.apply(actual, a.Operator, a.Expected)

	if a.Operator == OpLength {
		result.Actual = computeLength(actual)
	}
	return result
}

// EvaluateAll evaluates every assertion against one output.
func EvaluateAll(out Output, list []*Assertion, opts ...EvaluatorOption) []*Result {
	e := NewEvaluator(out, opts...)
	results := make([]*Result, len(list))
	for i, a := range list {
		results[i] = e.Evaluate(a)
	}
	return results
}

// value selects the subject of an assertion:
//
//	exitCode, duration    numbers (duration in milliseconds)
//	stdout, stderr        trimmed text
//	lines                 the non-empty lines of stdout
//	json, json.<path>     stdout parsed as JSON, or a gjson path into it
//
// Any other subject is taken as a path into the JSON on stdout.
func (e *Evaluator) value(subject string) (any, error) {
	switch subject {
	case "exitCode":
		return e.output.ExitCode, nil
	case "duration":
		return e.output.Duration.Milliseconds(), nil
	case "stdout":
		return strings.TrimSpace(e.output.Stdout), nil
	case "stderr":
		return strings.TrimSpace(e.output.Stderr), nil
	case "lines":
		return lines(e.output.Stdout), nil
	case "json":
		return e.jsonValue("")
	}
	if path, ok := strings.CutPrefix(subject, "json."); ok {
		return e.jsonValue(path)
	}
	if strings.HasPrefix(subject, "json[") {
		return e.jsonValue(strings.TrimPrefix(subject, "json"))
	}
	return e.jsonValue(subject)
}

func (e *Evaluator) jsonValue(path string) (any, error) {
	if !e.isJSON {
		return nil, fmt.Errorf("stdout is not JSON")
	}
	if path == "" {
		return e.json.Value(), nil
	}
	res := e.json.Get(convertBracketNotation(path))
	if !res.Exists() {
		return nil, nil
	}
	return res.Value(), nil
}

var bracketIndex = regexp.MustCompile(`\[(\d+)\]`)

// convertBracketNotation converts array bracket notation to gjson dot notation
// e.g., "[0].id" -> "0.id", "items[0].tags[1]" -> "items.0.tags.1"
func convertBracketNotation(path string) string {
	return strings.TrimPrefix(bracketIndex.ReplaceAllString(path, ".$1"), ".")
}

func lines(s string) []any {
	var out []any
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimRight(line, "\r"); strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}

func (e *Evaluator) apply(actual any, op Operator, expected any) (bool, string) {
	if positive, ok := negated[op]; ok {
		if passed, _ := e.apply(actual, positive, expected); passed {
			if positive == OpExists {
				return false, "expected not to exist"
			}
			return false, fmt.Sprintf("expected %v not to satisfy %s %v", actual, positive, expected)
		}
		return true, ""
	}

	switch op {
	case OpEquals:
		return equals(actual, expected)
	case OpGreaterThan, OpGreaterOrEqual, OpLessThan, OpLessOrEqual:
		return compareNumeric(actual, expected, op.String())
	case OpContains:
		return contains(actual, expected)
	case OpStartsWith:
		return startsWith(actual, expected)
	case OpEndsWith:
		return endsWith(actual, expected)
	case OpMatches:
		return matches(actual, expected)
	case OpExists:
		return exists(actual)
	case OpLength:
		return length(actual, expected)
	case OpIncludes:
		return includes(actual, expected)
	case OpIn:
		return in(actual, expected)
	case OpType:
		return typeCheck(actual, expected)
	case OpSchema:
		return e.schema(actual, expected)
	case OpEach:
		return e.each(actual, expected)
	case OpSnapshot:
		return e.snapshot(actual, expected)
	}
	return false, fmt.Sprintf("unknown operator: %v", op)
}

// validatePathWithinBase checks that the resolved path stays within the base directory
// to prevent path traversal attacks
func validatePathWithinBase(path, baseDir string) error {
	if baseDir == "" {
		return nil
	}

	cleanBase, err := filepath.Abs(baseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve base directory: %v", err)
	}
	cleanPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %v", err)
	}

	if !strings.HasPrefix(cleanPath, cleanBase+string(filepath.Separator)) && cleanPath != cleanBase {
		return fmt.Errorf("path traversal detected: %s is outside allowed directory %s", path, baseDir)
	}
	return nil
}

func (e *Evaluator) schema(actual, expected any) (bool, string) {
	schemaPath := fmt.Sprintf("%v", expected)
	if !filepath.IsAbs(schemaPath) && e.baseDir != "" {
		schemaPath = filepath.Join(e.baseDir, schemaPath)
	}
	if err := validatePathWithinBase(schemaPath, e.baseDir); err != nil {
		return false, err.Error()
	}

	schemaData, err := os.ReadFile(schemaPath)
	if err != nil {
		return false, fmt.Sprintf("failed to read schema file: %v", err)
	}
	actualJSON, err := json.Marshal(actual)
	if err != nil {
		return false, fmt.Sprintf("failed to marshal actual value: %v", err)
	}

	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schemaData), gojsonschema.NewBytesLoader(actualJSON))
	if err != nil {
		return false, fmt.Sprintf("schema validation error: %v", err)
	}
	if result.Valid() {
		return true, ""
	}

	var problems []string
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	return false, fmt.Sprintf("schema validation failed: %s", strings.Join(problems, "; "))
}

// each applies expected to every element of an array. expected is either a
// plain value every element must equal or a map {op: ..., value: ...}.
func (e *Evaluator) each(actual, expected any) (bool, string) {
	arr, ok := actual.([]any)
	if !ok {
		return false, fmt.Sprintf("expected array for 'each' operator, got %T", actual)
	}

	op, value := OpEquals, expected
	if m, isMap := expected.(map[string]any); isMap {
		name, hasOp := m["op"]
		if !hasOp {
			name, hasOp = m["operator"]
		}
		if hasOp {
			parsed, err := ParseOperator(fmt.Sprintf("%v", name))
			if err != nil {
				return false, err.Error()
			}
			if parsed == OpEach || parsed == OpSnapshot {
				return false, fmt.Sprintf("operator %s cannot be used inside each", parsed)
			}
			op, value = parsed, m["value"]
		}
	}

	for i, item := range arr {
		if passed, msg := e.apply(item, op, value); !passed {
			return false, fmt.Sprintf("item[%d]: %s", i, msg)
		}
	}
	return true, ""
}

// snapshot compares actual with the stored snapshot. expected, when set,
// names the snapshot so one test can keep several.
func (e *Evaluator) snapshot(actual, expected any) (bool, string) {
	if e.snapshots == nil {
		return false, "snapshots are not enabled"
	}
	name := ""
	if expected != nil {
		name = fmt.Sprintf("%v", expected)
	}

	result := e.snapshots.Compare(e.planFile, e.testName, name, actual)
	return result.Passed, result.Message
}
