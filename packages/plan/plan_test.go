package plan

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/hitrun/packages/core/model"
)

const samplePlan = `
name: sample
traits:
  suite: smoke
variables:
  host: localhost
collections:
  - name: api
    parallel: false
    traits:
      area: api
    fixtures:
      - name: server
        setup: echo up
    classes:
      - name: Users
        order: declaration
        setup: echo constructing
        teardown: echo disposing
        tests:
          - name: create
            run: echo create {{user}}
            timeout: 2s
            traits:
              category: [write, slow]
            cases:
              - args: {user: alice}
              - name: second
                args: {user: bob}
                skip: flaky
          - name: list
            run: echo list
            explicit: true
classes:
  - name: Standalone
    tests:
      - name: check
        run: "true"
        skipWhen: test -n "$CI"
`

func writePlan(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestParse(t *testing.T) {
	p, err := Parse([]byte(samplePlan))
	require.NoError(t, err)

	assert.Equal(t, "sample", p.Name)
	require.Len(t, p.Collections, 1)
	col := p.Collections[0]
	require.NotNil(t, col.Parallel)
	assert.False(t, *col.Parallel)
	assert.Equal(t, TraitValues{"api"}, col.Traits["area"])

	create := col.Classes[0].Tests[0]
	assert.Equal(t, TraitValues{"write", "slow"}, create.Traits["category"])
	assert.Equal(t, Args{"user": "alice"}, create.Cases[0].Args)
	assert.Positive(t, create.Line)
	assert.Equal(t, 4, p.CountTests())
}

func TestParseRejectsInvalidPlans(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{
			name:    "missing name",
			content: "collections: []",
			errMsg:  "name is required",
		},
		{
			name:    "unknown field",
			content: "name: x\nbogus: 1",
			errMsg:  "Additional property bogus is not allowed",
		},
		{
			name:    "test without run",
			content: "name: x\nclasses:\n  - name: C\n    tests:\n      - name: t",
			errMsg:  "run is required",
		},
		{
			name:    "bad order",
			content: "name: x\nclasses:\n  - name: C\n    order: sideways\n    tests: []",
			errMsg:  "order",
		},
		{
			name:    "empty document",
			content: "",
			errMsg:  "document is empty",
		},
		{
			name:    "duplicate test",
			content: "name: x\nclasses:\n  - name: C\n    tests:\n      - {name: t, run: a}\n      - {name: t, run: b}",
			errMsg:  `class "C": duplicate test "t"`,
		},
		{
			name:    "bad timeout",
			content: "name: x\nclasses:\n  - name: C\n    tests:\n      - {name: t, run: a, timeout: soon}",
			errMsg:  "invalid timeout",
		},
		{
			name:    "unknown assert operator",
			content: "name: x\nclasses:\n  - name: C\n    tests:\n      - name: t\n        run: a\n        expect:\n          assert: [{subject: stdout, op: resembles}]",
			errMsg:  `assert stdout: unknown operator "resembles"`,
		},
		{
			name:    "assert without op",
			content: "name: x\nclasses:\n  - name: C\n    tests:\n      - name: t\n        run: a\n        expect:\n          assert: [{subject: stdout}]",
			errMsg:  "op is required",
		},
		{
			name:    "duplicate collection",
			content: "name: x\ncollections:\n  - {name: a, classes: []}\n  - {name: a, classes: []}",
			errMsg:  `duplicate collection "a"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestSchemaErrorListsEveryProblem(t *testing.T) {
	err := ValidateSchema([]byte("name: x\nfoo: 1\nbar: 2"))
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Len(t, schemaErr.Problems, 2)
}

func TestBuild(t *testing.T) {
	path := writePlan(t, samplePlan)
	a, err := Load(path, Options{DefaultTimeout: 30 * time.Second})
	require.NoError(t, err)

	assert.Equal(t, "sample", a.Name)
	assert.Equal(t, path, a.Path)
	assert.Equal(t, model.Traits{"suite": {"smoke"}}, a.Traits)
	require.Len(t, a.Collections, 2)

	api := a.Collections[0]
	assert.Equal(t, "api", api.DisplayName)
	assert.True(t, api.DisableParallelization)
	require.Len(t, api.Fixtures, 1)
	assert.Equal(t, "*plan.CollectionFixture", api.Fixtures[0].Name())

	users := api.Classes[0]
	assert.Equal(t, model.DeclarationOrderer{}, users.Orderer)
	require.Len(t, users.Constructors, 1)
	params := users.Constructors[0].Params
	require.Len(t, params, 3)
	assert.Equal(t, model.RoleContextAccessor, params[0].Role)
	assert.Equal(t, model.RoleOutputHelper, params[1].Role)
	assert.Equal(t, "*plan.CollectionFixture", params[2].TypeName())

	cases := users.TestCases()
	require.Len(t, cases, 3)
	assert.Equal(t, "create(user: alice)", cases[0].DisplayName)
	assert.Equal(t, 2000, cases[0].Timeout)
	assert.Equal(t, path, cases[0].SourceFile)
	assert.Equal(t, "create(second)", cases[1].DisplayName)
	assert.Equal(t, "flaky", cases[1].SkipReason)
	assert.Equal(t, "list", cases[2].DisplayName)
	assert.True(t, cases[2].Explicit)
	assert.Equal(t, 30000, cases[2].Timeout)

	standalone := a.Collections[1]
	assert.Equal(t, "Test collection for Standalone", standalone.DisplayName)
	assert.False(t, standalone.DisableParallelization)
	check := standalone.Classes[0].TestCases()[0]
	assert.NotNil(t, check.SkipFunc)
	assert.Len(t, standalone.Classes[0].Constructors[0].Params, 2)
}

func TestBuildCaseIdentityIncludesArgs(t *testing.T) {
	a, err := Load(writePlan(t, samplePlan), Options{})
	require.NoError(t, err)
	cases := a.Collections[0].Classes[0].TestCases()
	assert.NotEqual(t, cases[0].UniqueID, cases[1].UniqueID)
	assert.Equal(t, []any{Args{"user": "alice"}}, cases[0].Args)
}

func TestBuildFilters(t *testing.T) {
	path := writePlan(t, samplePlan)

	tests := []struct {
		name     string
		filter   Filter
		expected []string
	}{
		{name: "by exact name", filter: Filter{Name: "list"}, expected: []string{"list"}},
		{name: "by class-qualified name", filter: Filter{Name: "Users.create"}, expected: []string{"create(user: alice)", "create(second)"}},
		{name: "by prefix", filter: Filter{Name: "ch*"}, expected: []string{"check"}},
		{name: "by named trait", filter: Filter{Traits: []string{"category=slow"}}, expected: []string{"create(user: alice)", "create(second)"}},
		{name: "by collection trait", filter: Filter{Traits: []string{"api"}}, expected: []string{"create(user: alice)", "create(second)", "list"}},
		{name: "by assembly trait", filter: Filter{Traits: []string{"suite=smoke"}}, expected: []string{"create(user: alice)", "create(second)", "list", "check"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := Load(path, Options{Filter: tt.filter})
			require.NoError(t, err)

			var names []string
			for _, col := range a.Collections {
				for _, k := range col.Classes {
					for _, tc := range k.TestCases() {
						names = append(names, tc.DisplayName)
					}
				}
			}
			assert.Equal(t, tt.expected, names)
		})
	}
}

func TestBuildNoTests(t *testing.T) {
	_, err := Load(writePlan(t, samplePlan), Options{Filter: Filter{Name: "nothing"}})
	assert.True(t, errors.Is(err, ErrNoTests))
}

func TestBuildUnknownEnvironment(t *testing.T) {
	_, err := Load(writePlan(t, samplePlan), Options{Environment: "prod"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `environment "prod" is not defined`)
}

func TestMatchesPattern(t *testing.T) {
	tests := []struct {
		name, pattern string
		expected      bool
	}{
		{"create", "", true},
		{"create", "create", true},
		{"create", "creat", false},
		{"create", "cr*", true},
		{"create", "*ate", true},
		{"create", "*eat*", true},
		{"create", "*x*", false},
		{"create", "*", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, matchesPattern(tt.name, tt.pattern), "%s ~ %s", tt.name, tt.pattern)
	}
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.plan.yaml", "a.plan.yml", "notes.yaml", ".hidden/c.plan.yaml", "nested/d.plan.yaml"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte("name: x"), 0644))
	}

	files, err := Discover([]string{dir, filepath.Join(dir, "notes.yaml"), filepath.Join(dir, "a.plan.yml")})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.plan.yml"),
		filepath.Join(dir, "b.plan.yaml"),
		filepath.Join(dir, "nested", "d.plan.yaml"),
		filepath.Join(dir, "notes.yaml"),
	}, files)

	_, err = Discover([]string{filepath.Join(dir, "missing")})
	assert.Error(t, err)
}
