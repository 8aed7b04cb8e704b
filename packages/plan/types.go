package plan

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/abdul-hamid-achik/hitrun/packages/core/model"
)

// Plan is a test plan document.
type Plan struct {
	Name         string                    `yaml:"name" json:"name"`
	Description  string                    `yaml:"description,omitempty" json:"description,omitempty"`
	Shell        string                    `yaml:"shell,omitempty" json:"shell,omitempty"`
	Variables    map[string]any            `yaml:"variables,omitempty" json:"variables,omitempty"`
	Environments map[string]map[string]any `yaml:"environments,omitempty" json:"environments,omitempty"`
	Traits       TraitMap                  `yaml:"traits,omitempty" json:"traits,omitempty"`
	Fixtures     []*Fixture                `yaml:"fixtures,omitempty" json:"fixtures,omitempty"`
	Collections  []*Collection             `yaml:"collections,omitempty" json:"collections,omitempty"`
	// Classes outside any collection each get a collection of their own.
	Classes []*Class `yaml:"classes,omitempty" json:"classes,omitempty"`
}

// Fixture is a shell resource shared by every test of its scope.
type Fixture struct {
	Name     string `yaml:"name" json:"name"`
	Setup    string `yaml:"setup,omitempty" json:"setup,omitempty"`
	Teardown string `yaml:"teardown,omitempty" json:"teardown,omitempty"`
	// Capture names the variable receiving the trimmed stdout of Setup.
	Capture string `yaml:"capture,omitempty" json:"capture,omitempty"`
}

type Collection struct {
	Name string `yaml:"name" json:"name"`
	// Parallel set to false runs the collection after the parallel ones.
	Parallel      *bool      `yaml:"parallel,omitempty" json:"parallel,omitempty"`
	Traits        TraitMap   `yaml:"traits,omitempty" json:"traits,omitempty"`
	Fixtures      []*Fixture `yaml:"fixtures,omitempty" json:"fixtures,omitempty"`
	ClassFixtures []*Fixture `yaml:"classFixtures,omitempty" json:"classFixtures,omitempty"`
	Order         string     `yaml:"order,omitempty" json:"order,omitempty"`
	Classes       []*Class   `yaml:"classes" json:"classes"`
}

type Class struct {
	Name     string     `yaml:"name" json:"name"`
	Traits   TraitMap   `yaml:"traits,omitempty" json:"traits,omitempty"`
	Fixtures []*Fixture `yaml:"fixtures,omitempty" json:"fixtures,omitempty"`
	// Setup runs before and Teardown after every test of the class.
	Setup    string  `yaml:"setup,omitempty" json:"setup,omitempty"`
	Teardown string  `yaml:"teardown,omitempty" json:"teardown,omitempty"`
	Order    string  `yaml:"order,omitempty" json:"order,omitempty"`
	Tests    []*Test `yaml:"tests" json:"tests"`
}

type Test struct {
	Name     string            `yaml:"name" json:"name"`
	Run      string            `yaml:"run" json:"run"`
	Skip     string            `yaml:"skip,omitempty" json:"skip,omitempty"`
	SkipWhen string            `yaml:"skipWhen,omitempty" json:"skipWhen,omitempty"`
	Explicit bool              `yaml:"explicit,omitempty" json:"explicit,omitempty"`
	Timeout  string            `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Traits   TraitMap          `yaml:"traits,omitempty" json:"traits,omitempty"`
	Cases    []*Case           `yaml:"cases,omitempty" json:"cases,omitempty"`
	Expect   *Expect           `yaml:"expect,omitempty" json:"expect,omitempty"`
	Capture  map[string]string `yaml:"capture,omitempty" json:"capture,omitempty"`

	Line int `yaml:"-" json:"-"`
}

// UnmarshalYAML records the line the test is declared on.
func (t *Test) UnmarshalYAML(node *yaml.Node) error {
	type raw Test
	if err := node.Decode((*raw)(t)); err != nil {
		return err
	}
	t.Line = node.Line
	return nil
}

// Case is one data row of a test.
type Case struct {
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
	Args Args   `yaml:"args,omitempty" json:"args,omitempty"`
	Skip string `yaml:"skip,omitempty" json:"skip,omitempty"`
}

// Args are the variables of one case.
type Args map[string]any

// String renders args sorted by name, as used in case display names.
func (a Args) String() string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s: %v", k, a[k])
	}
	return strings.Join(parts, ", ")
}

type Expect struct {
	ExitCode       *int           `yaml:"exitCode,omitempty" json:"exitCode,omitempty"`
	StdoutContains []string       `yaml:"stdoutContains,omitempty" json:"stdoutContains,omitempty"`
	StderrContains []string       `yaml:"stderrContains,omitempty" json:"stderrContains,omitempty"`
	JSON           map[string]any `yaml:"json,omitempty" json:"json,omitempty"`
	Assert         []*Assert      `yaml:"assert,omitempty" json:"assert,omitempty"`
}

// Assert is one operator assertion, such as {subject: json.id, op: exists}.
type Assert struct {
	Subject string `yaml:"subject" json:"subject"`
	Op      string `yaml:"op" json:"op"`
	Value   any    `yaml:"value,omitempty" json:"value,omitempty"`
}

// TraitMap holds trait values. Each value may be written as a scalar or a
// list.
type TraitMap map[string]TraitValues

type TraitValues []string

func (v *TraitValues) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*v = TraitValues{node.Value}
		return nil
	}
	var list []string
	if err := node.Decode(&list); err != nil {
		return err
	}
	*v = list
	return nil
}

func (m TraitMap) toModel() model.Traits {
	if len(m) == 0 {
		return nil
	}
	out := make(model.Traits, len(m))
	for k, v := range m {
		out[k] = append([]string(nil), v...)
	}
	return out
}
