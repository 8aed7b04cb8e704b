package model

import (
	"context"
	"reflect"

	"github.com/abdul-hamid-achik/hitrun/packages/core/fixtures"
)

// Traits maps trait names to their values.
type Traits map[string][]string

// Merge returns a copy of t with every value of other appended.
func (t Traits) Merge(other Traits) Traits {
	out := make(Traits, len(t)+len(other))
	for k, v := range t {
		out[k] = append([]string(nil), v...)
	}
	for k, v := range other {
		out[k] = append(out[k], v...)
	}
	return out
}

// Assembly is the root of the hierarchy.
type Assembly struct {
	UniqueID   string
	Name       string
	Path       string
	ConfigPath string
	Traits     Traits

	// Fixtures are created once for the whole run.
	Fixtures    []fixtures.Definition
	Collections []*Collection

	CollectionOrderer CollectionOrderer
}

// NewAssembly creates an assembly descriptor.
func NewAssembly(name, path, configPath string) *Assembly {
	return &Assembly{
		UniqueID:   AssemblyID(path, configPath),
		Name:       name,
		Path:       path,
		ConfigPath: configPath,
	}
}

// NewCollection adds a collection to a.
func (a *Assembly) NewCollection(displayName string) *Collection {
	c := &Collection{
		Assembly:    a,
		UniqueID:    CollectionID(a.UniqueID, displayName, ""),
		DisplayName: displayName,
	}
	a.Collections = append(a.Collections, c)
	return c
}

// Collection groups classes that share collection fixtures and never run in
// parallel with each other.
type Collection struct {
	Assembly    *Assembly
	UniqueID    string
	DisplayName string
	// DefinitionName names the collection definition the classes opted into.
	DefinitionName string
	Traits         Traits

	// DisableParallelization runs the collection after all parallel
	// collections, one at a time.
	DisableParallelization bool

	// Fixtures are created once for the collection. ClassFixtures are
	// declared by the collection definition and applied to every class.
	Fixtures      []fixtures.Definition
	ClassFixtures []fixtures.Definition
	Classes       []*Class

	ClassOrderer    ClassOrderer
	TestCaseOrderer TestCaseOrderer
}

// NewClass adds a class to c.
func (c *Collection) NewClass(name string) *Class {
	k := &Class{
		Collection: c,
		UniqueID:   ClassID(c.UniqueID, name),
		Name:       name,
	}
	c.Classes = append(c.Classes, k)
	return k
}

// ParamRole tells the class runner how to supply a constructor argument.
type ParamRole int

const (
	// RoleFixture is resolved by fixture lookup.
	RoleFixture ParamRole = iota
	// RoleContextAccessor receives an accessor for the current test context.
	RoleContextAccessor
	// RoleOutputHelper receives the per-test output helper.
	RoleOutputHelper
	// RoleUnresolved could not be classified by discovery.
	RoleUnresolved
)

func (r ParamRole) String() string {
	switch r {
	case RoleFixture:
		return "fixture"
	case RoleContextAccessor:
		return "context-accessor"
	case RoleOutputHelper:
		return "output-helper"
	default:
		return "unresolved"
	}
}

// Parameter describes one constructor parameter.
type Parameter struct {
	Name string
	Role ParamRole
	// Type is the fixture type for RoleFixture parameters.
	Type reflect.Type
	// Optional parameters fall back to Default when unresolved.
	Optional bool
	Default  any
}

// TypeName returns the display name of the parameter type.
func (p Parameter) TypeName() string {
	if p.Type == nil {
		return "<unknown>"
	}
	return p.Type.String()
}

// Constructor builds a test class instance from resolved arguments.
type Constructor struct {
	Params []Parameter
	New    func(ctx context.Context, args []any) (any, error)
}

// Class is a test class: one instance is constructed per test.
type Class struct {
	Collection *Collection
	UniqueID   string
	Name       string
	Traits     Traits

	// Constructors lists the public constructors and must hold exactly one.
	// Discovery supplies an empty parameterless constructor for classes that
	// declare none. A constructor with a nil New yields a nil instance.
	Constructors []*Constructor

	ClassFixtures []fixtures.Definition
	// CollectionFixtures is only ever populated by mistake: collection
	// fixtures belong on the collection definition.
	CollectionFixtures []fixtures.Definition

	Methods []*Method
	Orderer TestCaseOrderer
}

// NewMethod adds a method to k.
func (k *Class) NewMethod(name string, returns ReturnKind, invoke InvokeFunc) *Method {
	m := &Method{
		Class:    k,
		UniqueID: MethodID(k.UniqueID, name),
		Name:     name,
		Returns:  returns,
		Invoke:   invoke,
	}
	k.Methods = append(k.Methods, m)
	return m
}

// TestCases returns every case of every method in declaration order.
func (k *Class) TestCases() []*TestCase {
	var out []*TestCase
	for _, m := range k.Methods {
		out = append(out, m.Cases...)
	}
	return out
}

// ReturnKind describes what a test method gives back to the runner.
type ReturnKind int

const (
	// ReturnsNothing is a synchronous method.
	ReturnsNothing ReturnKind = iota
	// ReturnsTask is an awaitable method.
	ReturnsTask
	// ReturnsFireAndForget starts asynchronous work without handing back
	// anything to await. Such methods are always failed.
	ReturnsFireAndForget
)

// InvokeFunc runs a test method on instance. Synchronous methods return a nil
// Task.
type InvokeFunc func(ctx context.Context, instance any, args []any) (Task, error)

// Method is a test method.
type Method struct {
	Class    *Class
	UniqueID string
	Name     string
	Returns  ReturnKind
	Invoke   InvokeFunc
	Traits   Traits
	Cases    []*TestCase
}

// NewCase adds a test case. Arguments are part of the case identity, see
// ArgIdentity.
func (m *Method) NewCase(displayName string, args ...any) *TestCase {
	identity := make([]string, 0, len(args)+1)
	identity = append(identity, displayName)
	for _, a := range args {
		identity = append(identity, ArgIdentity(a))
	}
	tc := &TestCase{
		Method:      m,
		UniqueID:    TestCaseID(m.UniqueID, identity...),
		DisplayName: displayName,
		Args:        args,
	}
	m.Cases = append(m.Cases, tc)
	return tc
}

// TestCase is one directly executable invocation of a method.
type TestCase struct {
	Method      *Method
	UniqueID    string
	DisplayName string
	Explicit    bool
	// SkipReason statically skips the case when non-empty.
	SkipReason string
	// SkipFunc computes a skip reason at run time. An error is reported as a
	// discovery-time failure.
	SkipFunc func(ctx context.Context) (string, error)
	// Timeout in milliseconds; zero means none.
	Timeout    int
	Traits     Traits
	SourceFile string
	SourceLine int
	Args       []any
}

// AllTraits merges class, method and case traits.
func (tc *TestCase) AllTraits() Traits {
	var t Traits
	if tc.Method != nil {
		if tc.Method.Class != nil {
			t = t.Merge(tc.Method.Class.Traits)
		}
		t = t.Merge(tc.Method.Traits)
	}
	return t.Merge(tc.Traits)
}

// Test is a single execution of a test case.
type Test struct {
	Case        *TestCase
	UniqueID    string
	DisplayName string
	Index       int
}

// NewTest returns the index'th test of tc.
func NewTest(tc *TestCase, index int) *Test {
	return &Test{
		Case:        tc,
		UniqueID:    TestID(tc.UniqueID, index),
		DisplayName: tc.DisplayName,
		Index:       index,
	}
}
