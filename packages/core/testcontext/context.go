package testcontext

import (
	"context"
	"fmt"
	"sync"

	"github.com/abdul-hamid-achik/hitrun/packages/core/model"
)

type ctxKey struct{}

// DiagnosticFunc receives messages that could not be attached to a test.
type DiagnosticFunc func(msg string)

// Context describes what the engine is doing right now. It is immutable
// apart from the test-scoped state (warnings, test state) which only a
// test-level Context owns.
type Context struct {
	Stage      Stage
	Assembly   *model.Assembly
	Collection *model.Collection
	Class      *model.Class
	Method     *model.Method
	TestCase   *model.TestCase
	Test       *model.Test

	store      *Store
	diagnostic DiagnosticFunc
	test       *testScope
}

type testScope struct {
	mu       sync.Mutex
	state    TestState
	warnings []string
	output   *OutputHelper
	cancel   context.CancelFunc
}

// New returns the root context of a run.
func New(store *Store, diagnostic DiagnosticFunc) *Context {
	if store == nil {
		store = NewStore()
	}
	return &Context{Stage: StageInitialization, store: store, diagnostic: diagnostic}
}

func (c *Context) clone() *Context {
	cp := *c
	return &cp
}

// WithStage returns a copy of c in the given stage.
func (c *Context) WithStage(stage Stage) *Context {
	cp := c.clone()
	cp.Stage = stage
	return cp
}

func (c *Context) ForAssembly(a *model.Assembly) *Context {
	cp := c.clone()
	cp.Stage = StageAssemblyExecution
	cp.Assembly = a
	return cp
}

func (c *Context) ForCollection(col *model.Collection) *Context {
	cp := c.clone()
	cp.Stage = StageCollectionExecution
	cp.Collection = col
	return cp
}

func (c *Context) ForClass(k *model.Class) *Context {
	cp := c.clone()
	cp.Stage = StageClassExecution
	cp.Class = k
	return cp
}

func (c *Context) ForMethod(m *model.Method) *Context {
	cp := c.clone()
	cp.Stage = StageMethodExecution
	cp.Method = m
	return cp
}

func (c *Context) ForTestCase(tc *model.TestCase) *Context {
	cp := c.clone()
	cp.Stage = StageTestCaseExecution
	cp.TestCase = tc
	cp.test = nil
	return cp
}

// ForTest returns the context of a single test. cancel aborts the test's
// own context.Context.
func (c *Context) ForTest(t *model.Test, output *OutputHelper, cancel context.CancelFunc) *Context {
	cp := c.clone()
	cp.Stage = StageTestExecution
	cp.Test = t
	cp.test = &testScope{output: output, cancel: cancel}
	return cp
}

// Store returns the run-wide key/value store.
func (c *Context) Store() *Store {
	return c.store
}

// Output returns the current test's output helper, or nil outside a test.
func (c *Context) Output() *OutputHelper {
	if c.test == nil {
		return nil
	}
	return c.test.output
}

// SetTestState records the lifecycle state of the current test.
func (c *Context) SetTestState(s TestState) {
	if c.test == nil {
		return
	}
	c.test.mu.Lock()
	c.test.state = s
	c.test.mu.Unlock()
}

// TestState returns the lifecycle state of the current test.
func (c *Context) TestState() TestState {
	if c.test == nil {
		return TestNotStarted
	}
	c.test.mu.Lock()
	defer c.test.mu.Unlock()
	return c.test.state
}

func (c *Context) testActive() bool {
	if c.test == nil {
		return false
	}
	switch c.TestState() {
	case TestConstructing, TestRunning, TestDisposing:
		return true
	}
	return false
}

// AddWarning attaches msg to the running test, or reports it as a
// diagnostic when no test is running.
func (c *Context) AddWarning(msg string) {
	if c.testActive() {
		c.test.mu.Lock()
		c.test.warnings = append(c.test.warnings, msg)
		c.test.mu.Unlock()
		return
	}
	if c.diagnostic != nil {
		c.diagnostic(fmt.Sprintf("Attempted to add a test warning while no test was running (pipeline stage = %s); message: %s", c.Stage, msg))
	}
}

// Warnings returns the warnings recorded for the current test.
func (c *Context) Warnings() []string {
	if c.test == nil {
		return nil
	}
	c.test.mu.Lock()
	defer c.test.mu.Unlock()
	if len(c.test.warnings) == 0 {
		return nil
	}
	return append([]string(nil), c.test.warnings...)
}

// CancelCurrentTest cancels the running test's context. It does nothing
// outside a test.
func (c *Context) CancelCurrentTest() {
	if c.test != nil && c.test.cancel != nil {
		c.test.cancel()
	}
}

// With stores c in ctx.
func With(ctx context.Context, c *Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// FromContext returns the engine context stored in ctx, or nil.
func FromContext(ctx context.Context) *Context {
	c, _ := ctx.Value(ctxKey{}).(*Context)
	return c
}

// AddWarning records a warning through the context stored in ctx.
func AddWarning(ctx context.Context, msg string) {
	if c := FromContext(ctx); c != nil {
		c.AddWarning(msg)
	}
}

// Output returns the output helper of the test running in ctx, or nil.
func Output(ctx context.Context) *OutputHelper {
	if c := FromContext(ctx); c != nil {
		return c.Output()
	}
	return nil
}

// CancelCurrentTest cancels the test running in ctx.
func CancelCurrentTest(ctx context.Context) {
	if c := FromContext(ctx); c != nil {
		c.CancelCurrentTest()
	}
}
