package fixtures

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/abdul-hamid-achik/hitrun/packages/core/aggregator"
	"github.com/abdul-hamid-achik/hitrun/packages/core/lifetime"
)

// Scope names the level of the hierarchy a Manager serves.
type Scope string

const (
	ScopeAssembly   Scope = "assembly"
	ScopeCollection Scope = "collection"
	ScopeClass      Scope = "class"
)

// Lookup resolves fixture instances by type.
type Lookup interface {
	GetFixture(t reflect.Type) (any, bool)
}

// Definition describes how to build one fixture type. New may read fixtures
// of enclosing scopes through the Lookup it receives.
type Definition struct {
	Type reflect.Type
	New  func(ctx context.Context, l Lookup) (any, error)
}

// Name returns the fixture type name used in reports.
func (d Definition) Name() string {
	if d.Type == nil {
		return "<nil>"
	}
	return d.Type.String()
}

// Define builds a Definition keyed by T.
func Define[T any](newFn func(ctx context.Context, l Lookup) (T, error)) Definition {
	return Definition{
		Type: reflect.TypeOf((*T)(nil)).Elem(),
		New: func(ctx context.Context, l Lookup) (any, error) {
			return newFn(ctx, l)
		},
	}
}

// Get returns the fixture of type T from l.
func Get[T any](l Lookup) (T, bool) {
	var zero T
	v, ok := l.GetFixture(reflect.TypeOf((*T)(nil)).Elem())
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

type entry struct {
	def   Definition
	ready chan struct{}
	value any
	built bool
	err   error
}

// Manager owns the fixtures of one scope.
type Manager struct {
	scope  Scope
	parent *Manager

	mu       sync.Mutex
	entries  map[reflect.Type]*entry
	order    []*entry
	disposed bool
}

// NewManager creates a manager for scope whose lookups fall back to parent.
func NewManager(scope Scope, parent *Manager) *Manager {
	return &Manager{
		scope:   scope,
		parent:  parent,
		entries: make(map[reflect.Type]*entry),
	}
}

// Scope returns the scope this manager serves.
func (m *Manager) Scope() Scope {
	return m.scope
}

// Parent returns the enclosing scope's manager, or nil.
func (m *Manager) Parent() *Manager {
	return m.parent
}

// claim returns the entry for def and whether the caller must build it.
func (m *Manager) claim(def Definition) (*entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.disposed {
		return nil, false, fmt.Errorf("%s fixture scope already disposed", m.scope)
	}
	if e, ok := m.entries[def.Type]; ok {
		return e, false, nil
	}
	e := &entry{def: def, ready: make(chan struct{})}
	m.entries[def.Type] = e
	m.order = append(m.order, e)
	return e, true, nil
}

// InitializeAsync creates and initializes every definition not yet present in
// this scope. Failures are recorded in agg and never stop the remaining
// definitions. Types already being built by another goroutine are awaited.
func (m *Manager) InitializeAsync(ctx context.Context, defs []Definition, agg *aggregator.Aggregator) {
	for _, def := range defs {
		if def.Type == nil || def.New == nil {
			agg.Add(fmt.Errorf("invalid %s fixture definition %s", m.scope, def.Name()))
			continue
		}

		e, owner, err := m.claim(def)
		if err != nil {
			agg.Add(err)
			continue
		}
		if !owner {
			select {
			case <-e.ready:
			case <-ctx.Done():
				agg.Add(ctx.Err())
			}
			continue
		}
		m.build(ctx, e, agg)
	}
}

func (m *Manager) build(ctx context.Context, e *entry, agg *aggregator.Aggregator) {
	defer close(e.ready)

	var value any
	err := aggregator.Try(func() error {
		var err error
		value, err = e.def.New(ctx, m)
		return err
	})
	if err != nil {
		e.err = aggregator.Normalize(err)
		agg.Add(e.err)
		return
	}
	if value == nil {
		e.err = fmt.Errorf("%s fixture %s constructor returned nil", m.scope, e.def.Name())
		agg.Add(e.err)
		return
	}

	m.mu.Lock()
	e.value = value
	e.built = true
	m.mu.Unlock()

	if err := aggregator.Try(func() error { return lifetime.Initialize(ctx, value) }); err != nil {
		e.err = aggregator.Normalize(err)
		agg.Add(e.err)
	}
}

// GetFixture returns the instance registered for t in this scope or any
// enclosing scope. Instances that failed to build or initialize are not
// returned.
func (m *Manager) GetFixture(t reflect.Type) (any, bool) {
	for cur := m; cur != nil; cur = cur.parent {
		if v, ok := cur.local(t); ok {
			return v, true
		}
	}
	return nil, false
}

func (m *Manager) local(t reflect.Type) (any, bool) {
	m.mu.Lock()
	e, ok := m.entries[t]
	m.mu.Unlock()
	if !ok {
		return nil, false
	}
	select {
	case <-e.ready:
	default:
		return nil, false
	}
	if !e.built || e.err != nil {
		return nil, false
	}
	return e.value, true
}

// Len returns the number of fixture types claimed in this scope.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.order)
}

// DisposeAsync disposes every instance built in this scope, in creation
// order, recording failures in agg after anything it already holds. Only the
// first call has any effect.
func (m *Manager) DisposeAsync(ctx context.Context, agg *aggregator.Aggregator) {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return
	}
	m.disposed = true
	order := make([]*entry, len(m.order))
	copy(order, m.order)
	m.mu.Unlock()

	for _, e := range order {
		<-e.ready
		if !e.built {
			continue
		}
		value := e.value
		agg.RunContext(ctx, func(ctx context.Context) error {
			return lifetime.Dispose(ctx, value)
		})
	}
}
