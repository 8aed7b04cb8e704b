package fixtures

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/hitrun/packages/core/aggregator"
)

type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(s string) {
	j.mu.Lock()
	j.entries = append(j.entries, s)
	j.mu.Unlock()
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

type dbFixture struct {
	j   *journal
	err error
}

func (d *dbFixture) InitializeAsync(ctx context.Context) error {
	d.j.add("db.init")
	return nil
}

func (d *dbFixture) Dispose() error {
	d.j.add("db.dispose")
	return d.err
}

type cacheFixture struct {
	j  *journal
	db *dbFixture
}

func (c *cacheFixture) Dispose() error {
	c.j.add("cache.dispose")
	return errors.New("cache dispose failed")
}

func (c *cacheFixture) DisposeAsync(ctx context.Context) error {
	c.j.add("cache.disposeAsync")
	return nil
}

type brokenFixture struct{}

func TestManager_InitializeAndGet(t *testing.T) {
	j := &journal{}
	m := NewManager(ScopeCollection, nil)
	agg := aggregator.New()

	m.InitializeAsync(context.Background(), []Definition{
		Define(func(ctx context.Context, l Lookup) (*dbFixture, error) { return &dbFixture{j: j}, nil }),
	}, agg)

	require.False(t, agg.HasErrors())
	db, ok := Get[*dbFixture](m)
	require.True(t, ok)
	assert.Same(t, j, db.j)
	assert.Equal(t, []string{"db.init"}, j.list())

	_, ok = Get[*cacheFixture](m)
	assert.False(t, ok)
}

func TestManager_ParentChain(t *testing.T) {
	j := &journal{}
	agg := aggregator.New()

	assembly := NewManager(ScopeAssembly, nil)
	assembly.InitializeAsync(context.Background(), []Definition{
		Define(func(ctx context.Context, l Lookup) (*dbFixture, error) { return &dbFixture{j: j}, nil }),
	}, agg)

	class := NewManager(ScopeClass, NewManager(ScopeCollection, assembly))
	class.InitializeAsync(context.Background(), []Definition{
		Define(func(ctx context.Context, l Lookup) (*cacheFixture, error) {
			db, ok := Get[*dbFixture](l)
			if !ok {
				return nil, errors.New("db missing")
			}
			return &cacheFixture{j: j, db: db}, nil
		}),
	}, agg)

	require.False(t, agg.HasErrors())
	cache, ok := Get[*cacheFixture](class)
	require.True(t, ok)
	db, _ := Get[*dbFixture](assembly)
	assert.Same(t, db, cache.db)

	_, ok = Get[*cacheFixture](assembly)
	assert.False(t, ok, "parents never see child fixtures")
}

func TestManager_OnlyOneInstancePerScope(t *testing.T) {
	var built atomic.Int32
	def := Define(func(ctx context.Context, l Lookup) (*brokenFixture, error) {
		built.Add(1)
		return &brokenFixture{}, nil
	})

	m := NewManager(ScopeAssembly, nil)
	agg := aggregator.New()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.InitializeAsync(context.Background(), []Definition{def}, agg)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), built.Load())
	assert.Equal(t, 1, m.Len())
	assert.False(t, agg.HasErrors())
}

func TestManager_FailuresDoNotStopOthers(t *testing.T) {
	j := &journal{}
	m := NewManager(ScopeClass, nil)
	agg := aggregator.New()

	m.InitializeAsync(context.Background(), []Definition{
		Define(func(ctx context.Context, l Lookup) (*brokenFixture, error) { return nil, errors.New("ctor failed") }),
		Define(func(ctx context.Context, l Lookup) (*dbFixture, error) { panic("ctor panicked") }),
		Define(func(ctx context.Context, l Lookup) (*cacheFixture, error) { return &cacheFixture{j: j}, nil }),
	}, agg)

	errs := agg.Errors()
	require.Len(t, errs, 2)
	assert.EqualError(t, errs[0], "ctor failed")
	var pe *aggregator.PanicError
	assert.ErrorAs(t, errs[1], &pe)

	_, ok := Get[*brokenFixture](m)
	assert.False(t, ok)
	_, ok = Get[*cacheFixture](m)
	assert.True(t, ok)

	m.DisposeAsync(context.Background(), agg)
	assert.Equal(t, []string{"cache.disposeAsync"}, j.list(), "only built fixtures are disposed")
}

func TestManager_DisposeOrderAndAggregation(t *testing.T) {
	j := &journal{}
	m := NewManager(ScopeCollection, nil)
	agg := aggregator.New()

	m.InitializeAsync(context.Background(), []Definition{
		Define(func(ctx context.Context, l Lookup) (*dbFixture, error) {
			return &dbFixture{j: j, err: errors.New("db dispose failed")}, nil
		}),
		Define(func(ctx context.Context, l Lookup) (*cacheFixture, error) { return &cacheFixture{j: j}, nil }),
	}, agg)
	require.False(t, agg.HasErrors())

	agg.Add(errors.New("test failed"))
	m.DisposeAsync(context.Background(), agg)

	assert.Equal(t, []string{"db.init", "db.dispose", "cache.disposeAsync"}, j.list())

	errs := agg.Errors()
	require.Len(t, errs, 2)
	assert.EqualError(t, errs[0], "test failed")
	assert.EqualError(t, errs[1], "db dispose failed")
}

func TestManager_DisposeIsIdempotent(t *testing.T) {
	j := &journal{}
	m := NewManager(ScopeAssembly, nil)
	agg := aggregator.New()
	m.InitializeAsync(context.Background(), []Definition{
		Define(func(ctx context.Context, l Lookup) (*dbFixture, error) { return &dbFixture{j: j}, nil }),
	}, agg)

	m.DisposeAsync(context.Background(), agg)
	m.DisposeAsync(context.Background(), agg)

	assert.Equal(t, []string{"db.init", "db.dispose"}, j.list())

	m.InitializeAsync(context.Background(), []Definition{
		Define(func(ctx context.Context, l Lookup) (*cacheFixture, error) { return &cacheFixture{j: j}, nil }),
	}, agg)
	assert.True(t, agg.HasErrors(), "a disposed scope refuses new fixtures")
}

func TestManager_InvalidDefinition(t *testing.T) {
	m := NewManager(ScopeClass, nil)
	agg := aggregator.New()
	m.InitializeAsync(context.Background(), []Definition{{}}, agg)
	assert.True(t, agg.HasErrors())
}
