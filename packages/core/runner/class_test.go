package runner

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/hitrun/packages/core/fixtures"
	"github.com/abdul-hamid-achik/hitrun/packages/core/messages"
	"github.com/abdul-hamid-achik/hitrun/packages/core/model"
	"github.com/abdul-hamid-achik/hitrun/packages/core/testcontext"
)

type database struct {
	dsn      string
	disposed bool
	err      error
}

func (d *database) Dispose() error {
	d.disposed = true
	return d.err
}

type cache struct{ size int }

type server struct{ addr string }

func TestClassPipelineErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(k *model.Class)
		want  string
	}{
		{
			name: "multiple constructors",
			setup: func(k *model.Class) {
				k.Constructors = []*model.Constructor{{}, {}}
			},
			want: "A test class may only define a single public constructor",
		},
		{
			name: "no constructor",
			setup: func(k *model.Class) {
				k.Constructors = nil
			},
			want: "does not define a public constructor",
		},
		{
			name: "collection fixtures on class",
			setup: func(k *model.Class) {
				k.CollectionFixtures = []fixtures.Definition{fixtures.Define(func(context.Context, fixtures.Lookup) (*cache, error) {
					return &cache{}, nil
				})}
			},
			want: "may not declare collection fixtures",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, k := newClass("pipeline")
			tt.setup(k)
			m := k.NewMethod("m", model.ReturnsNothing, syncBody(func(context.Context, any) error {
				t.Fatal("body must not run")
				return nil
			}))
			m.NewCase("one")
			m.NewCase("two")

			res, sink := runAssembly(t, a, nil)

			assert.Equal(t, 2, res.Summary.Failed)
			for _, f := range messagesOf[messages.TestFailed](sink) {
				assert.Equal(t, "*runner.PipelineError", f.ExceptionTypes[0])
				assert.Contains(t, f.Messages[0], tt.want)
			}
			assert.Len(t, messagesOf[messages.TestMethodStarting](sink), 1)
			assert.Len(t, messagesOf[messages.TestMethodFinished](sink), 1)
			assert.Empty(t, messagesOf[messages.TestClassConstructionStarting](sink))
		})
	}
}

func TestConstructorParameterResolution(t *testing.T) {
	a, k := newClass("params")
	col := k.Collection

	a.Fixtures = []fixtures.Definition{fixtures.Define(func(context.Context, fixtures.Lookup) (*server, error) {
		return &server{addr: "127.0.0.1:8080"}, nil
	})}
	db := &database{dsn: "sqlite://:memory:"}
	col.Fixtures = []fixtures.Definition{fixtures.Define(func(_ context.Context, l fixtures.Lookup) (*database, error) {
		srv, ok := fixtures.Get[*server](l)
		if !ok {
			return nil, errors.New("server fixture missing")
		}
		db.dsn += "?host=" + srv.addr
		return db, nil
	})}
	k.ClassFixtures = []fixtures.Definition{fixtures.Define(func(context.Context, fixtures.Lookup) (*cache, error) {
		return &cache{size: 16}, nil
	})}

	var got []any
	k.Constructors = []*model.Constructor{{
		Params: []model.Parameter{
			{Name: "tc", Role: model.RoleContextAccessor},
			{Name: "out", Role: model.RoleOutputHelper},
			{Name: "srv", Role: model.RoleFixture, Type: reflect.TypeOf((**server)(nil)).Elem()},
			{Name: "db", Role: model.RoleFixture, Type: reflect.TypeOf((**database)(nil)).Elem()},
			{Name: "cache", Role: model.RoleFixture, Type: reflect.TypeOf((**cache)(nil)).Elem()},
			{Name: "retries", Role: model.RoleUnresolved, Optional: true, Default: 3},
		},
		New: func(_ context.Context, args []any) (any, error) {
			got = args
			args[1].(*testcontext.OutputHelper).WriteLine("constructed")
			return nil, nil
		},
	}}
	k.NewMethod("m", model.ReturnsNothing, syncBody(pass)).NewCase("m")

	res, sink := runAssembly(t, a, nil)

	require.Equal(t, 1, res.Summary.Passed())
	require.Len(t, got, 6)
	tctx, ok := got[0].(*testcontext.Context)
	require.True(t, ok)
	assert.Equal(t, "m", tctx.Test.DisplayName)
	assert.Equal(t, "127.0.0.1:8080", got[2].(*server).addr)
	assert.Same(t, db, got[3])
	assert.Equal(t, 16, got[4].(*cache).size)
	assert.Equal(t, 3, got[5])
	assert.Equal(t, "sqlite://:memory:?host=127.0.0.1:8080", db.dsn)
	assert.True(t, db.disposed, "collection fixtures are disposed after the collection")
	assert.Equal(t, "constructed\n", messagesOf[messages.TestPassed](sink)[0].Output)
}

func TestMissingConstructorParameters(t *testing.T) {
	a, k := newClass("missing")
	k.Constructors = []*model.Constructor{{
		Params: []model.Parameter{
			{Name: "db", Role: model.RoleFixture, Type: reflect.TypeOf((**database)(nil)).Elem()},
			{Name: "out", Role: model.RoleOutputHelper},
			{Name: "cache", Role: model.RoleFixture, Type: reflect.TypeOf((**cache)(nil)).Elem()},
			{Name: "mystery", Role: model.RoleUnresolved},
		},
		New: func(context.Context, []any) (any, error) {
			t.Fatal("constructor must not run")
			return nil, nil
		},
	}}
	k.NewMethod("m", model.ReturnsNothing, syncBody(pass)).NewCase("m")

	res, sink := runAssembly(t, a, nil)

	assert.Equal(t, 1, res.Summary.Failed)
	failed := messagesOf[messages.TestFailed](sink)
	require.Len(t, failed, 1)
	assert.Equal(t,
		"The following constructor parameters did not have matching fixture data: *runner.database db, *runner.cache cache, <unknown> mystery",
		failed[0].Messages[0])
}

func TestOrdererFailure(t *testing.T) {
	a, k := newClass("orderer")
	k.Orderer = model.TestCaseOrdererFunc(func([]*model.TestCase) ([]*model.TestCase, error) {
		return nil, errors.New("cannot order")
	})
	k.NewMethod("m", model.ReturnsNothing, syncBody(pass)).NewCase("m")

	res, sink := runAssembly(t, a, nil)

	assert.Zero(t, res.Summary.Total)
	errs := messagesOf[messages.ErrorMessage](sink)
	require.Len(t, errs, 1)
	assert.Equal(t, "*runner.PipelineError", errs[0].ExceptionTypes[0])
	assert.Contains(t, errs[0].Messages[0], "cannot order")
	assert.Empty(t, messagesOf[messages.TestMethodStarting](sink))
	assert.Len(t, messagesOf[messages.TestClassStarting](sink), 1)
	assert.Len(t, messagesOf[messages.TestClassFinished](sink), 1)
}

func TestOrdererPanicIsPipelineError(t *testing.T) {
	a, k := newClass("orderer-panic")
	k.Orderer = model.TestCaseOrdererFunc(func([]*model.TestCase) ([]*model.TestCase, error) {
		panic("orderer bug")
	})
	k.NewMethod("m", model.ReturnsNothing, syncBody(pass)).NewCase("m")

	res, sink := runAssembly(t, a, nil)
	assert.Zero(t, res.Summary.Total)
	require.Len(t, messagesOf[messages.ErrorMessage](sink), 1)
}

func TestCaseOrdering(t *testing.T) {
	a, k := newClass("ordering")
	var ran []string
	record := func(name string) model.InvokeFunc {
		return syncBody(func(context.Context, any) error {
			ran = append(ran, name)
			return nil
		})
	}
	k.NewMethod("b", model.ReturnsNothing, record("b")).NewCase("b")
	k.NewMethod("a", model.ReturnsNothing, record("a")).NewCase("a")
	k.NewMethod("c", model.ReturnsNothing, record("c")).NewCase("c")

	_, _ = runAssembly(t, a, &Options{TestCaseOrderer: model.DisplayNameOrderer{}})
	assert.Equal(t, []string{"a", "b", "c"}, ran)

	ran = nil
	k.Collection.TestCaseOrderer = model.DeclarationOrderer{}
	_, _ = runAssembly(t, a, &Options{TestCaseOrderer: model.DisplayNameOrderer{}})
	assert.Equal(t, []string{"b", "a", "c"}, ran, "collection orderer wins over the run default")
}

func TestGroupByMethod(t *testing.T) {
	_, k := newClass("group")
	m1 := k.NewMethod("m1", model.ReturnsNothing, nil)
	m2 := k.NewMethod("m2", model.ReturnsNothing, nil)
	a1 := m1.NewCase("a1")
	b1 := m2.NewCase("b1")
	a2 := m1.NewCase("a2")

	groups := groupByMethod([]*model.TestCase{a1, b1, a2})
	require.Len(t, groups, 2)
	assert.Same(t, m1, groups[0].method)
	assert.Equal(t, []*model.TestCase{a1, a2}, groups[0].cases)
	assert.Same(t, m2, groups[1].method)
}

func TestFixtureCleanupFailures(t *testing.T) {
	a, k := newClass("cleanup")
	failing := func(msg string) fixtures.Definition {
		return fixtures.Define(func(context.Context, fixtures.Lookup) (*database, error) {
			return &database{err: errors.New(msg)}, nil
		})
	}
	k.ClassFixtures = []fixtures.Definition{failing("class teardown")}
	k.Collection.Fixtures = []fixtures.Definition{fixtures.Define(func(context.Context, fixtures.Lookup) (*cache, error) {
		return &cache{}, nil
	})}
	a.Fixtures = []fixtures.Definition{failing("assembly teardown")}
	k.NewMethod("m", model.ReturnsNothing, syncBody(pass)).NewCase("m")

	res, sink := runAssembly(t, a, nil)

	assert.Equal(t, 1, res.Summary.Passed(), "cleanup failures do not change test results")
	classFailures := messagesOf[messages.TestClassCleanupFailure](sink)
	require.Len(t, classFailures, 1)
	assert.Equal(t, "class teardown", classFailures[0].Messages[0])

	assemblyFailures := messagesOf[messages.TestAssemblyCleanupFailure](sink)
	require.Len(t, assemblyFailures, 1)
	assert.Equal(t, "assembly teardown", assemblyFailures[0].Messages[0])
	assert.Empty(t, messagesOf[messages.TestCollectionCleanupFailure](sink))

	cleanupIdx := indexOf(sink, func(m messages.Message) bool { _, ok := m.(messages.TestClassCleanupFailure); return ok })
	finishedIdx := indexOf(sink, func(m messages.Message) bool { _, ok := m.(messages.TestClassFinished); return ok })
	assert.Less(t, cleanupIdx, finishedIdx)
}

func TestCleanupFailureCarriesEarlierScopeErrors(t *testing.T) {
	a, k := newClass("cleanup-combined")
	k.ClassFixtures = []fixtures.Definition{
		fixtures.Define(func(context.Context, fixtures.Lookup) (*cache, error) {
			return nil, errors.New("cache unavailable")
		}),
		fixtures.Define(func(context.Context, fixtures.Lookup) (*database, error) {
			return &database{err: errors.New("class teardown")}, nil
		}),
	}
	k.NewMethod("m", model.ReturnsNothing, syncBody(pass)).NewCase("m")

	res, sink := runAssembly(t, a, nil)

	assert.Equal(t, 1, res.Summary.Failed)
	failures := messagesOf[messages.TestClassCleanupFailure](sink)
	require.Len(t, failures, 1)
	md := failures[0].ErrorMetadata
	require.Len(t, md.Messages, 3)
	assert.Equal(t, "*aggregator.AggregateError", md.ExceptionTypes[0])
	assert.Equal(t, "cache unavailable", md.Messages[1], "earlier errors come first")
	assert.Equal(t, "class teardown", md.Messages[2])
	assert.Equal(t, []int{-1, 0, 0}, md.ExceptionParentIndices)
}

func TestScopeErrorsAloneAreNotCleanupFailures(t *testing.T) {
	a, k := newClass("init-only")
	k.ClassFixtures = []fixtures.Definition{fixtures.Define(func(context.Context, fixtures.Lookup) (*cache, error) {
		return nil, errors.New("cache unavailable")
	})}
	k.NewMethod("m", model.ReturnsNothing, syncBody(pass)).NewCase("m")

	res, sink := runAssembly(t, a, nil)

	assert.Equal(t, 1, res.Summary.Failed)
	assert.Empty(t, messagesOf[messages.TestClassCleanupFailure](sink))
}

func TestCollectionFixtureInitFailureFailsEveryTest(t *testing.T) {
	a, k := newClass("colinit")
	k.Collection.Fixtures = []fixtures.Definition{fixtures.Define(func(context.Context, fixtures.Lookup) (*cache, error) {
		return nil, errors.New("redis unavailable")
	})}
	m := k.NewMethod("m", model.ReturnsNothing, syncBody(pass))
	m.NewCase("one")
	m.NewCase("two")
	other := k.Collection.NewClass("Other")
	other.Constructors = []*model.Constructor{{}}
	other.NewMethod("x", model.ReturnsNothing, syncBody(pass)).NewCase("x")

	res, sink := runAssembly(t, a, nil)

	assert.Equal(t, 3, res.Summary.Failed)
	for _, f := range messagesOf[messages.TestFailed](sink) {
		assert.Equal(t, "redis unavailable", f.Messages[0])
	}
}

func TestWarningOutsideTestBecomesDiagnostic(t *testing.T) {
	a, k := newClass("warn-fixture")
	k.Collection.Fixtures = []fixtures.Definition{fixtures.Define(func(ctx context.Context, _ fixtures.Lookup) (*cache, error) {
		testcontext.AddWarning(ctx, "cache is cold")
		return &cache{}, nil
	})}
	k.NewMethod("m", model.ReturnsNothing, syncBody(pass)).NewCase("m")

	_, sink := runAssembly(t, a, nil)

	diags := messagesOf[messages.DiagnosticMessage](sink)
	require.Len(t, diags, 1)
	assert.Contains(t, diags[0].Message, "pipeline stage = Initialization")
	assert.Contains(t, diags[0].Message, "cache is cold")
	for _, p := range messagesOf[messages.TestPassed](sink) {
		assert.Nil(t, p.Warnings)
	}
	assert.False(t, strings.Contains(messagesOf[messages.TestFinished](sink)[0].Output, "cache is cold"))
}
