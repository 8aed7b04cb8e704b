package model

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildAssembly() *Assembly {
	a := NewAssembly("plans", "/tmp/plans.yaml", "/tmp/hitrun.yaml")
	c := a.NewCollection("api")
	k := c.NewClass("Users")
	m := k.NewMethod("create", ReturnsNothing, nil)
	m.NewCase("create(1)", 1)
	m.NewCase("create(2)", 2)
	return a
}

func TestUniqueIDsAreDeterministic(t *testing.T) {
	a1 := buildAssembly()
	a2 := buildAssembly()

	c1 := a1.Collections[0].Classes[0].TestCases()
	c2 := a2.Collections[0].Classes[0].TestCases()
	require.Len(t, c1, 2)
	require.Len(t, c2, 2)

	assert.Equal(t, a1.UniqueID, a2.UniqueID)
	assert.Equal(t, c1[0].UniqueID, c2[0].UniqueID)
	assert.NotEqual(t, c1[0].UniqueID, c1[1].UniqueID)
	assert.Len(t, a1.UniqueID, 64)
}

type connection struct {
	Name string
	Port *int
}

type namedHandle struct {
	name string
	f    *os.File
}

func (h *namedHandle) Identity() string { return h.name }

func TestCaseIDsIgnoreArgumentAddresses(t *testing.T) {
	caseOf := func(args ...any) *TestCase {
		a := NewAssembly("plans", "/tmp/plans.yaml", "")
		m := a.NewCollection("api").NewClass("Users").NewMethod("connect", ReturnsNothing, nil)
		return m.NewCase("connect", args...)
	}
	port1, port2 := 5432, 5432

	t.Run("pointers to equal values", func(t *testing.T) {
		assert.Equal(t,
			caseOf(&connection{Name: "db", Port: &port1}).UniqueID,
			caseOf(&connection{Name: "db", Port: &port2}).UniqueID)
	})

	t.Run("different values differ", func(t *testing.T) {
		other := 5433
		assert.NotEqual(t,
			caseOf(&connection{Name: "db", Port: &port1}).UniqueID,
			caseOf(&connection{Name: "db", Port: &other}).UniqueID)
	})

	t.Run("self identified handles", func(t *testing.T) {
		f1, err := os.CreateTemp(t.TempDir(), "a")
		require.NoError(t, err)
		defer f1.Close()
		f2, err := os.CreateTemp(t.TempDir(), "b")
		require.NoError(t, err)
		defer f2.Close()

		assert.Equal(t,
			caseOf(&namedHandle{name: "log", f: f1}).UniqueID,
			caseOf(&namedHandle{name: "log", f: f2}).UniqueID)
		assert.NotEqual(t,
			caseOf(&namedHandle{name: "log", f: f1}).UniqueID,
			caseOf(&namedHandle{name: "audit", f: f1}).UniqueID)
	})

	t.Run("unserializable values use their type", func(t *testing.T) {
		assert.Equal(t, caseOf(make(chan int)).UniqueID, caseOf(make(chan int)).UniqueID)
		assert.NotEqual(t, caseOf(make(chan int)).UniqueID, caseOf(make(chan string)).UniqueID)
	})
}

func TestArgIdentity(t *testing.T) {
	assert.Equal(t, "nil", ArgIdentity(nil))
	assert.Equal(t, "int:5", ArgIdentity(5))
	assert.Equal(t, `map[string]interface {}:{"a":1,"b":2}`, ArgIdentity(map[string]any{"b": 2, "a": 1}))
	assert.NotEqual(t, ArgIdentity(5), ArgIdentity("5"))
}

func TestUniqueIDDependsOnAncestors(t *testing.T) {
	a := NewAssembly("plans", "/a.yaml", "")
	b := NewAssembly("plans", "/b.yaml", "")

	ka := a.NewCollection("x").NewClass("K")
	kb := b.NewCollection("x").NewClass("K")
	assert.NotEqual(t, ka.UniqueID, kb.UniqueID)
}

func TestIDPartsAreSeparated(t *testing.T) {
	assert.NotEqual(t, MethodID("ab", "c"), MethodID("a", "bc"))
}

func TestNewTest(t *testing.T) {
	a := buildAssembly()
	tc := a.Collections[0].Classes[0].Methods[0].Cases[0]

	t0 := NewTest(tc, 0)
	t1 := NewTest(tc, 1)
	assert.Equal(t, tc.DisplayName, t0.DisplayName)
	assert.NotEqual(t, t0.UniqueID, t1.UniqueID)
	assert.Same(t, tc, t0.Case)
}

func TestAllTraits(t *testing.T) {
	a := NewAssembly("a", "/a", "")
	k := a.NewCollection("c").NewClass("K")
	k.Traits = Traits{"category": {"slow"}}
	m := k.NewMethod("m", ReturnsNothing, nil)
	m.Traits = Traits{"owner": {"api"}}
	tc := m.NewCase("m")
	tc.Traits = Traits{"category": {"db"}}

	traits := tc.AllTraits()
	assert.Equal(t, []string{"slow", "db"}, traits["category"])
	assert.Equal(t, []string{"api"}, traits["owner"])
	assert.Equal(t, []string{"slow"}, k.Traits["category"], "merge must not mutate inputs")
}

func TestRunSummary(t *testing.T) {
	s := RunSummary{Total: 3, Failed: 1, Time: time.Second}
	s.Add(RunSummary{Total: 4, Skipped: 1, NotRun: 1, Time: time.Second})

	assert.Equal(t, 7, s.Total)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Skipped)
	assert.Equal(t, 1, s.NotRun)
	assert.Equal(t, 4, s.Passed())
	assert.Equal(t, 2*time.Second, s.Time)
}

func TestOrderers(t *testing.T) {
	a := NewAssembly("a", "/a", "")
	m := a.NewCollection("c").NewClass("K").NewMethod("m", ReturnsNothing, nil)
	for _, name := range []string{"charlie", "alpha", "bravo"} {
		m.NewCase(name)
	}

	t.Run("display name", func(t *testing.T) {
		out, err := DisplayNameOrderer{}.OrderTestCases(m.Cases)
		require.NoError(t, err)
		assert.Equal(t, []string{"alpha", "bravo", "charlie"}, names(out))
		assert.Equal(t, "charlie", m.Cases[0].DisplayName, "input untouched")
	})

	t.Run("declaration", func(t *testing.T) {
		out, err := DeclarationOrderer{}.OrderTestCases(m.Cases)
		require.NoError(t, err)
		assert.Equal(t, []string{"charlie", "alpha", "bravo"}, names(out))
	})

	t.Run("default is stable", func(t *testing.T) {
		first, err := DefaultTestCaseOrderer{}.OrderTestCases(m.Cases)
		require.NoError(t, err)
		reversed := []*TestCase{m.Cases[2], m.Cases[1], m.Cases[0]}
		second, err := DefaultTestCaseOrderer{}.OrderTestCases(reversed)
		require.NoError(t, err)
		assert.Equal(t, names(first), names(second))
	})

	t.Run("random is seeded", func(t *testing.T) {
		first, err := RandomOrderer{Seed: 42}.OrderTestCases(m.Cases)
		require.NoError(t, err)
		second, err := RandomOrderer{Seed: 42}.OrderTestCases(m.Cases)
		require.NoError(t, err)
		assert.Equal(t, names(first), names(second))
		assert.ElementsMatch(t, names(m.Cases), names(first))
	})

	t.Run("func adapter", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := TestCaseOrdererFunc(func([]*TestCase) ([]*TestCase, error) { return nil, boom }).OrderTestCases(m.Cases)
		assert.ErrorIs(t, err, boom)
	})
}

func TestParseTestCaseOrderer(t *testing.T) {
	seed := int64(7)
	tests := []struct {
		name     string
		expected TestCaseOrderer
	}{
		{"", DefaultTestCaseOrderer{}},
		{"default", DefaultTestCaseOrderer{}},
		{"displayName", DisplayNameOrderer{}},
		{"declaration", DeclarationOrderer{}},
		{"random", RandomOrderer{Seed: 7}},
	}
	for _, tt := range tests {
		o, err := ParseTestCaseOrderer(tt.name, &seed)
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.expected, o, tt.name)
	}

	_, err := ParseTestCaseOrderer("alphabetical", nil)
	assert.EqualError(t, err, `invalid order "alphabetical" (expected default, displayName, declaration or random)`)
}

func TestDefaultCollectionOrderer(t *testing.T) {
	a := NewAssembly("a", "/a", "")
	a.NewCollection("zeta")
	a.NewCollection("alpha")

	out, err := DefaultCollectionOrderer{}.OrderCollections(a.Collections)
	require.NoError(t, err)
	assert.Equal(t, "alpha", out[0].DisplayName)
	assert.Equal(t, "zeta", out[1].DisplayName)
}

func TestTasks(t *testing.T) {
	ctx := context.Background()

	t.Run("go runs and reports error", func(t *testing.T) {
		boom := errors.New("boom")
		task := Go(ctx, func(context.Context) error { return boom })
		assert.True(t, task.Started())
		<-task.Done()
		assert.ErrorIs(t, task.Err(), boom)
	})

	t.Run("unstarted does nothing until started", func(t *testing.T) {
		ran := make(chan struct{})
		task := Unstarted(ctx, func(context.Context) error {
			close(ran)
			return nil
		})
		assert.False(t, task.Started())
		select {
		case <-ran:
			t.Fatal("task ran before Start")
		case <-time.After(20 * time.Millisecond):
		}
		task.Start()
		task.Start()
		<-task.Done()
		assert.NoError(t, task.Err())
	})

	t.Run("completed", func(t *testing.T) {
		task := Completed(nil)
		assert.True(t, task.Started())
		select {
		case <-task.Done():
		default:
			t.Fatal("completed task not done")
		}
	})

	t.Run("panic becomes error", func(t *testing.T) {
		task := Go(ctx, func(context.Context) error { panic("kaboom") })
		<-task.Done()
		require.Error(t, task.Err())
		assert.Contains(t, task.Err().Error(), "kaboom")
	})
}

func names(cases []*TestCase) []string {
	out := make([]string, len(cases))
	for i, tc := range cases {
		out[i] = tc.DisplayName
	}
	return out
}
