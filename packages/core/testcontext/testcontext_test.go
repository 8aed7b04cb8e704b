package testcontext

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/hitrun/packages/core/aggregator"
	"github.com/abdul-hamid-achik/hitrun/packages/core/model"
)

func TestAddWarningDuringTest(t *testing.T) {
	var diags []string
	root := New(nil, func(msg string) { diags = append(diags, msg) })

	tc := &model.TestCase{DisplayName: "case"}
	c := root.ForTestCase(tc).ForTest(model.NewTest(tc, 0), NewOutputHelper(nil), nil)
	ctx := With(context.Background(), c)

	c.SetTestState(TestRunning)
	AddWarning(ctx, "first")
	AddWarning(ctx, "second")

	assert.Equal(t, []string{"first", "second"}, c.Warnings())
	assert.Empty(t, diags)
}

func TestAddWarningOutsideTest(t *testing.T) {
	var diags []string
	root := New(nil, func(msg string) { diags = append(diags, msg) })

	c := root.ForCollection(&model.Collection{DisplayName: "c"})
	AddWarning(With(context.Background(), c), "from fixture")

	require.Len(t, diags, 1)
	assert.Contains(t, diags[0], "TestCollectionExecution")
	assert.Contains(t, diags[0], "from fixture")
	assert.Nil(t, c.Warnings())
}

func TestAddWarningAfterTestFinished(t *testing.T) {
	var diags []string
	root := New(nil, func(msg string) { diags = append(diags, msg) })
	tc := &model.TestCase{}
	c := root.ForTestCase(tc).ForTest(model.NewTest(tc, 0), nil, nil)

	c.SetTestState(TestFinished)
	c.AddWarning("late")

	assert.Nil(t, c.Warnings())
	assert.Len(t, diags, 1)
	assert.Contains(t, diags[0], "TestExecution")
}

func TestAddWarningWithoutContext(t *testing.T) {
	assert.NotPanics(t, func() { AddWarning(context.Background(), "nobody listening") })
	assert.Nil(t, FromContext(context.Background()))
	assert.Nil(t, Output(context.Background()))
}

func TestSkip(t *testing.T) {
	t.Run("returned", func(t *testing.T) {
		reason, ok := AsSkip(fmt.Errorf("wrapped: %w", Skip("not today")))
		assert.True(t, ok)
		assert.Equal(t, "not today", reason)
	})

	t.Run("panicked", func(t *testing.T) {
		err := aggregator.Try(func() error {
			SkipNow("bail")
			return nil
		})
		reason, ok := AsSkip(err)
		assert.True(t, ok)
		assert.Equal(t, "bail", reason)
	})

	t.Run("when and unless", func(t *testing.T) {
		assert.NotPanics(t, func() { SkipWhen(false, "x") })
		assert.NotPanics(t, func() { SkipUnless(true, "x") })
		assert.Panics(t, func() { SkipWhen(true, "x") })
		assert.Panics(t, func() { SkipUnless(false, "x") })
	})

	t.Run("plain errors are not skips", func(t *testing.T) {
		_, ok := AsSkip(errors.New("boom"))
		assert.False(t, ok)
	})
}

func TestOutputHelper(t *testing.T) {
	var live []string
	o := NewOutputHelper(func(line string) { live = append(live, line) })

	o.WriteLine("hello")
	o.WriteLinef("n=%d", 2)
	_, err := o.Write([]byte("raw"))
	require.NoError(t, err)

	assert.Equal(t, "hello\nn=2\nraw", o.Output())
	assert.Equal(t, []string{"hello\n", "n=2\n", "raw"}, live)

	var nilHelper *OutputHelper
	assert.NotPanics(t, func() { nilHelper.WriteLine("x") })
	assert.Empty(t, nilHelper.Output())
}

func TestCancelCurrentTest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tc := &model.TestCase{}
	c := New(nil, nil).ForTestCase(tc).ForTest(model.NewTest(tc, 0), nil, cancel)

	CancelCurrentTest(With(ctx, c))
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestStoreSharedAcrossScopes(t *testing.T) {
	root := New(NewStore(), nil)
	a := root.ForAssembly(&model.Assembly{})
	b := a.ForCollection(&model.Collection{})

	a.Store().Set("token", "abc")
	v, ok := b.Store().Get("token")
	assert.True(t, ok)
	assert.Equal(t, "abc", v)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b.Store().Set(fmt.Sprintf("k%d", i), i)
		}(i)
	}
	wg.Wait()
	assert.Len(t, b.Store().Keys(), 11)

	b.Store().Delete("token")
	_, ok = a.Store().Get("token")
	assert.False(t, ok)
}

func TestScopesDoNotLeakTestState(t *testing.T) {
	tc := &model.TestCase{}
	test := New(nil, nil).ForTestCase(tc).ForTest(model.NewTest(tc, 0), NewOutputHelper(nil), nil)
	next := test.ForTestCase(&model.TestCase{})

	assert.NotNil(t, test.Output())
	assert.Nil(t, next.Output())
	assert.Equal(t, StageTestCaseExecution, next.Stage)
}
