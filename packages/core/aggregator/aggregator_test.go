package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregator_Empty(t *testing.T) {
	a := New()
	assert.False(t, a.HasErrors())
	assert.NoError(t, a.ToError())
}

func TestAggregator_SingleError(t *testing.T) {
	boom := errors.New("boom")
	a := New()
	a.Run(func() error { return boom })

	assert.True(t, a.HasErrors())
	assert.Same(t, boom, a.ToError())
}

func TestAggregator_DoesNotShortCircuit(t *testing.T) {
	a := New()
	ran := 0
	a.Run(func() error { ran++; return errors.New("first") })
	a.Run(func() error { ran++; return nil })
	a.Run(func() error { ran++; return errors.New("second") })

	assert.Equal(t, 3, ran)

	var agg *AggregateError
	require.ErrorAs(t, a.ToError(), &agg)
	require.Len(t, agg.Errs, 2)
	assert.Equal(t, "first", agg.Errs[0].Error())
	assert.Equal(t, "second", agg.Errs[1].Error())
	assert.Equal(t, "One or more errors occurred. (first) (second)", agg.Error())
}

func TestAggregator_RecoversPanics(t *testing.T) {
	a := New()
	a.Run(func() error { panic("kaboom") })

	var pe *PanicError
	require.ErrorAs(t, a.ToError(), &pe)
	assert.Equal(t, "kaboom", pe.Value)
	assert.Contains(t, pe.StackTrace(), "goroutine")
}

func TestAggregator_UnwrapsInvocationErrors(t *testing.T) {
	inner := errors.New("inner")
	a := New()
	a.Add(&InvocationError{Err: &InvocationError{Err: inner}})

	assert.Same(t, inner, a.ToError())
}

func TestAggregator_KeepsMeaningfulWrappers(t *testing.T) {
	inner := errors.New("inner")
	wrapped := fmt.Errorf("context: %w", &InvocationError{Err: inner})
	a := New()
	a.Add(wrapped)

	assert.Same(t, wrapped, a.ToError())
}

func TestAggregator_Clone(t *testing.T) {
	a := New()
	a.Add(errors.New("parent"))

	child := a.Clone()
	child.Add(errors.New("child"))

	assert.Len(t, a.Errors(), 1)
	assert.Len(t, child.Errors(), 2)

	a.Aggregate(child)
	assert.Len(t, a.Errors(), 3)
}

func TestAggregator_RunContext(t *testing.T) {
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "v")
	a := New()
	a.RunContext(ctx, func(ctx context.Context) error {
		if ctx.Value(key{}) != "v" {
			return errors.New("lost context")
		}
		return nil
	})
	assert.False(t, a.HasErrors())
}

func TestAggregator_Concurrent(t *testing.T) {
	a := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a.Add(fmt.Errorf("err %d", i))
		}(i)
	}
	wg.Wait()
	assert.Len(t, a.Errors(), 50)
}

func TestAggregator_Clear(t *testing.T) {
	a := New()
	a.Add(errors.New("x"))
	a.Clear()
	assert.False(t, a.HasErrors())
}
