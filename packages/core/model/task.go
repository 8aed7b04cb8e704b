package model

import (
	"context"
	"sync"

	"github.com/abdul-hamid-achik/hitrun/packages/core/aggregator"
)

// Task is the handle an awaitable test method returns.
type Task interface {
	// Started reports whether the work has begun.
	Started() bool
	// Done is closed when the work has finished.
	Done() <-chan struct{}
	// Err returns the result once Done is closed.
	Err() error
}

// AsyncTask is the Task implementation used by Go, Unstarted and Completed.
type AsyncTask struct {
	fn   func(ctx context.Context) error
	ctx  context.Context
	once sync.Once
	done chan struct{}

	mu      sync.Mutex
	started bool
	err     error
}

// Go starts fn on a new goroutine and returns its task. Panics in fn become
// the task's error.
func Go(ctx context.Context, fn func(ctx context.Context) error) *AsyncTask {
	t := Unstarted(ctx, fn)
	t.Start()
	return t
}

// Unstarted returns a task that does nothing until Start is called.
func Unstarted(ctx context.Context, fn func(ctx context.Context) error) *AsyncTask {
	return &AsyncTask{fn: fn, ctx: ctx, done: make(chan struct{})}
}

// Completed returns an already finished task.
func Completed(err error) *AsyncTask {
	t := &AsyncTask{done: make(chan struct{}), started: true, err: err}
	t.once.Do(func() { close(t.done) })
	return t
}

// Start launches the work. Subsequent calls do nothing.
func (t *AsyncTask) Start() {
	t.once.Do(func() {
		t.mu.Lock()
		t.started = true
		t.mu.Unlock()
		go func() {
			err := aggregator.Try(func() error { return t.fn(t.ctx) })
			t.mu.Lock()
			t.err = err
			t.mu.Unlock()
			close(t.done)
		}()
	})
}

func (t *AsyncTask) Started() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.started
}

func (t *AsyncTask) Done() <-chan struct{} {
	return t.done
}

func (t *AsyncTask) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}
