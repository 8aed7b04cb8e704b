package runner

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/hitrun/packages/core/messages"
	"github.com/abdul-hamid-achik/hitrun/packages/core/model"
)

type recordingSink struct {
	mu   sync.Mutex
	msgs []messages.Message
	// stopAfter makes OnMessage answer false for this message type.
	stopAfter string
}

func (s *recordingSink) OnMessage(msg messages.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return s.stopAfter == "" || msg.MessageType() != s.stopAfter
}

func (s *recordingSink) all() []messages.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]messages.Message(nil), s.msgs...)
}

func (s *recordingSink) types() []string {
	var out []string
	for _, m := range s.all() {
		out = append(out, m.MessageType())
	}
	return out
}

func messagesOf[T messages.Message](s *recordingSink) []T {
	var out []T
	for _, m := range s.all() {
		if v, ok := m.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

func indexOf(s *recordingSink, match func(messages.Message) bool) int {
	for i, m := range s.all() {
		if match(m) {
			return i
		}
	}
	return -1
}

func quietOptions(opts *Options) *Options {
	if opts == nil {
		opts = &Options{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return opts
}

func runAssembly(t *testing.T, a *model.Assembly, opts *Options) (*Result, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	res, err := NewRunner(quietOptions(opts)).Run(context.Background(), a, sink)
	require.NoError(t, err)
	return res, sink
}

// newClass builds an assembly with one collection and one class that has a
// parameterless constructor.
func newClass(name string) (*model.Assembly, *model.Class) {
	a := model.NewAssembly("tests", "/tmp/"+name+".yaml", "")
	k := a.NewCollection(name).NewClass(name)
	k.Constructors = []*model.Constructor{{}}
	return a, k
}

func syncBody(fn func(ctx context.Context, instance any) error) model.InvokeFunc {
	return func(ctx context.Context, instance any, _ []any) (model.Task, error) {
		return nil, fn(ctx, instance)
	}
}

func asyncBody(fn func(ctx context.Context) error) model.InvokeFunc {
	return func(ctx context.Context, _ any, _ []any) (model.Task, error) {
		return model.Go(ctx, fn), nil
	}
}

func pass(context.Context, any) error { return nil }

type disposable struct {
	mu         sync.Mutex
	disposed   int
	disposeErr error
	onDispose  func()
}

func (d *disposable) Dispose() error {
	d.mu.Lock()
	d.disposed++
	d.mu.Unlock()
	if d.onDispose != nil {
		d.onDispose()
	}
	return d.disposeErr
}

func (d *disposable) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.disposed
}

// constructWith returns a constructor that always yields instance.
func constructWith(instance any, calls *int) *model.Constructor {
	return &model.Constructor{
		New: func(context.Context, []any) (any, error) {
			if calls != nil {
				*calls++
			}
			return instance, nil
		},
	}
}
