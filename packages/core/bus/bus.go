package bus

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/abdul-hamid-achik/hitrun/packages/core/aggregator"
	"github.com/abdul-hamid-achik/hitrun/packages/core/messages"
)

// ErrDisposed is returned by QueueMessage once the bus has been closed.
var ErrDisposed = errors.New("message bus already disposed")

// MessageBus serializes message delivery into a sink.
type MessageBus struct {
	sink       messages.Sink
	stopOnFail bool
	logger     *slog.Logger

	mu       sync.Mutex
	stopped  bool
	disposed bool
}

// Option configures a MessageBus.
type Option func(*MessageBus)

// WithStopOnFail makes the bus answer false after the first failing test.
func WithStopOnFail(enabled bool) Option {
	return func(b *MessageBus) {
		b.stopOnFail = enabled
	}
}

// WithLogger sets the logger used to report sink panics.
func WithLogger(l *slog.Logger) Option {
	return func(b *MessageBus) {
		if l != nil {
			b.logger = l
		}
	}
}

// New returns a bus that delivers into sink.
func New(sink messages.Sink, opts ...Option) *MessageBus {
	b := &MessageBus{sink: sink, logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "message-bus")
	return b
}

// QueueMessage delivers msg and reports whether the run should continue.
func (b *MessageBus) QueueMessage(msg messages.Message) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.disposed {
		return false, ErrDisposed
	}

	cont := b.deliver(msg)
	if !cont {
		b.stopped = true
	}
	if b.stopOnFail && messages.IsTestFailure(msg) {
		b.stopped = true
	}
	return !b.stopped, nil
}

func (b *MessageBus) deliver(msg messages.Message) bool {
	cont := true
	err := aggregator.Try(func() error {
		cont = b.sink.OnMessage(msg)
		return nil
	})
	if err == nil {
		return cont
	}

	b.logger.Error("sink panicked", "message", msg.MessageType(), "error", err)
	report := messages.ErrorMessage{
		ErrorMetadata: messages.ConvertError(fmt.Errorf("sink failed while handling %s: %w", msg.MessageType(), err)),
	}
	cont = true
	if perr := aggregator.Try(func() error {
		cont = b.sink.OnMessage(report)
		return nil
	}); perr != nil {
		b.logger.Error("sink panicked while reporting a sink failure", "error", perr)
		return true
	}
	return cont
}

// Stopped reports whether any delivery has asked the run to stop.
func (b *MessageBus) Stopped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stopped
}

// Close disposes the bus. Later calls to QueueMessage fail with ErrDisposed.
func (b *MessageBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disposed = true
	return nil
}
