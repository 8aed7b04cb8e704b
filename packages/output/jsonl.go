package output

import (
	"bufio"
	"io"
	"sync"

	"github.com/abdul-hamid-achik/hitrun/packages/core/messages"
)

// JSONLSink streams every message as one line of JSON. The line format is
// the message codec, so the stream can be replayed with messages.Unmarshal.
type JSONLSink struct {
	mu  sync.Mutex
	w   *bufio.Writer
	err error
}

func NewJSONLSink(w io.Writer) *JSONLSink {
	return &JSONLSink{w: bufio.NewWriter(w)}
}

func (f *JSONLSink) OnMessage(msg messages.Message) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return true
	}
	data, err := messages.Marshal(msg)
	if err != nil {
		f.err = err
		return true
	}
	if _, err := f.w.Write(append(data, '\n')); err != nil {
		f.err = err
		return true
	}
	if _, ok := msg.(messages.TestAssemblyFinished); ok {
		f.err = f.w.Flush()
	}
	return true
}

// Flush reports the first write error, if any.
func (f *JSONLSink) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	return f.w.Flush()
}
