package output

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/abdul-hamid-achik/hitrun/packages/core/messages"
)

// Flushable is implemented by sinks that write their report once the run
// is over.
type Flushable interface {
	Flush() error
}

// Format names a report format.
type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
	FormatJSONL   Format = "jsonl"
	FormatJUnit   Format = "junit"
	FormatTAP     Format = "tap"
	FormatHTML    Format = "html"
)

// Formats lists every supported format.
var Formats = []Format{FormatConsole, FormatJSON, FormatJSONL, FormatJUnit, FormatTAP, FormatHTML}

func ParseFormat(s string) (Format, error) {
	for _, f := range Formats {
		if strings.EqualFold(s, string(f)) {
			return f, nil
		}
	}
	names := make([]string, len(Formats))
	for i, f := range Formats {
		names[i] = string(f)
	}
	return "", fmt.Errorf("unknown output format %q (expected one of %s)", s, strings.Join(names, ", "))
}

// New creates the sink for format writing to w. Console options are ignored
// by the other formats.
func New(format Format, w io.Writer, opts ...ConsoleOption) (messages.Sink, error) {
	switch format {
	case FormatConsole:
		return NewConsoleSink(append([]ConsoleOption{WithWriter(w)}, opts...)...), nil
	case FormatJSON:
		return NewJSONSink(w), nil
	case FormatJSONL:
		return NewJSONLSink(w), nil
	case FormatJUnit:
		return NewJUnitSink(w), nil
	case FormatTAP:
		return NewTAPSink(w), nil
	case FormatHTML:
		return NewHTMLSink(w), nil
	}
	return nil, fmt.Errorf("unknown output format %q", format)
}

// Multi fans every message out to several sinks.
type Multi struct {
	mu    sync.Mutex
	sinks []messages.Sink
}

func NewMulti(sinks ...messages.Sink) *Multi {
	return &Multi{sinks: sinks}
}

func (m *Multi) Add(s messages.Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks = append(m.sinks, s)
}

// OnMessage delivers msg to every sink and answers false if any of them
// did.
func (m *Multi) OnMessage(msg messages.Message) bool {
	m.mu.Lock()
	sinks := append([]messages.Sink(nil), m.sinks...)
	m.mu.Unlock()

	keepGoing := true
	for _, s := range sinks {
		if !s.OnMessage(msg) {
			keepGoing = false
		}
	}
	return keepGoing
}

// Flush flushes every Flushable sink, collecting their errors.
func (m *Multi) Flush() error {
	m.mu.Lock()
	sinks := append([]messages.Sink(nil), m.sinks...)
	m.mu.Unlock()

	var errs []error
	for _, s := range sinks {
		if f, ok := s.(Flushable); ok {
			if err := f.Flush(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
