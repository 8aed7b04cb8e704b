package testcontext

import (
	"fmt"
	"strings"
	"sync"
)

// OutputHelper buffers the diagnostic output of one test. When a live
// callback is set every line is also forwarded as it is written.
type OutputHelper struct {
	mu   sync.Mutex
	buf  strings.Builder
	live func(line string)
}

// NewOutputHelper returns an empty helper. live may be nil.
func NewOutputHelper(live func(line string)) *OutputHelper {
	return &OutputHelper{live: live}
}

// WriteLine appends msg and a newline.
func (o *OutputHelper) WriteLine(msg string) {
	if o == nil {
		return
	}
	line := msg + "\n"
	o.mu.Lock()
	o.buf.WriteString(line)
	live := o.live
	o.mu.Unlock()
	if live != nil {
		live(line)
	}
}

// WriteLinef formats and appends a line.
func (o *OutputHelper) WriteLinef(format string, args ...any) {
	o.WriteLine(fmt.Sprintf(format, args...))
}

// Write implements io.Writer so command output can be piped straight in.
func (o *OutputHelper) Write(p []byte) (int, error) {
	if o == nil {
		return len(p), nil
	}
	o.mu.Lock()
	o.buf.Write(p)
	live := o.live
	o.mu.Unlock()
	if live != nil {
		live(string(p))
	}
	return len(p), nil
}

// Output returns everything written so far.
func (o *OutputHelper) Output() string {
	if o == nil {
		return ""
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buf.String()
}
