package messages

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorMetadata is the flattened form of an error tree. Index 0 is the root;
// ExceptionParentIndices[i] is the index of the error that wrapped error i, or
// -1 for the root.
type ErrorMetadata struct {
	ExceptionParentIndices []int    `json:"ExceptionParentIndices"`
	ExceptionTypes         []string `json:"ExceptionTypes"`
	Messages               []string `json:"Messages"`
	StackTraces            []string `json:"StackTraces"`
}

// AssertionFailure is implemented by errors that represent a failed
// expectation rather than an unexpected error.
type AssertionFailure interface {
	error
	IsAssertionFailure() bool
}

// TimeoutFailure is implemented by errors that represent a test running out
// of time.
type TimeoutFailure interface {
	error
	IsTimeout() bool
}

type stackTracer interface {
	StackTrace() string
}

// ConvertError flattens err and everything it wraps.
func ConvertError(err error) ErrorMetadata {
	var md ErrorMetadata
	if err == nil {
		return md
	}
	md.add(err, -1)
	return md
}

func (m *ErrorMetadata) add(err error, parent int) {
	idx := len(m.Messages)
	m.ExceptionParentIndices = append(m.ExceptionParentIndices, parent)
	m.ExceptionTypes = append(m.ExceptionTypes, fmt.Sprintf("%T", err))
	m.Messages = append(m.Messages, err.Error())

	stack := ""
	if st, ok := err.(stackTracer); ok {
		stack = st.StackTrace()
	}
	m.StackTraces = append(m.StackTraces, stack)

	switch u := err.(type) {
	case interface{ Unwrap() []error }:
		for _, inner := range u.Unwrap() {
			if inner != nil {
				m.add(inner, idx)
			}
		}
	case interface{ Unwrap() error }:
		if inner := u.Unwrap(); inner != nil {
			m.add(inner, idx)
		}
	}
}

// CauseOf classifies err for a TestFailed message.
func CauseOf(err error) FailureCause {
	var tf TimeoutFailure
	if errors.As(err, &tf) && tf.IsTimeout() {
		return CauseTimeout
	}
	var af AssertionFailure
	if errors.As(err, &af) && af.IsAssertionFailure() {
		return CauseAssertion
	}
	return CauseException
}

func (m ErrorMetadata) depth(idx int) int {
	d := 0
	for p := m.ExceptionParentIndices[idx]; p >= 0; p = m.ExceptionParentIndices[p] {
		d++
	}
	return d
}

// CombinedMessage renders the whole tree, one error per line, nested errors
// prefixed with "----" per level.
func (m ErrorMetadata) CombinedMessage() string {
	if len(m.Messages) == 0 {
		return ""
	}
	var sb strings.Builder
	for i := range m.Messages {
		if i > 0 {
			sb.WriteString("\n")
			sb.WriteString(strings.Repeat("----", m.depth(i)))
			sb.WriteString(" ")
		}
		sb.WriteString(m.ExceptionTypes[i])
		sb.WriteString(" : ")
		sb.WriteString(m.Messages[i])
	}
	return sb.String()
}

// CombinedStackTrace concatenates every non-empty stack trace, labelling the
// inner ones.
func (m ErrorMetadata) CombinedStackTrace() string {
	var parts []string
	for i, st := range m.StackTraces {
		if st == "" {
			continue
		}
		if i == 0 {
			parts = append(parts, st)
			continue
		}
		parts = append(parts, fmt.Sprintf("----- Inner Stack Trace #%d (%s) -----\n%s", i, m.ExceptionTypes[i], st))
	}
	return strings.Join(parts, "\n")
}
