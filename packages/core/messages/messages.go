package messages

import "time"

// Message is implemented by every event emitted during a run.
type Message interface {
	MessageType() string
}

// Sink receives the event stream of a run. Returning false asks the run to
// stop as soon as practical.
type Sink interface {
	OnMessage(msg Message) bool
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(msg Message) bool

func (f SinkFunc) OnMessage(msg Message) bool {
	return f(msg)
}

// IDs is the full set of correlation IDs; fields that do not apply to a
// message's level are empty.
type IDs struct {
	Assembly   string
	Collection string
	Class      string
	Method     string
	TestCase   string
	Test       string
}

// Correlated is implemented by every message that belongs to a scope.
type Correlated interface {
	Message
	Correlation() IDs
}

type AssemblyMessage struct {
	AssemblyUniqueID string `json:"AssemblyUniqueID"`
}

func (m AssemblyMessage) Correlation() IDs {
	return IDs{Assembly: m.AssemblyUniqueID}
}

type CollectionMessage struct {
	AssemblyMessage
	TestCollectionUniqueID string `json:"TestCollectionUniqueID"`
}

func (m CollectionMessage) Correlation() IDs {
	ids := m.AssemblyMessage.Correlation()
	ids.Collection = m.TestCollectionUniqueID
	return ids
}

type ClassMessage struct {
	CollectionMessage
	TestClassUniqueID string `json:"TestClassUniqueID"`
}

func (m ClassMessage) Correlation() IDs {
	ids := m.CollectionMessage.Correlation()
	ids.Class = m.TestClassUniqueID
	return ids
}

type MethodMessage struct {
	ClassMessage
	TestMethodUniqueID string `json:"TestMethodUniqueID"`
}

func (m MethodMessage) Correlation() IDs {
	ids := m.ClassMessage.Correlation()
	ids.Method = m.TestMethodUniqueID
	return ids
}

type TestCaseMessage struct {
	MethodMessage
	TestCaseUniqueID string `json:"TestCaseUniqueID"`
}

func (m TestCaseMessage) Correlation() IDs {
	ids := m.MethodMessage.Correlation()
	ids.TestCase = m.TestCaseUniqueID
	return ids
}

type TestMessage struct {
	TestCaseMessage
	TestUniqueID string `json:"TestUniqueID"`
}

func (m TestMessage) Correlation() IDs {
	ids := m.TestCaseMessage.Correlation()
	ids.Test = m.TestUniqueID
	return ids
}

// NewAssemblyMessage and friends build the correlation bases used by runners.
func NewAssemblyMessage(ids IDs) AssemblyMessage {
	return AssemblyMessage{AssemblyUniqueID: ids.Assembly}
}

func NewCollectionMessage(ids IDs) CollectionMessage {
	return CollectionMessage{AssemblyMessage: NewAssemblyMessage(ids), TestCollectionUniqueID: ids.Collection}
}

func NewClassMessage(ids IDs) ClassMessage {
	return ClassMessage{CollectionMessage: NewCollectionMessage(ids), TestClassUniqueID: ids.Class}
}

func NewMethodMessage(ids IDs) MethodMessage {
	return MethodMessage{ClassMessage: NewClassMessage(ids), TestMethodUniqueID: ids.Method}
}

func NewTestCaseMessage(ids IDs) TestCaseMessage {
	return TestCaseMessage{MethodMessage: NewMethodMessage(ids), TestCaseUniqueID: ids.TestCase}
}

func NewTestMessage(ids IDs) TestMessage {
	return TestMessage{TestCaseMessage: NewTestCaseMessage(ids), TestUniqueID: ids.Test}
}

// ExecutionSummary is carried by every Finished message above the test level.
type ExecutionSummary struct {
	TestsTotal    int           `json:"TestsTotal"`
	TestsFailed   int           `json:"TestsFailed"`
	TestsSkipped  int           `json:"TestsSkipped"`
	TestsNotRun   int           `json:"TestsNotRun"`
	ExecutionTime time.Duration `json:"ExecutionTime"`
}

// TestsPassed is derived: every test not failed, skipped or not run passed.
func (s ExecutionSummary) TestsPassed() int {
	return s.TestsTotal - s.TestsFailed - s.TestsSkipped - s.TestsNotRun
}

// Traits maps trait names to their values.
type Traits map[string][]string
