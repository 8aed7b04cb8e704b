package messages

import (
	"bytes"
	"encoding/json"
	"fmt"
)

var registry = map[string]func() Message{
	TypeTestAssemblyStarting:          func() Message { return &TestAssemblyStarting{} },
	TypeTestAssemblyFinished:          func() Message { return &TestAssemblyFinished{} },
	TypeTestAssemblyCleanupFailure:    func() Message { return &TestAssemblyCleanupFailure{} },
	TypeTestCollectionStarting:        func() Message { return &TestCollectionStarting{} },
	TypeTestCollectionFinished:        func() Message { return &TestCollectionFinished{} },
	TypeTestCollectionCleanupFailure:  func() Message { return &TestCollectionCleanupFailure{} },
	TypeTestClassStarting:             func() Message { return &TestClassStarting{} },
	TypeTestClassFinished:             func() Message { return &TestClassFinished{} },
	TypeTestClassCleanupFailure:       func() Message { return &TestClassCleanupFailure{} },
	TypeTestMethodStarting:            func() Message { return &TestMethodStarting{} },
	TypeTestMethodFinished:            func() Message { return &TestMethodFinished{} },
	TypeTestMethodCleanupFailure:      func() Message { return &TestMethodCleanupFailure{} },
	TypeTestCaseStarting:              func() Message { return &TestCaseStarting{} },
	TypeTestCaseFinished:              func() Message { return &TestCaseFinished{} },
	TypeTestCaseCleanupFailure:        func() Message { return &TestCaseCleanupFailure{} },
	TypeTestStarting:                  func() Message { return &TestStarting{} },
	TypeTestFinished:                  func() Message { return &TestFinished{} },
	TypeTestCleanupFailure:            func() Message { return &TestCleanupFailure{} },
	TypeTestPassed:                    func() Message { return &TestPassed{} },
	TypeTestFailed:                    func() Message { return &TestFailed{} },
	TypeTestSkipped:                   func() Message { return &TestSkipped{} },
	TypeTestNotRun:                    func() Message { return &TestNotRun{} },
	TypeTestOutput:                    func() Message { return &TestOutput{} },
	TypeTestClassConstructionStarting: func() Message { return &TestClassConstructionStarting{} },
	TypeTestClassConstructionFinished: func() Message { return &TestClassConstructionFinished{} },
	TypeTestClassDisposeStarting:      func() Message { return &TestClassDisposeStarting{} },
	TypeTestClassDisposeFinished:      func() Message { return &TestClassDisposeFinished{} },
	TypeErrorMessage:                  func() Message { return &ErrorMessage{} },
	TypeDiagnosticMessage:             func() Message { return &DiagnosticMessage{} },
	TypeInternalDiagnosticMessage:     func() Message { return &InternalDiagnosticMessage{} },
}

// Marshal encodes msg as a JSON object whose first field is "$type".
func Marshal(msg Message) ([]byte, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", msg.MessageType(), err)
	}

	var buf bytes.Buffer
	buf.WriteString(`{"$type":`)
	typ, _ := json.Marshal(msg.MessageType())
	buf.Write(typ)
	if len(body) > 2 {
		buf.WriteByte(',')
		buf.Write(body[1:])
	} else {
		buf.WriteByte('}')
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a message produced by Marshal. The returned value is a
// pointer to the concrete message type.
func Unmarshal(data []byte) (Message, error) {
	var head struct {
		Type string `json:"$type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decoding message type: %w", err)
	}
	newMsg, ok := registry[head.Type]
	if !ok {
		return nil, fmt.Errorf("unknown message type %q", head.Type)
	}
	msg := newMsg()
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", head.Type, err)
	}
	return msg, nil
}
