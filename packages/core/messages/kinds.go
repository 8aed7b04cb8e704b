package messages

import "time"

// Type discriminators.
const (
	TypeTestAssemblyStarting          = "test-assembly-starting"
	TypeTestAssemblyFinished          = "test-assembly-finished"
	TypeTestAssemblyCleanupFailure    = "test-assembly-cleanup-failure"
	TypeTestCollectionStarting        = "test-collection-starting"
	TypeTestCollectionFinished        = "test-collection-finished"
	TypeTestCollectionCleanupFailure  = "test-collection-cleanup-failure"
	TypeTestClassStarting             = "test-class-starting"
	TypeTestClassFinished             = "test-class-finished"
	TypeTestClassCleanupFailure       = "test-class-cleanup-failure"
	TypeTestMethodStarting            = "test-method-starting"
	TypeTestMethodFinished            = "test-method-finished"
	TypeTestMethodCleanupFailure      = "test-method-cleanup-failure"
	TypeTestCaseStarting              = "test-case-starting"
	TypeTestCaseFinished              = "test-case-finished"
	TypeTestCaseCleanupFailure        = "test-case-cleanup-failure"
	TypeTestStarting                  = "test-starting"
	TypeTestFinished                  = "test-finished"
	TypeTestCleanupFailure            = "test-cleanup-failure"
	TypeTestPassed                    = "test-passed"
	TypeTestFailed                    = "test-failed"
	TypeTestSkipped                   = "test-skipped"
	TypeTestNotRun                    = "test-not-run"
	TypeTestOutput                    = "test-output"
	TypeTestClassConstructionStarting = "test-class-construction-starting"
	TypeTestClassConstructionFinished = "test-class-construction-finished"
	TypeTestClassDisposeStarting      = "test-class-dispose-starting"
	TypeTestClassDisposeFinished      = "test-class-dispose-finished"
	TypeErrorMessage                  = "error"
	TypeDiagnosticMessage             = "diagnostic"
	TypeInternalDiagnosticMessage     = "internal-diagnostic"
)

// FailureCause classifies why a test failed.
type FailureCause string

const (
	CauseException FailureCause = "Exception"
	CauseAssertion FailureCause = "Assertion"
	CauseTimeout   FailureCause = "Timeout"
)

// Assembly level

type TestAssemblyStarting struct {
	AssemblyMessage
	AssemblyName             string    `json:"AssemblyName"`
	AssemblyPath             string    `json:"AssemblyPath,omitempty"`
	ConfigFilePath           string    `json:"ConfigFilePath,omitempty"`
	RunID                    string    `json:"RunID"`
	Seed                     *int64    `json:"Seed,omitempty"`
	StartTime                time.Time `json:"StartTime"`
	TestEnvironment          string    `json:"TestEnvironment"`
	TestFrameworkDisplayName string    `json:"TestFrameworkDisplayName"`
	Traits                   Traits    `json:"Traits,omitempty"`
}

type TestAssemblyFinished struct {
	AssemblyMessage
	ExecutionSummary
	FinishTime time.Time `json:"FinishTime"`
}

type TestAssemblyCleanupFailure struct {
	AssemblyMessage
	ErrorMetadata
}

// Collection level

type TestCollectionStarting struct {
	CollectionMessage
	TestCollectionDisplayName string `json:"TestCollectionDisplayName"`
	TestCollectionClassName   string `json:"TestCollectionClassName,omitempty"`
	Traits                    Traits `json:"Traits,omitempty"`
}

type TestCollectionFinished struct {
	CollectionMessage
	ExecutionSummary
}

type TestCollectionCleanupFailure struct {
	CollectionMessage
	ErrorMetadata
}

// Class level

type TestClassStarting struct {
	ClassMessage
	TestClassName string `json:"TestClassName"`
	Traits        Traits `json:"Traits,omitempty"`
}

type TestClassFinished struct {
	ClassMessage
	ExecutionSummary
}

type TestClassCleanupFailure struct {
	ClassMessage
	ErrorMetadata
}

// Method level

type TestMethodStarting struct {
	MethodMessage
	MethodName string `json:"MethodName"`
	Traits     Traits `json:"Traits,omitempty"`
}

type TestMethodFinished struct {
	MethodMessage
	ExecutionSummary
}

type TestMethodCleanupFailure struct {
	MethodMessage
	ErrorMetadata
}

// Test case level

type TestCaseStarting struct {
	TestCaseMessage
	TestCaseDisplayName string `json:"TestCaseDisplayName"`
	TestClassName       string `json:"TestClassName"`
	TestMethodName      string `json:"TestMethodName"`
	Explicit            bool   `json:"Explicit"`
	SkipReason          string `json:"SkipReason,omitempty"`
	SourceFilePath      string `json:"SourceFilePath,omitempty"`
	SourceLineNumber    int    `json:"SourceLineNumber,omitempty"`
	Traits              Traits `json:"Traits,omitempty"`
}

type TestCaseFinished struct {
	TestCaseMessage
	ExecutionSummary
}

type TestCaseCleanupFailure struct {
	TestCaseMessage
	ErrorMetadata
}

// Test level

type TestStarting struct {
	TestMessage
	TestDisplayName string    `json:"TestDisplayName"`
	Explicit        bool      `json:"Explicit"`
	StartTime       time.Time `json:"StartTime"`
	Timeout         int       `json:"Timeout"`
	Traits          Traits    `json:"Traits,omitempty"`
}

// TestResultMessage holds the fields shared by every terminal test message.
type TestResultMessage struct {
	TestMessage
	ExecutionTime time.Duration `json:"ExecutionTime"`
	FinishTime    time.Time     `json:"FinishTime"`
	Output        string        `json:"Output"`
	Warnings      []string      `json:"Warnings,omitempty"`
}

type TestFinished struct {
	TestResultMessage
}

type TestPassed struct {
	TestResultMessage
}

type TestFailed struct {
	TestResultMessage
	ErrorMetadata
	Cause FailureCause `json:"Cause"`
}

type TestSkipped struct {
	TestResultMessage
	Reason string `json:"Reason"`
}

type TestNotRun struct {
	TestResultMessage
}

type TestCleanupFailure struct {
	TestMessage
	ErrorMetadata
}

type TestOutput struct {
	TestMessage
	Output string `json:"Output"`
}

type TestClassConstructionStarting struct{ TestMessage }
type TestClassConstructionFinished struct{ TestMessage }
type TestClassDisposeStarting struct{ TestMessage }
type TestClassDisposeFinished struct{ TestMessage }

// Unscoped

// ErrorMessage reports a failure that does not belong to a single test, such
// as a pipeline configuration error or a sink that panicked.
type ErrorMessage struct {
	ErrorMetadata
}

type DiagnosticMessage struct {
	Message string `json:"Message"`
}

type InternalDiagnosticMessage struct {
	Message string `json:"Message"`
}

func (TestAssemblyStarting) MessageType() string { return TypeTestAssemblyStarting }
func (TestAssemblyFinished) MessageType() string { return TypeTestAssemblyFinished }
func (TestAssemblyCleanupFailure) MessageType() string { return TypeTestAssemblyCleanupFailure }
func (TestCollectionStarting) MessageType() string { return TypeTestCollectionStarting }
func (TestCollectionFinished) MessageType() string { return TypeTestCollectionFinished }
func (TestCollectionCleanupFailure) MessageType() string { return TypeTestCollectionCleanupFailure }
func (TestClassStarting) MessageType() string { return TypeTestClassStarting }
func (TestClassFinished) MessageType() string { return TypeTestClassFinished }
func (TestClassCleanupFailure) MessageType() string { return TypeTestClassCleanupFailure }
func (TestMethodStarting) MessageType() string { return TypeTestMethodStarting }
func (TestMethodFinished) MessageType() string { return TypeTestMethodFinished }
func (TestMethodCleanupFailure) MessageType() string { return TypeTestMethodCleanupFailure }
func (TestCaseStarting) MessageType() string { return TypeTestCaseStarting }
func (TestCaseFinished) MessageType() string { return TypeTestCaseFinished }
func (TestCaseCleanupFailure) MessageType() string { return TypeTestCaseCleanupFailure }
func (TestStarting) MessageType() string { return TypeTestStarting }
func (TestFinished) MessageType() string { return TypeTestFinished }
func (TestCleanupFailure) MessageType() string { return TypeTestCleanupFailure }
func (TestPassed) MessageType() string { return TypeTestPassed }
func (TestFailed) MessageType() string { return TypeTestFailed }
func (TestSkipped) MessageType() string { return TypeTestSkipped }
func (TestNotRun) MessageType() string { return TypeTestNotRun }
func (TestOutput) MessageType() string { return TypeTestOutput }
func (TestClassConstructionStarting) MessageType() string { return TypeTestClassConstructionStarting }
func (TestClassConstructionFinished) MessageType() string { return TypeTestClassConstructionFinished }
func (TestClassDisposeStarting) MessageType() string { return TypeTestClassDisposeStarting }
func (TestClassDisposeFinished) MessageType() string { return TypeTestClassDisposeFinished }
func (ErrorMessage) MessageType() string { return TypeErrorMessage }
func (DiagnosticMessage) MessageType() string { return TypeDiagnosticMessage }
func (InternalDiagnosticMessage) MessageType() string { return TypeInternalDiagnosticMessage }

// IsTestFailure reports whether msg is a failing test outcome.
func IsTestFailure(msg Message) bool {
	_, ok := msg.(TestFailed)
	if !ok {
		_, ok = msg.(*TestFailed)
	}
	return ok
}
