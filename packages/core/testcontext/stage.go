package testcontext

// Stage identifies the part of the pipeline that is currently executing.
type Stage int

const (
	StageUnknown Stage = iota
	StageInitialization
	StageAssemblyExecution
	StageCollectionExecution
	StageClassExecution
	StageMethodExecution
	StageTestCaseExecution
	StageTestExecution
	StageCleanup
)

func (s Stage) String() string {
	switch s {
	case StageInitialization:
		return "Initialization"
	case StageAssemblyExecution:
		return "TestAssemblyExecution"
	case StageCollectionExecution:
		return "TestCollectionExecution"
	case StageClassExecution:
		return "TestClassExecution"
	case StageMethodExecution:
		return "TestMethodExecution"
	case StageTestCaseExecution:
		return "TestCaseExecution"
	case StageTestExecution:
		return "TestExecution"
	case StageCleanup:
		return "Cleanup"
	default:
		return "Unknown"
	}
}

// TestState tracks where a single test is in its own lifecycle.
type TestState int

const (
	TestNotStarted TestState = iota
	TestConstructing
	TestRunning
	TestDisposing
	TestFinished
)
