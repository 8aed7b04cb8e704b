package runner

import (
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/abdul-hamid-achik/hitrun/packages/core/model"
)

// ExplicitOption controls how cases marked explicit are treated.
type ExplicitOption string

const (
	// ExplicitOff reports explicit cases as not run.
	ExplicitOff ExplicitOption = "off"
	// ExplicitOn runs every case.
	ExplicitOn ExplicitOption = "on"
	// ExplicitOnly runs explicit cases and reports the rest as not run.
	ExplicitOnly ExplicitOption = "only"
)

// ParseExplicitOption converts a configuration string to an ExplicitOption.
func ParseExplicitOption(s string) (ExplicitOption, error) {
	switch ExplicitOption(s) {
	case "", ExplicitOff:
		return ExplicitOff, nil
	case ExplicitOn, ExplicitOnly:
		return ExplicitOption(s), nil
	}
	return "", fmt.Errorf("invalid explicit option %q (expected off, on or only)", s)
}

// ParallelAlgorithm selects how parallel collections share threads.
type ParallelAlgorithm string

const (
	// Conservative limits the number of collections running at once.
	Conservative ParallelAlgorithm = "conservative"
	// Aggressive starts every parallel collection and limits the number of
	// tests running at once.
	Aggressive ParallelAlgorithm = "aggressive"
)

// ParseParallelAlgorithm converts a configuration string to a ParallelAlgorithm.
func ParseParallelAlgorithm(s string) (ParallelAlgorithm, error) {
	switch ParallelAlgorithm(s) {
	case "", Conservative:
		return Conservative, nil
	case Aggressive:
		return Aggressive, nil
	}
	return "", fmt.Errorf("invalid parallel algorithm %q (expected conservative or aggressive)", s)
}

const (
	// Unlimited disables the thread limit.
	Unlimited = -1
	// FrameworkDisplayName is reported on TestAssemblyStarting.
	FrameworkDisplayName = "hitrun"
)

// Options configures a Runner. The zero value runs collections in parallel
// with one slot per CPU.
type Options struct {
	Logger *slog.Logger
	Tracer trace.Tracer

	// DisableParallelization runs every collection serially.
	DisableParallelization bool
	// MaxParallelThreads: 0 means GOMAXPROCS, Unlimited means no limit.
	MaxParallelThreads int
	ParallelAlgorithm  ParallelAlgorithm

	StopOnFail bool
	Explicit   ExplicitOption
	FailSkips  bool

	// LongRunningTestTime enables the long running test watchdog when
	// positive.
	LongRunningTestTime time.Duration
	// InternalDiagnostics emits InternalDiagnosticMessage for scheduling
	// decisions.
	InternalDiagnostics bool

	// TestCaseOrderer is used when neither the class nor its collection
	// names one.
	TestCaseOrderer model.TestCaseOrderer
	// Seed is reported on TestAssemblyStarting when a seeded orderer is used.
	Seed *int64

	Environment string
}

func (o *Options) withDefaults() *Options {
	cp := Options{}
	if o != nil {
		cp = *o
	}
	if cp.Logger == nil {
		cp.Logger = slog.Default()
	}
	if cp.Tracer == nil {
		cp.Tracer = otel.Tracer("hitrun runner")
	}
	if cp.ParallelAlgorithm == "" {
		cp.ParallelAlgorithm = Conservative
	}
	if cp.Explicit == "" {
		cp.Explicit = ExplicitOff
	}
	if cp.TestCaseOrderer == nil {
		cp.TestCaseOrderer = model.DefaultTestCaseOrderer{}
	}
	if cp.Environment == "" {
		cp.Environment = fmt.Sprintf("%s/%s (%d-bit %s)", runtime.GOOS, runtime.GOARCH, 32<<(^uint(0)>>63), runtime.Version())
	}
	return &cp
}

// threads returns the effective thread limit, or 0 for unlimited.
func (o *Options) threads() int {
	switch {
	case o.MaxParallelThreads == Unlimited:
		return 0
	case o.MaxParallelThreads <= 0:
		return runtime.GOMAXPROCS(0)
	default:
		return o.MaxParallelThreads
	}
}
