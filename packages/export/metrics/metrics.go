// Package metrics aggregates test durations and outcomes from the run message
// stream and exports them.
package metrics

import (
	"errors"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/abdul-hamid-achik/hitrun/packages/core/messages"
)

// Histogram range: 1µs to 1h, 3 significant digits.
const (
	minTrackable = 1
	maxTrackable = int64(time.Hour / time.Microsecond)
	sigFigs      = 3
)

// TestMetrics is the record of one finished test.
type TestMetrics struct {
	TestName   string    `json:"test_name"`
	Class      string    `json:"class"`
	Collection string    `json:"collection"`
	Status     string    `json:"status"`
	Cause      string    `json:"cause,omitempty"`
	DurationMs float64   `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// AggregateMetrics summarises every recorded test.
type AggregateMetrics struct {
	TotalTests      int64                      `json:"total_tests"`
	PassedCount     int64                      `json:"passed_count"`
	FailedCount     int64                      `json:"failed_count"`
	SkippedCount    int64                      `json:"skipped_count"`
	NotRunCount     int64                      `json:"not_run_count"`
	TotalDurationMs float64                    `json:"total_duration_ms"`
	MinDurationMs   float64                    `json:"min_duration_ms"`
	MaxDurationMs   float64                    `json:"max_duration_ms"`
	AvgDurationMs   float64                    `json:"avg_duration_ms"`
	P50DurationMs   float64                    `json:"p50_duration_ms"`
	P95DurationMs   float64                    `json:"p95_duration_ms"`
	P99DurationMs   float64                    `json:"p99_duration_ms"`
	FailuresByCause map[string]int64           `json:"failures_by_cause"`
	ByClass         map[string]*ClassAggregate `json:"by_class"`
}

// ClassAggregate summarises the tests of one class.
type ClassAggregate struct {
	Name          string  `json:"name"`
	TotalTests    int64   `json:"total_tests"`
	FailedCount   int64   `json:"failed_count"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
	MinDurationMs float64 `json:"min_duration_ms"`
	MaxDurationMs float64 `json:"max_duration_ms"`
}

// Exporter is the interface for metrics exporters
type Exporter interface {
	// Export exports metrics to the target destination
	Export(metrics *AggregateMetrics) error

	// ExportSingle exports a single test metric
	ExportSingle(metric *TestMetrics) error

	// Close closes the exporter and flushes any buffered data
	Close() error
}

// Collector is a message sink that feeds every finished test to its
// exporters and keeps the aggregate.
type Collector struct {
	mu        sync.Mutex
	exporters []Exporter
	aggregate *AggregateMetrics
	histogram *hdrhistogram.Histogram

	collections map[string]string
	classes     map[string]string
	tests       map[string]string
}

// NewCollector creates a new metrics collector
func NewCollector(exporters ...Exporter) *Collector {
	return &Collector{
		exporters: exporters,
		aggregate: newAggregate(),
		histogram: hdrhistogram.New(minTrackable, maxTrackable, sigFigs),

		collections: make(map[string]string),
		classes:     make(map[string]string),
		tests:       make(map[string]string),
	}
}

func newAggregate() *AggregateMetrics {
	return &AggregateMetrics{
		FailuresByCause: make(map[string]int64),
		ByClass:         make(map[string]*ClassAggregate),
	}
}

// OnMessage implements messages.Sink. It never asks the run to stop.
func (c *Collector) OnMessage(msg messages.Message) bool {
	switch m := msg.(type) {
	case messages.TestCollectionStarting:
		c.remember(c.collections, m.TestCollectionUniqueID, m.TestCollectionDisplayName)
	case messages.TestClassStarting:
		c.remember(c.classes, m.TestClassUniqueID, m.TestClassName)
	case messages.TestStarting:
		c.remember(c.tests, m.TestUniqueID, m.TestDisplayName)
	case messages.TestPassed:
		c.Record(c.metric(m.TestResultMessage, "passed", ""))
	case messages.TestFailed:
		c.Record(c.metric(m.TestResultMessage, "failed", string(m.Cause)))
	case messages.TestSkipped:
		c.Record(c.metric(m.TestResultMessage, "skipped", ""))
	case messages.TestNotRun:
		c.Record(c.metric(m.TestResultMessage, "notRun", ""))
	}
	return true
}

func (c *Collector) remember(into map[string]string, id, name string) {
	c.mu.Lock()
	into[id] = name
	c.mu.Unlock()
}

func (c *Collector) metric(m messages.TestResultMessage, status, cause string) *TestMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts := m.FinishTime
	if ts.IsZero() {
		ts = time.Now()
	}
	return &TestMetrics{
		TestName:   c.tests[m.TestUniqueID],
		Class:      c.classes[m.TestClassUniqueID],
		Collection: c.collections[m.TestCollectionUniqueID],
		Status:     status,
		Cause:      cause,
		DurationMs: float64(m.ExecutionTime) / float64(time.Millisecond),
		Timestamp:  ts,
	}
}

// Record records a test metric
func (c *Collector) Record(m *TestMetrics) {
	c.mu.Lock()
	c.updateAggregate(m)
	exporters := c.exporters
	c.mu.Unlock()

	for _, exp := range exporters {
		_ = exp.ExportSingle(m)
	}
}

func (c *Collector) updateAggregate(m *TestMetrics) {
	a := c.aggregate
	a.TotalTests++
	switch m.Status {
	case "passed":
		a.PassedCount++
	case "failed":
		a.FailedCount++
		a.FailuresByCause[m.Cause]++
	case "skipped":
		a.SkippedCount++
	case "notRun":
		a.NotRunCount++
	}

	// Durations only describe tests that actually ran.
	if m.Status != "passed" && m.Status != "failed" {
		return
	}
	ran := a.PassedCount + a.FailedCount

	a.TotalDurationMs += m.DurationMs
	if ran == 1 {
		a.MinDurationMs = m.DurationMs
		a.MaxDurationMs = m.DurationMs
	} else {
		a.MinDurationMs = min(a.MinDurationMs, m.DurationMs)
		a.MaxDurationMs = max(a.MaxDurationMs, m.DurationMs)
	}
	a.AvgDurationMs = a.TotalDurationMs / float64(ran)

	us := int64(m.DurationMs * 1000)
	if us < minTrackable {
		us = minTrackable
	}
	_ = c.histogram.RecordValue(min(us, maxTrackable))
	a.P50DurationMs = float64(c.histogram.ValueAtQuantile(50)) / 1000
	a.P95DurationMs = float64(c.histogram.ValueAtQuantile(95)) / 1000
	a.P99DurationMs = float64(c.histogram.ValueAtQuantile(99)) / 1000

	ca := a.ByClass[m.Class]
	if ca == nil {
		ca = &ClassAggregate{Name: m.Class, MinDurationMs: m.DurationMs, MaxDurationMs: m.DurationMs}
		a.ByClass[m.Class] = ca
	}
	ca.TotalTests++
	if m.Status == "failed" {
		ca.FailedCount++
	}
	ca.MinDurationMs = min(ca.MinDurationMs, m.DurationMs)
	ca.MaxDurationMs = max(ca.MaxDurationMs, m.DurationMs)
	ca.AvgDurationMs = (ca.AvgDurationMs*float64(ca.TotalTests-1) + m.DurationMs) / float64(ca.TotalTests)
}

// GetAggregate returns a copy of the aggregated metrics.
func (c *Collector) GetAggregate() *AggregateMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := *c.aggregate
	out.FailuresByCause = make(map[string]int64, len(c.aggregate.FailuresByCause))
	for k, v := range c.aggregate.FailuresByCause {
		out.FailuresByCause[k] = v
	}
	out.ByClass = make(map[string]*ClassAggregate, len(c.aggregate.ByClass))
	for k, v := range c.aggregate.ByClass {
		ca := *v
		out.ByClass[k] = &ca
	}
	return &out
}

// Flush exports the aggregate to every exporter.
func (c *Collector) Flush() error {
	agg := c.GetAggregate()
	var errs []error
	for _, exp := range c.exporters {
		if err := exp.Export(agg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes all exporters
func (c *Collector) Close() error {
	var errs []error
	for _, exp := range c.exporters {
		if err := exp.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
