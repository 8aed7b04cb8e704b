package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// slowestCount is how many of the slowest tests the JSON report lists.
const slowestCount = 5

// JSONExporter writes one JSON document per run: metadata, the aggregate,
// every test record and the slowest tests.
type JSONExporter struct {
	mu       sync.Mutex
	writer   io.Writer
	filePath string
	version  string
	tests    []*TestMetrics
}

type JSONOption func(*JSONExporter)

// WithJSONWriter also writes the document to w.
func WithJSONWriter(w io.Writer) JSONOption {
	return func(j *JSONExporter) {
		j.writer = w
	}
}

// WithJSONFile writes the document to path, replacing it atomically.
func WithJSONFile(path string) JSONOption {
	return func(j *JSONExporter) {
		j.filePath = path
	}
}

// WithJSONVersion records the tool version in the metadata.
func WithJSONVersion(version string) JSONOption {
	return func(j *JSONExporter) {
		j.version = version
	}
}

func NewJSONExporter(opts ...JSONOption) *JSONExporter {
	j := &JSONExporter{version: "dev"}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// JSONMetricsOutput is the document the exporter writes.
type JSONMetricsOutput struct {
	Metadata    JSONMetadata      `json:"metadata"`
	Summary     *AggregateMetrics `json:"summary"`
	Slowest     []*TestMetrics    `json:"slowest"`
	TestResults []*TestMetrics    `json:"test_results"`
}

// JSONMetadata spans from the first to the last finished test.
type JSONMetadata struct {
	GeneratedAt time.Time `json:"generated_at"`
	FirstResult time.Time `json:"first_result,omitzero"`
	LastResult  time.Time `json:"last_result,omitzero"`
	Version     string    `json:"version"`
}

// Export writes the document for everything recorded so far.
func (j *JSONExporter) Export(agg *AggregateMetrics) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	doc := JSONMetricsOutput{
		Metadata:    j.metadata(),
		Summary:     agg,
		Slowest:     slowest(j.tests, slowestCount),
		TestResults: j.tests,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}
	data = append(data, '\n')

	if j.filePath != "" {
		if err := writeFileAtomic(j.filePath, data); err != nil {
			return fmt.Errorf("failed to write metrics file: %w", err)
		}
	}
	if j.writer != nil {
		if _, err := j.writer.Write(data); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}
	return nil
}

func (j *JSONExporter) metadata() JSONMetadata {
	md := JSONMetadata{GeneratedAt: time.Now().UTC(), Version: j.version}
	for _, t := range j.tests {
		if md.FirstResult.IsZero() || t.Timestamp.Before(md.FirstResult) {
			md.FirstResult = t.Timestamp
		}
		if t.Timestamp.After(md.LastResult) {
			md.LastResult = t.Timestamp
		}
	}
	return md
}

func (j *JSONExporter) ExportSingle(m *TestMetrics) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.tests = append(j.tests, m)
	return nil
}

func (j *JSONExporter) Close() error {
	return nil
}

// slowest returns up to n tests by descending duration, ties by name.
func slowest(tests []*TestMetrics, n int) []*TestMetrics {
	sorted := make([]*TestMetrics, 0, len(tests))
	for _, t := range tests {
		if t.DurationMs > 0 {
			sorted = append(sorted, t)
		}
	}
	sort.SliceStable(sorted, func(a, b int) bool {
		if sorted[a].DurationMs != sorted[b].DurationMs {
			return sorted[a].DurationMs > sorted[b].DurationMs
		}
		return sorted[a].TestName < sorted[b].TestName
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// writeFileAtomic keeps readers from ever seeing a half-written report.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".metrics-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
