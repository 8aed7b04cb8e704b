// Package snapshot stores the output of tests next to their plan and
// compares later runs against it.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/pmezard/go-difflib/difflib"
)

const (
	// Dir is the directory, beside each plan, holding its snapshots.
	Dir = "__snapshots__"
	// Ext is the extension of snapshot files.
	Ext = ".snap.json"
)

// Manager handles snapshot storage and comparison. It is safe for
// concurrent use, as tests of parallel collections share one Manager.
type Manager struct {
	update bool

	mu      sync.Mutex
	files   map[string]map[string]any // snapshot file -> key -> value
	created int
	updated int
}

// NewManager returns a Manager. In update mode missing and mismatching
// snapshots are written instead of failing.
func NewManager(update bool) *Manager {
	return &Manager{
		update: update,
		files:  make(map[string]map[string]any),
	}
}

// Result is the outcome of one comparison.
type Result struct {
	Passed     bool
	Message    string
	Expected   any
	Actual     any
	IsNew      bool
	WasUpdated bool
}

// Compare checks actual against the snapshot named key in the snapshot
// file of planFile. name distinguishes several snapshots of one test.
func (m *Manager) Compare(planFile, test, name string, actual any) *Result {
	result := &Result{Actual: actual}
	path := FilePath(planFile)
	key := Key(test, name)

	m.mu.Lock()
	defer m.mu.Unlock()

	snapshots, err := m.load(path)
	if err != nil {
		result.Message = fmt.Sprintf("failed to load snapshots: %v", err)
		return result
	}

	expected, exists := snapshots[key]
	if !exists {
		if !m.update {
			result.Message = fmt.Sprintf("snapshot %q does not exist (run with --update-snapshots to create it)", key)
			return result
		}
		if err := m.store(path, snapshots, key, actual); err != nil {
			result.Message = fmt.Sprintf("failed to save snapshot: %v", err)
			return result
		}
		m.created++
		result.Passed = true
		result.IsNew = true
		result.Expected = actual
		result.Message = "new snapshot created"
		return result
	}

	result.Expected = expected
	if equal(expected, actual) {
		result.Passed = true
		return result
	}

	if m.update {
		if err := m.store(path, snapshots, key, actual); err != nil {
			result.Message = fmt.Sprintf("failed to update snapshot: %v", err)
			return result
		}
		m.updated++
		result.Passed = true
		result.WasUpdated = true
		result.Message = "snapshot updated"
		return result
	}

	result.Message = "snapshot mismatch"
	if diff := Diff(expected, actual); diff != "" {
		result.Message += ":\n" + diff
	}
	return result
}

// Stats reports how many snapshots were created and updated.
func (m *Manager) Stats() (created, updated int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.created, m.updated
}

// FilePath returns the snapshot file of a plan:
// dir/example.plan.yaml is stored in dir/__snapshots__/example.snap.json.
func FilePath(planFile string) string {
	base := filepath.Base(planFile)
	for _, ext := range []string{".plan.yaml", ".plan.yml", filepath.Ext(base)} {
		if trimmed, ok := strings.CutSuffix(base, ext); ok && ext != "" {
			base = trimmed
			break
		}
	}
	return filepath.Join(filepath.Dir(planFile), Dir, base+Ext)
}

// Key returns the storage key of a snapshot.
func Key(test, name string) string {
	if name != "" {
		return test + "::" + name
	}
	return test
}

// Diff renders a unified diff of the JSON forms of expected and actual.
func Diff(expected, actual any) string {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(render(expected)),
		B:        difflib.SplitLines(render(actual)),
		FromFile: "snapshot",
		ToFile:   "actual",
		Context:  2,
	})
	if err != nil {
		return ""
	}
	return strings.TrimRight(diff, "\n")
}

func render(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v\n", v)
	}
	return string(data) + "\n"
}

// load must be called with m.mu held.
func (m *Manager) load(path string) (map[string]any, error) {
	if cached, ok := m.files[path]; ok {
		return cached, nil
	}

	snapshots := make(map[string]any)
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, err
	default:
		if err := json.Unmarshal(data, &snapshots); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	m.files[path] = snapshots
	return snapshots, nil
}

// store must be called with m.mu held.
func (m *Manager) store(path string, snapshots map[string]any, key string, value any) error {
	snapshots[key] = normalize(value)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	// encoding/json sorts map keys, so files stay stable across runs.
	data, err := json.MarshalIndent(snapshots, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

// Keys lists the snapshots stored for planFile, sorted.
func Keys(planFile string) ([]string, error) {
	data, err := os.ReadFile(FilePath(planFile))
	if err != nil {
		return nil, err
	}
	var snapshots map[string]any
	if err := json.Unmarshal(data, &snapshots); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(snapshots))
	for k := range snapshots {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// normalize converts v to the shape it has after a JSON round trip.
func normalize(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

func equal(a, b any) bool {
	return reflect.DeepEqual(normalize(a), normalize(b))
}
