package plan

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/abdul-hamid-achik/hitrun/packages/assertions"
	"github.com/abdul-hamid-achik/hitrun/packages/snapshot"
)

// ErrNoTests is returned when a plan, after filtering, has nothing to run.
var ErrNoTests = errors.New("no tests to run")

// PlanExtensions are the file suffixes Discover treats as plans.
var PlanExtensions = []string{".plan.yaml", ".plan.yml"}

// Options controls how a plan becomes an assembly.
type Options struct {
	// Environment selects one of the plan's environments blocks.
	Environment string
	Filter      Filter
	// DefaultTimeout applies to tests that declare no timeout.
	DefaultTimeout time.Duration
	// ConfigPath is recorded on the assembly.
	ConfigPath string
	// Seed seeds random ordering for classes that ask for it.
	Seed   *int64
	Logger *slog.Logger
	// Snapshots backs the snapshot assert operator. Without it snapshot
	// assertions fail.
	Snapshots *snapshot.Manager
}

// Parse validates data against the plan schema and decodes it.
func Parse(data []byte) (*Plan, error) {
	if err := ValidateSchema(data); err != nil {
		return nil, err
	}

	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse plan: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// LoadFile reads and parses the plan at path.
func LoadFile(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Validate checks what the schema cannot express: unique names and
// parseable timeouts.
func (p *Plan) Validate() error {
	seen := make(map[string]bool)
	for _, col := range p.Collections {
		if seen[col.Name] {
			return fmt.Errorf("duplicate collection %q", col.Name)
		}
		seen[col.Name] = true
	}

	for _, class := range p.allClasses() {
		tests := make(map[string]bool)
		for _, t := range class.Tests {
			if tests[t.Name] {
				return fmt.Errorf("class %q: duplicate test %q", class.Name, t.Name)
			}
			tests[t.Name] = true
			if t.Timeout != "" {
				d, err := time.ParseDuration(t.Timeout)
				if err != nil {
					return fmt.Errorf("class %q test %q: invalid timeout: %w", class.Name, t.Name, err)
				}
				if d <= 0 {
					return fmt.Errorf("class %q test %q: timeout must be positive", class.Name, t.Name)
				}
			}
			if t.Expect != nil {
				for _, a := range t.Expect.Assert {
					if _, err := assertions.ParseOperator(a.Op); err != nil {
						return fmt.Errorf("class %q test %q: assert %s: %w", class.Name, t.Name, a.Subject, err)
					}
				}
			}
		}
	}
	return nil
}

func (p *Plan) allClasses() []*Class {
	var out []*Class
	for _, col := range p.Collections {
		out = append(out, col.Classes...)
	}
	return append(out, p.Classes...)
}

// CountTests returns the number of test cases declared, before filtering.
func (p *Plan) CountTests() int {
	n := 0
	for _, class := range p.allClasses() {
		for _, t := range class.Tests {
			if len(t.Cases) == 0 {
				n++
			} else {
				n += len(t.Cases)
			}
		}
	}
	return n
}

// Discover expands paths into plan files. Directories are walked for files
// ending in one of PlanExtensions; files are taken as given.
func Discover(paths []string) ([]string, error) {
	var files []string
	seen := make(map[string]bool)
	add := func(path string) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		if !seen[path] {
			seen[path] = true
			files = append(files, path)
		}
	}

	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", root, err)
		}
		if !info.IsDir() {
			add(root)
			continue
		}

		var found []string
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != root && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if isPlanFile(d.Name()) {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("cannot walk %s: %w", root, err)
		}
		sort.Strings(found)
		for _, f := range found {
			add(f)
		}
	}
	return files, nil
}

func isPlanFile(name string) bool {
	for _, ext := range PlanExtensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}
