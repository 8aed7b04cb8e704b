package plan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/abdul-hamid-achik/hitrun/packages/core/env"
	"github.com/abdul-hamid-achik/hitrun/packages/core/fixtures"
	"github.com/abdul-hamid-achik/hitrun/packages/core/testcontext"
)

// shellFixtures runs the setup commands of one scope in declaration order and
// their teardowns in reverse.
type shellFixtures struct {
	scope    string
	defs     []*Fixture
	shell    *Shell
	resolver *env.Resolver

	mu      sync.Mutex
	started []*Fixture
	env     []string
}

// InitializeAsync stops at the first failing setup. Fixtures set up before
// it are still torn down.
func (f *shellFixtures) InitializeAsync(ctx context.Context) error {
	for _, def := range f.defs {
		if def.Setup != "" {
			res, err := f.shell.Exec(ctx, f.resolver.Resolve(def.Setup), nil)
			if err != nil {
				return fmt.Errorf("%s fixture %q setup: %w", f.scope, def.Name, err)
			}
			if def.Capture != "" {
				value := strings.TrimSpace(res.Stdout)
				f.resolver.SetCapture(def.Name, def.Capture, value)
				if tctx := testcontext.FromContext(ctx); tctx != nil {
					tctx.Store().Set("capture."+def.Name+"."+def.Capture, value)
				}
				f.mu.Lock()
				f.env = append(f.env, def.Capture+"="+value)
				f.mu.Unlock()
			}
		}
		f.mu.Lock()
		f.started = append(f.started, def)
		f.mu.Unlock()
	}
	return nil
}

func (f *shellFixtures) DisposeAsync(ctx context.Context) error {
	f.mu.Lock()
	started := append([]*Fixture(nil), f.started...)
	f.mu.Unlock()

	var errs []error
	for i := len(started) - 1; i >= 0; i-- {
		def := started[i]
		if def.Teardown == "" {
			continue
		}
		if _, err := f.shell.Exec(ctx, f.resolver.Resolve(def.Teardown), nil); err != nil {
			errs = append(errs, fmt.Errorf("%s fixture %q teardown: %w", f.scope, def.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Env returns the captured values as NAME=value entries.
func (f *shellFixtures) Env() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.env...)
}

// AssemblyFixture holds the plan-level fixtures.
type AssemblyFixture struct{ *shellFixtures }

// CollectionFixture holds the fixtures of one collection.
type CollectionFixture struct{ *shellFixtures }

// ClassFixture holds the fixtures of one class, including those a
// collection declares for each of its classes.
type ClassFixture struct{ *shellFixtures }

type fixtureEnv interface {
	Env() []string
}

func (b *builder) newShellFixtures(scope string, defs []*Fixture) *shellFixtures {
	return &shellFixtures{
		scope:    scope,
		defs:     defs,
		shell:    b.shell,
		resolver: b.resolver,
	}
}

func (b *builder) assemblyFixture(defs []*Fixture) fixtures.Definition {
	return fixtures.Define(func(context.Context, fixtures.Lookup) (*AssemblyFixture, error) {
		return &AssemblyFixture{b.newShellFixtures("assembly", defs)}, nil
	})
}

func (b *builder) collectionFixture(defs []*Fixture) fixtures.Definition {
	return fixtures.Define(func(context.Context, fixtures.Lookup) (*CollectionFixture, error) {
		return &CollectionFixture{b.newShellFixtures("collection", defs)}, nil
	})
}

func (b *builder) classFixture(defs []*Fixture) fixtures.Definition {
	return fixtures.Define(func(context.Context, fixtures.Lookup) (*ClassFixture, error) {
		return &ClassFixture{b.newShellFixtures("class", defs)}, nil
	})
}
