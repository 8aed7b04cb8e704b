package plan

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"reflect"
	"time"

	"github.com/abdul-hamid-achik/hitrun/packages/core/env"
	"github.com/abdul-hamid-achik/hitrun/packages/core/model"
)

// Load reads the plan at path and builds its assembly.
func Load(path string, opts Options) (*model.Assembly, error) {
	p, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return Build(p, path, opts)
}

// Build turns p into an assembly. path locates the plan: commands run in its
// directory and its dotenv files are loaded. ErrNoTests is returned when the
// filter leaves nothing to run.
func Build(p *Plan, path string, opts Options) (*model.Assembly, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve plan path: %w", err)
	}
	dir := filepath.Dir(abs)

	environment, err := env.LoadEnvironment(dir, opts.Environment, p.Variables, p.Environments)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "plan", "plan", p.Name)

	resolver := env.NewResolver()
	resolver.SetVariables(environment.Variables)
	resolver.SetWarnFunc(func(format string, args ...any) {
		logger.Debug(fmt.Sprintf(format, args...))
	})

	b := &builder{
		plan:     p,
		path:     abs,
		opts:     opts,
		logger:   logger,
		resolver: resolver,
		shell:    &Shell{Program: p.Shell, Dir: dir},
	}
	a := b.assembly()
	if countCases(a) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoTests)
	}
	logger.Debug("plan built", "collections", len(a.Collections), "cases", countCases(a))
	return a, nil
}

type builder struct {
	plan     *Plan
	path     string
	opts     Options
	logger   *slog.Logger
	resolver *env.Resolver
	shell    *Shell
}

func (b *builder) assembly() *model.Assembly {
	a := model.NewAssembly(b.plan.Name, b.path, b.opts.ConfigPath)
	a.Traits = b.plan.Traits.toModel()
	if len(b.plan.Fixtures) > 0 {
		a.Fixtures = append(a.Fixtures, b.assemblyFixture(b.plan.Fixtures))
	}

	for _, col := range b.plan.Collections {
		b.collection(a, col)
	}
	for _, class := range b.plan.Classes {
		b.collection(a, &Collection{
			Name:    fmt.Sprintf("Test collection for %s", class.Name),
			Classes: []*Class{class},
		})
	}

	kept := a.Collections[:0]
	for _, col := range a.Collections {
		if len(col.Classes) > 0 {
			kept = append(kept, col)
		}
	}
	a.Collections = kept
	return a
}

func (b *builder) collection(a *model.Assembly, def *Collection) {
	col := a.NewCollection(def.Name)
	col.DefinitionName = def.Name
	col.Traits = def.Traits.toModel()
	col.DisableParallelization = def.Parallel != nil && !*def.Parallel
	if len(def.Fixtures) > 0 {
		col.Fixtures = append(col.Fixtures, b.collectionFixture(def.Fixtures))
	}
	if def.Order != "" {
		col.TestCaseOrderer = b.orderer(def.Order)
	}

	for _, class := range def.Classes {
		k := b.class(col, def, class)
		if len(k.Methods) == 0 {
			col.Classes = col.Classes[:len(col.Classes)-1]
		}
	}
}

func (b *builder) orderer(name string) model.TestCaseOrderer {
	o, err := model.ParseTestCaseOrderer(name, b.opts.Seed)
	if err != nil {
		// Names are checked by the schema.
		return model.DefaultTestCaseOrderer{}
	}
	return o
}

func (b *builder) class(col *model.Collection, colDef *Collection, def *Class) *model.Class {
	k := col.NewClass(def.Name)
	k.Traits = def.Traits.toModel()
	if def.Order != "" {
		k.Orderer = b.orderer(def.Order)
	}

	params := []model.Parameter{
		{Name: "context", Role: model.RoleContextAccessor},
		{Name: "output", Role: model.RoleOutputHelper},
	}
	if len(b.plan.Fixtures) > 0 {
		params = append(params, model.Parameter{Name: "assemblyFixture", Role: model.RoleFixture, Type: reflect.TypeOf((**AssemblyFixture)(nil)).Elem()})
	}
	if len(colDef.Fixtures) > 0 {
		params = append(params, model.Parameter{Name: "collectionFixture", Role: model.RoleFixture, Type: reflect.TypeOf((**CollectionFixture)(nil)).Elem()})
	}
	classFixtures := append(append([]*Fixture(nil), colDef.ClassFixtures...), def.Fixtures...)
	if len(classFixtures) > 0 {
		k.ClassFixtures = append(k.ClassFixtures, b.classFixture(classFixtures))
		params = append(params, model.Parameter{Name: "classFixture", Role: model.RoleFixture, Type: reflect.TypeOf((**ClassFixture)(nil)).Elem()})
	}
	k.Constructors = []*model.Constructor{{Params: params, New: b.construct(def)}}

	for _, t := range def.Tests {
		m := k.NewMethod(t.Name, model.ReturnsTask, b.invoke(t))
		m.Traits = t.Traits.toModel()
		b.cases(m, t)
		if len(m.Cases) == 0 {
			k.Methods = k.Methods[:len(k.Methods)-1]
		}
	}
	return k
}

func (b *builder) cases(m *model.Method, t *Test) {
	rows := t.Cases
	if len(rows) == 0 {
		rows = []*Case{{}}
	}

	for _, row := range rows {
		var tc *model.TestCase
		if row.Args == nil {
			tc = m.NewCase(caseName(t, row))
		} else {
			tc = m.NewCase(caseName(t, row), row.Args)
		}
		tc.Explicit = t.Explicit
		tc.SkipReason = t.Skip
		if row.Skip != "" {
			tc.SkipReason = row.Skip
		}
		if t.SkipWhen != "" {
			tc.SkipFunc = b.skipWhen(t.SkipWhen)
		}
		tc.Timeout = b.timeoutMillis(t)
		tc.SourceFile = b.path
		tc.SourceLine = t.Line

		if !b.opts.Filter.Empty() && !b.opts.Filter.Matches(m.Class.Name, t.Name, b.traitsOf(tc)) {
			m.Cases = m.Cases[:len(m.Cases)-1]
		}
	}
}

func caseName(t *Test, row *Case) string {
	switch {
	case row.Name != "":
		return fmt.Sprintf("%s(%s)", t.Name, row.Name)
	case len(row.Args) > 0:
		return fmt.Sprintf("%s(%s)", t.Name, row.Args)
	}
	return t.Name
}

// traitsOf merges every level's traits for filtering.
func (b *builder) traitsOf(tc *model.TestCase) model.Traits {
	k := tc.Method.Class
	return k.Collection.Assembly.Traits.Merge(k.Collection.Traits).Merge(tc.AllTraits())
}

func (b *builder) timeoutMillis(t *Test) int {
	d := b.opts.DefaultTimeout
	if t.Timeout != "" {
		if parsed, err := time.ParseDuration(t.Timeout); err == nil {
			d = parsed
		}
	}
	return int(d / time.Millisecond)
}

func (b *builder) skipWhen(condition string) func(ctx context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		res, err := b.shell.Run(ctx, b.resolver.Resolve(condition), nil)
		if err != nil {
			return "", fmt.Errorf("skipWhen %q: %w", condition, err)
		}
		switch res.ExitCode {
		case 0:
			return fmt.Sprintf("condition %q was met", condition), nil
		case 1:
			return "", nil
		}
		return "", &CommandError{Command: condition, ExitCode: res.ExitCode, Output: res.Stderr}
	}
}

func countCases(a *model.Assembly) int {
	n := 0
	for _, col := range a.Collections {
		for _, k := range col.Classes {
			n += len(k.TestCases())
		}
	}
	return n
}
