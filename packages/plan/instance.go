package plan

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/abdul-hamid-achik/hitrun/packages/assertions"
	"github.com/abdul-hamid-achik/hitrun/packages/core/env"
	"github.com/abdul-hamid-achik/hitrun/packages/core/model"
	"github.com/abdul-hamid-achik/hitrun/packages/core/testcontext"
	"github.com/abdul-hamid-achik/hitrun/packages/snapshot"
)

// classInstance is built once per test. Its shell carries the values
// captured by the fixtures it was constructed with.
type classInstance struct {
	class    *Class
	shell    *Shell
	resolver *env.Resolver
	tctx     *testcontext.Context
	output   *testcontext.OutputHelper

	planFile  string
	snapshots *snapshot.Manager
}

// disposableInstance is used for classes with a teardown.
type disposableInstance struct {
	*classInstance
}

func (d *disposableInstance) DisposeAsync(ctx context.Context) error {
	if _, err := d.shell.Exec(ctx, d.resolver.Resolve(d.class.Teardown), d.output); err != nil {
		return fmt.Errorf("class %q teardown: %w", d.class.Name, err)
	}
	return nil
}

func (b *builder) construct(def *Class) func(ctx context.Context, args []any) (any, error) {
	return func(ctx context.Context, args []any) (any, error) {
		inst := &classInstance{
			class:     def,
			shell:     b.shell,
			resolver:  b.resolver,
			planFile:  b.path,
			snapshots: b.opts.Snapshots,
		}
		for _, arg := range args {
			switch v := arg.(type) {
			case *testcontext.Context:
				inst.tctx = v
			case *testcontext.OutputHelper:
				inst.output = v
			case fixtureEnv:
				inst.shell = inst.shell.With(v.Env()...)
			}
		}

		if def.Setup != "" {
			if _, err := inst.shell.Exec(ctx, inst.resolver.Resolve(def.Setup), inst.output); err != nil {
				return nil, fmt.Errorf("class %q setup: %w", def.Name, err)
			}
		}
		if def.Teardown != "" {
			return &disposableInstance{inst}, nil
		}
		return inst, nil
	}
}

func instanceOf(v any) (*classInstance, error) {
	switch inst := v.(type) {
	case *classInstance:
		return inst, nil
	case *disposableInstance:
		return inst.classInstance, nil
	}
	return nil, fmt.Errorf("unexpected test class instance %T", v)
}

func (b *builder) invoke(t *Test) model.InvokeFunc {
	return func(ctx context.Context, instance any, args []any) (model.Task, error) {
		inst, err := instanceOf(instance)
		if err != nil {
			return nil, err
		}
		var caseArgs Args
		if len(args) > 0 {
			caseArgs, _ = args[0].(Args)
		}
		return model.Go(ctx, func(ctx context.Context) error {
			return inst.run(ctx, t, caseArgs)
		}), nil
	}
}

// run executes the test body, checks its expectations and publishes its
// captures.
func (inst *classInstance) run(ctx context.Context, t *Test, args Args) error {
	resolver := inst.resolver
	if len(args) > 0 {
		resolver = resolver.Clone()
		resolver.SetWarnFunc(nil)
		resolver.SetVariables(args)
	}

	for _, name := range resolver.GetUnresolvedVariables(t.Run) {
		testcontext.AddWarning(ctx, fmt.Sprintf("unresolved variable %q in command", name))
	}

	res, err := inst.shell.Run(ctx, resolver.Resolve(t.Run), inst.output)
	if err != nil {
		return err
	}
	checks := []assertions.EvaluatorOption{
		assertions.WithBaseDir(filepath.Dir(inst.planFile)),
		assertions.WithSnapshots(inst.snapshots, inst.planFile, snapshotKey(ctx, t)),
	}
	if err := t.Expect.Check(res, resolver.Resolve, checks...); err != nil {
		return err
	}

	for name, source := range t.Capture {
		value, ok := captureValue(res, source)
		if !ok {
			testcontext.AddWarning(ctx, fmt.Sprintf("capture %q: %q not found in output", name, source))
			continue
		}
		inst.resolver.SetCapture(t.Name, name, value)
		if inst.tctx != nil {
			inst.tctx.Store().Set("capture."+t.Name+"."+name, value)
		}
	}
	return nil
}

// snapshotKey names a test's snapshots by class and case display name, so
// every data row keeps its own.
func snapshotKey(ctx context.Context, t *Test) string {
	if tctx := testcontext.FromContext(ctx); tctx != nil && tctx.TestCase != nil {
		return tctx.TestCase.Method.Class.Name + "." + tctx.TestCase.DisplayName
	}
	return t.Name
}
