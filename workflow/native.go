package workflow

import (
	"context"
	"fmt"

	"tangled.sh/tangled.sh/stepc/log"
	"tangled.sh/tangled.sh/stepc/models"
)

const DefaultMaxDepth = 32

// JobCompiler turns a job step into the Task state that runs it and the one
// resource that defines the job.
type JobCompiler interface {
	CompileJob(ctx context.Context, step models.Step, depth int) (models.State, models.Resource, error)
}

// Compiler turns source steps into state-machine states. Resources found
// while compiling are passed to the caller's Emit in discovery order, which
// for nested Parallel steps is before the enclosing state is complete.
type Compiler struct {
	Jobs        JobCompiler
	MaxDepth    int
	Diagnostics Diagnostics
}

func New(jobs JobCompiler, maxDepth int) *Compiler {
	return &Compiler{
		Jobs:     jobs,
		MaxDepth: maxDepth,
	}
}

func (c *Compiler) maxDepth() int {
	if c.MaxDepth <= 0 {
		return DefaultMaxDepth
	}
	return c.MaxDepth
}

func (c *Compiler) checkDepth(step models.Step, depth int) error {
	if depth > c.maxDepth() {
		return &StepError{
			Name:  step.Name(),
			Depth: depth,
			Err:   fmt.Errorf("%w: limit is %d", ErrMaxDepthExceeded, c.maxDepth()),
		}
	}
	return nil
}

// CompileStep compiles any step, handing job steps to the job compiler and
// everything else to CompileNative.
func (c *Compiler) CompileStep(ctx context.Context, step models.Step, depth int, emit models.Emit) (models.State, error) {
	if step.Kind() != models.KindJob {
		return c.CompileNative(ctx, step, depth, emit)
	}

	if err := c.checkDepth(step, depth); err != nil {
		return models.State{}, err
	}
	if c.Jobs == nil {
		return models.State{}, &StepError{step.Name(), depth, fmt.Errorf("%w: no job compiler configured", ErrUnrecognizedStepType)}
	}

	state, res, err := c.Jobs.CompileJob(ctx, step, depth)
	if err != nil {
		return models.State{}, &StepError{step.Name(), depth, err}
	}

	log.FromContext(ctx).Debug("discovered resource", "name", res.Name, "step", step.Name(), "depth", depth)
	if emit != nil {
		emit(res)
	}
	return state, nil
}

// CompileNative compiles a Pass, Task, Wait, Succeed, Fail or Parallel step.
func (c *Compiler) CompileNative(ctx context.Context, step models.Step, depth int, emit models.Emit) (models.State, error) {
	if err := c.checkDepth(step, depth); err != nil {
		return models.State{}, err
	}

	kind := step.Kind()
	if !kind.IsNative() {
		spec := step.Spec()
		t, _ := spec.Get("Type")
		return models.State{}, &StepError{step.Name(), depth, fmt.Errorf("%w: %v", ErrUnrecognizedStepType, t)}
	}

	log.FromContext(ctx).Debug("compiling native step", "name", step.Name(), "type", kind, "depth", depth)

	spec := step.Spec()

	switch kind {
	case models.KindSucceed, models.KindFail:
		if stet, _ := spec.Get("_stet"); truthy(stet) {
			c.Diagnostics.AddWarning(step.Name(), StetIgnored, fmt.Sprintf("%s states carry no result or output routing", kind))
		}
		for _, k := range []string{"_stet", "Next", "End", "ResultPath", "OutputPath"} {
			spec.Delete(k)
		}
		return models.State{Name: step.Name(), Spec: spec}, nil

	case models.KindParallel:
		branches, err := c.compileParallel(ctx, step, depth, emit)
		if err != nil {
			return models.State{}, err
		}
		spec.Set("Branches", branches)
	}

	c.normalize(step, &spec)

	return models.State{Name: step.Name(), Spec: spec}, nil
}

// normalize applies the routing rules shared by all non-terminal states.
func (c *Compiler) normalize(step models.Step, spec *models.Spec) {
	stet, _ := spec.Get("_stet")
	spec.Delete("_stet")

	if !truthy(stet) {
		if spec.Has("ResultPath") {
			if step.Kind() == models.KindPass && spec.Has("Result") {
				c.Diagnostics.AddWarning(step.Name(), ResultDiscarded, "Result is set but ResultPath is forced to null")
			}
			spec.Set("ResultPath", nil)
		}
		if spec.Has("OutputPath") {
			spec.Set("OutputPath", "$")
		}
	}

	if successor := step.Successor(); successor.IsTerminal() {
		spec.Delete("Next")
		spec.Set("End", true)
	} else {
		spec.Delete("End")
		spec.Set("Next", successor.Name())
	}
}

func truthy(v any) bool {
	switch v := v.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case int:
		return v != 0
	case int64:
		return v != 0
	case uint64:
		return v != 0
	case float64:
		return v != 0
	case []any:
		return len(v) > 0
	case models.Spec:
		return v.Len() > 0
	default:
		return true
	}
}
