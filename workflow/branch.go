package workflow

import (
	"context"
	"errors"
	"fmt"

	"tangled.sh/tangled.sh/stepc/log"
	"tangled.sh/tangled.sh/stepc/models"
)

// compileParallel checks the shape of every branch of this Parallel step
// before compiling any of them. Nested Parallel steps are checked when they
// are reached, so resources from earlier branches may already be emitted.
func (c *Compiler) compileParallel(ctx context.Context, step models.Step, depth int, emit models.Emit) ([]any, error) {
	spec := step.Spec()
	raw, _ := spec.Get("Branches")

	branches, err := parseBranches(raw)
	if err != nil {
		return nil, &StepError{step.Name(), depth, err}
	}

	l := log.SubLogger(log.FromContext(ctx), step.Name())
	ctx = log.IntoContext(ctx, l)

	out := make([]any, 0, len(branches))
	for i, entries := range branches {
		l.Debug("compiling branch", "index", i, "steps", len(entries), "depth", depth+1)

		b, err := c.CompileBranch(ctx, entries, depth+1, emit)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}

	return out, nil
}

func parseBranches(raw any) ([][]models.Entry, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: Branches is missing", ErrMalformedBranchStructure)
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: Branches must be a sequence, got %T", ErrMalformedBranchStructure, raw)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: Branches is empty", ErrMalformedBranchStructure)
	}

	branches := make([][]models.Entry, 0, len(items))
	for i, item := range items {
		b, ok := item.(models.Spec)
		if !ok {
			return nil, fmt.Errorf("%w: branch %d must be a mapping, got %T", ErrMalformedBranchStructure, i, item)
		}
		for _, k := range b.Keys() {
			if k != "steps" {
				return nil, fmt.Errorf("%w: branch %d: unexpected key %q", ErrMalformedBranchStructure, i, k)
			}
		}
		steps, ok := b.Get("steps")
		if !ok {
			return nil, fmt.Errorf("%w: branch %d has no steps", ErrMalformedBranchStructure, i)
		}
		entries, err := models.ParseEntries(steps)
		if err != nil {
			return nil, fmt.Errorf("%w: branch %d: %w", ErrMalformedBranchStructure, i, err)
		}
		if err := checkEntries(entries); err != nil {
			return nil, fmt.Errorf("%w: branch %d: %w", ErrMalformedBranchStructure, i, err)
		}
		branches = append(branches, entries)
	}

	return branches, nil
}

func checkEntries(entries []models.Entry) error {
	if len(entries) == 0 {
		return errors.New("no steps")
	}
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.Name == "" {
			return fmt.Errorf("%w: empty step name", models.ErrMalformedEntry)
		}
		if seen[e.Name] {
			return fmt.Errorf("%w: %q", ErrDuplicateStep, e.Name)
		}
		seen[e.Name] = true
	}
	return nil
}

// CompileBranch compiles one branch of a Parallel step into
// {StartAt, States}. Steps are chained in order; the last one ends the
// branch.
func (c *Compiler) CompileBranch(ctx context.Context, entries []models.Entry, depth int, emit models.Emit) (models.Spec, error) {
	if err := checkEntries(entries); err != nil {
		return models.Spec{}, fmt.Errorf("%w: %w", ErrMalformedBranchStructure, err)
	}

	states, err := c.compileSequence(ctx, entries, depth, emit)
	if err != nil {
		return models.Spec{}, err
	}

	return models.NewSpec(
		models.Field{Key: "StartAt", Value: entries[0].Name},
		models.Field{Key: "States", Value: states},
	), nil
}

func (c *Compiler) compileSequence(ctx context.Context, entries []models.Entry, depth int, emit models.Emit) (models.Spec, error) {
	var states models.Spec
	for _, step := range models.Chain(entries) {
		state, err := c.CompileStep(ctx, step, depth, emit)
		if err != nil {
			return models.Spec{}, err
		}
		states.Set(state.Name, state.Spec)
	}
	return states, nil
}
