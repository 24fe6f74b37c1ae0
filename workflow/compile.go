package workflow

import (
	"context"
	"fmt"

	"tangled.sh/tangled.sh/stepc/log"
	"tangled.sh/tangled.sh/stepc/models"
)

// Template is a fully compiled workflow: the top-level state machine and
// every resource its job steps need, in discovery order.
type Template struct {
	StartAt   string
	States    models.Spec
	Resources []models.Resource
}

// convert a workflow's steps into a state machine plus the resources backing
// its jobs. nothing is returned when any step fails to compile. Diagnostics
// only hold the warnings of the latest call.
func (c *Compiler) Compile(ctx context.Context, wf Workflow) (*Template, error) {
	c.Diagnostics = Diagnostics{}

	l := log.FromContext(ctx).With("workflow", wf.Name)
	ctx = log.IntoContext(ctx, l)

	if err := checkEntries(wf.Steps); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedWorkflow, err)
	}

	var resources []models.Resource
	emit := func(r models.Resource) {
		resources = append(resources, r)
	}

	states, err := c.compileSequence(ctx, wf.Steps, 0, emit)
	if err != nil {
		return nil, err
	}

	l.Info("compiled workflow", "states", states.Len(), "resources", len(resources), "warnings", len(c.Diagnostics.Warnings))

	return &Template{
		StartAt:   wf.Steps[0].Name,
		States:    states,
		Resources: resources,
	}, nil
}

func (t *Template) StateMachine() models.Spec {
	return models.NewSpec(
		models.Field{Key: "StartAt", Value: t.StartAt},
		models.Field{Key: "States", Value: t.States},
	)
}

// Document renders the template as
//
//	StateMachine: {StartAt, States}
//	Resources: {<name>: <spec>, ...}
//
// Resource names must be unique across the whole workflow.
func (t *Template) Document() (models.Spec, error) {
	var resources models.Spec
	for _, r := range t.Resources {
		if resources.Has(r.Name) {
			return models.Spec{}, fmt.Errorf("%w: %s", ErrDuplicateResource, r.Name)
		}
		resources.Set(r.Name, r.Spec)
	}

	return models.NewSpec(
		models.Field{Key: "StateMachine", Value: t.StateMachine()},
		models.Field{Key: "Resources", Value: resources},
	), nil
}
