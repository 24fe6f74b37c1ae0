// Package jobstep compiles container job steps into Batch-backed Task states
// and the job definitions they run.
package jobstep

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/stoewer/go-strcase"

	"tangled.sh/tangled.sh/stepc/corestack"
	"tangled.sh/tangled.sh/stepc/log"
	"tangled.sh/tangled.sh/stepc/models"
)

const (
	ResourceKind = "AWS::Batch::JobDefinition"

	submitJobSync = "arn:aws:states:::batch:submitJob.sync"
	defaultShell  = "sh"
	defaultCPUs   = 1
	minTimeout    = time.Minute
)

var ErrInvalidJobStep = errors.New("invalid job step")

type Compute struct {
	CPUs      int    `mapstructure:"cpus" validate:"gte=0"`
	Memory    any    `mapstructure:"memory"`
	Spot      bool   `mapstructure:"spot"`
	QueueName string `mapstructure:"queue_name"`
}

// JobStep is the decoded form of a job step body.
type JobStep struct {
	Image              string            `mapstructure:"image" validate:"required"`
	Params             map[string]any    `mapstructure:"params"`
	References         map[string]string `mapstructure:"references"`
	Inputs             map[string]string `mapstructure:"inputs"`
	Commands           []string          `mapstructure:"commands" validate:"required,min=1,dive,required"`
	Outputs            map[string]string `mapstructure:"outputs"`
	Compute            Compute           `mapstructure:"compute"`
	SkipIfOutputExists bool              `mapstructure:"skip_if_output_exists"`
	Timeout            string            `mapstructure:"timeout"`
}

// Decode converts a raw job step mapping into a validated JobStep.
func Decode(spec models.Spec) (JobStep, error) {
	var js JobStep

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &js,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return js, err
	}
	if err := dec.Decode(spec.Plain()); err != nil {
		return js, fmt.Errorf("%w: %w", ErrInvalidJobStep, err)
	}

	if err := validate.Struct(js); err != nil {
		return js, fmt.Errorf("%w: %w", ErrInvalidJobStep, err)
	}

	return js, nil
}

var validate = validator.New()

// ResourceName is the logical name of the job definition backing a step.
func ResourceName(stepName string) string {
	return strcase.UpperCamelCase(stepName) + "JobDef"
}

type Compiler struct {
	CoreStack *corestack.CoreStack
	Params    models.WorkflowParams
}

func New(cs *corestack.CoreStack, params models.WorkflowParams) *Compiler {
	return &Compiler{
		CoreStack: cs,
		Params:    params,
	}
}

// CompileJob produces the Task state invoking the job and the job
// definition it runs.
func (c *Compiler) CompileJob(ctx context.Context, step models.Step, depth int) (models.State, models.Resource, error) {
	l := log.FromContext(ctx)

	js, err := Decode(step.Spec())
	if err != nil {
		return models.State{}, models.Resource{}, err
	}

	jobDef, err := c.jobDefinition(step.Name(), js)
	if err != nil {
		return models.State{}, models.Resource{}, err
	}

	state := models.State{
		Name: step.Name(),
		Spec: c.taskState(step, js, jobDef.Name),
	}

	l.Debug("compiled job step", "name", step.Name(), "resource", jobDef.Name, "depth", depth)

	return state, jobDef, nil
}

func (c *Compiler) taskState(step models.Step, js JobStep, jobDefName string) models.Spec {
	// a fixed repository wins over the one carried in the execution input
	runtime := models.NewSpec(models.Field{Key: "repo.$", Value: "$.repo"})
	if c.Params.Repository != "" {
		runtime = models.NewSpec(models.Field{Key: "repo", Value: c.Params.Repository})
	}

	spec := models.NewSpec(
		models.Field{Key: "Type", Value: "Task"},
		models.Field{Key: "Resource", Value: submitJobSync},
		models.Field{Key: "Parameters", Value: models.NewSpec(
			models.Field{Key: "JobName", Value: step.Name()},
			models.Field{Key: "JobDefinition", Value: models.NewSpec(models.Field{Key: "Ref", Value: jobDefName})},
			models.Field{Key: "JobQueue", Value: c.jobQueue(js.Compute)},
			models.Field{Key: "Parameters", Value: runtime},
		)},
		models.Field{Key: "Retry", Value: []any{
			models.NewSpec(
				models.Field{Key: "ErrorEquals", Value: []any{"Batch.AWSBatchException"}},
				models.Field{Key: "IntervalSeconds", Value: 2},
				models.Field{Key: "MaxAttempts", Value: 3},
				models.Field{Key: "BackoffRate", Value: 2},
			),
		}},
		models.Field{Key: "ResultPath", Value: nil},
		models.Field{Key: "OutputPath", Value: "$"},
	)

	if successor := step.Successor(); successor.IsTerminal() {
		spec.Set("End", true)
	} else {
		spec.Set("Next", successor.Name())
	}

	return spec
}

func (c *Compiler) jobQueue(compute Compute) any {
	switch {
	case compute.QueueName != "":
		return compute.QueueName
	case compute.Spot:
		return c.CoreStack.Output("SpotQueueArn")
	default:
		return c.CoreStack.Output("OnDemandQueueArn")
	}
}

func (c *Compiler) jobDefinition(name string, js JobStep) (models.Resource, error) {
	memory, err := memoryMiB(js.Compute.Memory)
	if err != nil {
		return models.Resource{}, fmt.Errorf("%w: step %q: %w", ErrInvalidJobStep, name, err)
	}

	cpus := js.Compute.CPUs
	if cpus == 0 {
		cpus = defaultCPUs
	}

	shell := c.Params.Shell
	if shell == "" {
		shell = defaultShell
	}

	var role any = c.Params.TaskRole
	if c.Params.TaskRole == "" {
		role = c.CoreStack.Output("EcsTaskRoleArn")
	}

	skip := "none"
	if js.SkipIfOutputExists {
		skip = "output"
	}

	params := models.NewSpec(
		models.Field{Key: "image", Value: js.Image},
		models.Field{Key: "command", Value: strings.Join(js.Commands, "\n")},
	)
	for _, p := range []struct {
		key string
		val any
	}{
		{"inputs", js.Inputs},
		{"outputs", js.Outputs},
		{"references", js.References},
		{"params", js.Params},
	} {
		encoded, err := jsonString(p.val)
		if err != nil {
			return models.Resource{}, fmt.Errorf("%w: step %q: %s: %w", ErrInvalidJobStep, name, p.key, err)
		}
		params.Set(p.key, encoded)
	}
	params.Set("skip", skip)

	env := []any{
		envVar("BC_STEP_NAME", name),
	}
	if c.Params.Name != "" {
		env = append(env, envVar("BC_WORKFLOW_NAME", c.Params.Name))
	}

	container := models.NewSpec(
		models.Field{Key: "Image", Value: js.Image},
		models.Field{Key: "Command", Value: []any{shell, "-c", "Ref::command"}},
		models.Field{Key: "JobRoleArn", Value: role},
		models.Field{Key: "ResourceRequirements", Value: []any{
			requirement("VCPU", fmt.Sprint(cpus)),
			requirement("MEMORY", fmt.Sprint(memory)),
		}},
		models.Field{Key: "Environment", Value: env},
	)

	props := models.NewSpec(
		models.Field{Key: "Type", Value: "container"},
		models.Field{Key: "Parameters", Value: params},
		models.Field{Key: "ContainerProperties", Value: container},
		models.Field{Key: "PlatformCapabilities", Value: []any{"EC2"}},
	)

	if js.Timeout != "" {
		d, err := time.ParseDuration(js.Timeout)
		if err != nil {
			return models.Resource{}, fmt.Errorf("%w: step %q: timeout: %w", ErrInvalidJobStep, name, err)
		}
		if d < minTimeout {
			return models.Resource{}, fmt.Errorf("%w: step %q: timeout must be at least %s", ErrInvalidJobStep, name, minTimeout)
		}
		props.Set("Timeout", models.NewSpec(
			models.Field{Key: "AttemptDurationSeconds", Value: int(d.Seconds())},
		))
	}

	return models.Resource{
		Name: ResourceName(name),
		Spec: models.NewSpec(
			models.Field{Key: "Type", Value: ResourceKind},
			models.Field{Key: "Properties", Value: props},
		),
	}, nil
}

func requirement(kind, value string) models.Spec {
	return models.NewSpec(
		models.Field{Key: "Type", Value: kind},
		models.Field{Key: "Value", Value: value},
	)
}

func envVar(name, value string) models.Spec {
	return models.NewSpec(
		models.Field{Key: "Name", Value: name},
		models.Field{Key: "Value", Value: value},
	)
}

// maps are encoded with sorted keys, so the output is stable
func jsonString(m any) (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	if string(b) == "null" {
		return "{}", nil
	}
	return string(b), nil
}
