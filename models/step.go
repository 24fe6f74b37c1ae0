package models

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindPass
	KindTask
	KindWait
	KindSucceed
	KindFail
	KindParallel
	KindJob
)

var nativeKinds = map[string]Kind{
	"Pass":     KindPass,
	"Task":     KindTask,
	"Wait":     KindWait,
	"Succeed":  KindSucceed,
	"Fail":     KindFail,
	"Parallel": KindParallel,
}

func (k Kind) String() string {
	for name, kind := range nativeKinds {
		if kind == k {
			return name
		}
	}
	if k == KindJob {
		return "job"
	}
	return "unknown"
}

// IsNative reports whether k is one of the state kinds that are compiled
// directly rather than through the job-step compiler.
func (k Kind) IsNative() bool {
	return k >= KindPass && k <= KindParallel
}

// job steps carry no Type tag; any of these keys marks one
var jobStepKeys = []string{"image", "commands"}

// Classify computes the discriminant of a raw step mapping.
func Classify(spec Spec) Kind {
	if t, ok := spec.Get("Type"); ok {
		name, _ := t.(string)
		if kind, ok := nativeKinds[name]; ok {
			return kind
		}
		return KindUnknown
	}
	for _, k := range jobStepKeys {
		if spec.Has(k) {
			return KindJob
		}
	}
	return KindUnknown
}

// Successor is the outgoing edge of a step. The zero value is terminal.
type Successor struct {
	next string
}

var Terminal = Successor{}

func NextStep(name string) Successor {
	return Successor{next: name}
}

func (s Successor) IsTerminal() bool {
	return s.next == ""
}

func (s Successor) Name() string {
	return s.next
}

func (s Successor) String() string {
	if s.IsTerminal() {
		return "<end>"
	}
	return s.next
}

// Step is a read-only view of one source step.
type Step struct {
	name      string
	kind      Kind
	spec      Spec
	successor Successor
}

func NewStep(name string, spec Spec, successor Successor) Step {
	return Step{
		name:      name,
		kind:      Classify(spec),
		spec:      spec.Clone(),
		successor: successor,
	}
}

func (s Step) Name() string {
	return s.name
}

func (s Step) Kind() Kind {
	return s.kind
}

// Spec returns a copy of the step's raw mapping.
func (s Step) Spec() Spec {
	return s.spec.Clone()
}

func (s Step) Successor() Successor {
	return s.successor
}

// State is a compiled state-machine state.
type State struct {
	Name string
	Spec Spec
}

// Resource is an infrastructure descriptor required by a compiled state.
type Resource struct {
	Name string
	Spec Spec
}

// Emit receives resources in the order they are discovered.
type Emit func(Resource)

// Entry is one element of a step sequence: a single-key mapping from the
// step name to its body.
type Entry struct {
	Name string
	Spec Spec
}

var ErrMalformedEntry = errors.New("malformed step entry")

// ParseEntries reads a sequence of single-key step mappings.
func ParseEntries(v any) ([]Entry, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected a sequence of steps, got %T", ErrMalformedEntry, v)
	}

	entries := make([]Entry, 0, len(items))
	for i, item := range items {
		m, ok := item.(Spec)
		if !ok || m.Len() != 1 {
			return nil, fmt.Errorf("%w: item %d must be a mapping with exactly one key", ErrMalformedEntry, i)
		}
		f := m.fields[0]
		if f.Key == "" {
			return nil, fmt.Errorf("%w: item %d has an empty step name", ErrMalformedEntry, i)
		}
		body, ok := f.Value.(Spec)
		if !ok {
			return nil, fmt.Errorf("%w: step %q must be a mapping, got %T", ErrMalformedEntry, f.Key, f.Value)
		}
		entries = append(entries, Entry{Name: f.Key, Spec: body})
	}
	return entries, nil
}

// Chain turns an ordered sequence of entries into steps, each pointing at
// the one after it. The last step is terminal.
func Chain(entries []Entry) []Step {
	steps := make([]Step, len(entries))
	for i, e := range entries {
		successor := Terminal
		if i+1 < len(entries) {
			successor = NextStep(entries[i+1].Name)
		}
		steps[i] = NewStep(e.Name, e.Spec, successor)
	}
	return steps
}

// WorkflowParams are workflow-wide options handed to the job-step compiler.
type WorkflowParams struct {
	Name       string `mapstructure:"name" yaml:"name"`
	TaskRole   string `mapstructure:"task_role" yaml:"task_role"`
	Shell      string `mapstructure:"shell" yaml:"shell"`
	Repository string `mapstructure:"repository" yaml:"repository"`
}
