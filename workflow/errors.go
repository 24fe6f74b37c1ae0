package workflow

import (
	"errors"
	"fmt"
)

var (
	ErrUnrecognizedStepType     = errors.New("unrecognized step type")
	ErrMalformedBranchStructure = errors.New("malformed branch structure")
	ErrMaxDepthExceeded         = errors.New("maximum nesting depth exceeded")
	ErrDuplicateStep            = errors.New("duplicate step name")
	ErrDuplicateResource        = errors.New("duplicate resource name")
	ErrMalformedWorkflow        = errors.New("malformed workflow")
)

// StepError ties a compile failure to the step that caused it.
type StepError struct {
	Name  string
	Depth int
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q (depth %d): %s", e.Name, e.Depth, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

type Diagnostics struct {
	Warnings []Warning
}

func (d *Diagnostics) IsEmpty() bool {
	return len(d.Warnings) == 0
}

func (d *Diagnostics) AddWarning(path string, kind WarningKind, reason string) {
	d.Warnings = append(d.Warnings, Warning{path, kind, reason})
}

type Warning struct {
	Path   string
	Type   WarningKind
	Reason string
}

func (w Warning) String() string {
	return fmt.Sprintf("warning: %s: %s: %s", w.Path, w.Type, w.Reason)
}

type WarningKind string

var (
	ResultDiscarded WarningKind = "result discarded"
	StetIgnored     WarningKind = "stet ignored"
)
