package workflow

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"

	"tangled.sh/tangled.sh/stepc/models"
)

// a workflow file looks like
//
//	options:
//	  task_role: arn:aws:iam::123456789012:role/pipeline
//	steps:
//	  - align:
//	      image: aligner
//	      commands: [...]
//	  - fan_out:
//	      Type: Parallel
//	      Branches:
//	        - steps: [...]
//
// steps run serially, top to bottom
type Workflow struct {
	Name    string
	Options models.WorkflowParams
	Steps   []models.Entry
}

func FromFile(name string, contents []byte) (Workflow, error) {
	wf := Workflow{Name: name}

	spec, err := models.ParseSpec(contents)
	if err != nil {
		return wf, err
	}

	for _, k := range spec.Keys() {
		if k != "options" && k != "steps" {
			return wf, fmt.Errorf("%w: unexpected top-level key %q", ErrMalformedWorkflow, k)
		}
	}

	if raw, ok := spec.Get("options"); ok && raw != nil {
		opts, ok := raw.(models.Spec)
		if !ok {
			return wf, fmt.Errorf("%w: options must be a mapping", ErrMalformedWorkflow)
		}
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:      &wf.Options,
			ErrorUnused: true,
		})
		if err != nil {
			return wf, err
		}
		if err := dec.Decode(opts.Plain()); err != nil {
			return wf, fmt.Errorf("%w: options: %w", ErrMalformedWorkflow, err)
		}
	}

	if wf.Options.Name == "" {
		wf.Options.Name = strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	}

	raw, ok := spec.Get("steps")
	if !ok {
		return wf, fmt.Errorf("%w: no steps", ErrMalformedWorkflow)
	}
	wf.Steps, err = models.ParseEntries(raw)
	if err != nil {
		return wf, fmt.Errorf("%w: %w", ErrMalformedWorkflow, err)
	}
	if err := checkEntries(wf.Steps); err != nil {
		return wf, fmt.Errorf("%w: %w", ErrMalformedWorkflow, err)
	}

	return wf, nil
}
