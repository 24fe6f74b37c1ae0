// Package corestack resolves environment-specific identifiers exported by the
// deployment's core stack.
package corestack

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"tangled.sh/tangled.sh/stepc/config"
)

type CoreStack struct {
	name    string
	outputs map[string]string
}

// New returns a CoreStack. Outputs not present in the static map are
// resolved as CloudFormation imports of "<name>-<key>".
func New(name string, outputs map[string]string) *CoreStack {
	return &CoreStack{
		name:    name,
		outputs: outputs,
	}
}

func FromConfig(cfg config.CoreStack) (*CoreStack, error) {
	if cfg.OutputsFile == "" {
		return New(cfg.Name, nil), nil
	}

	contents, err := os.ReadFile(cfg.OutputsFile)
	if err != nil {
		return nil, fmt.Errorf("reading core stack outputs: %w", err)
	}

	var outputs map[string]string
	if err := yaml.Unmarshal(contents, &outputs); err != nil {
		return nil, fmt.Errorf("parsing core stack outputs %s: %w", cfg.OutputsFile, err)
	}

	return New(cfg.Name, outputs), nil
}

func (cs *CoreStack) Name() string {
	return cs.name
}

// Output returns the value of a stack output, either the literal string
// from the outputs file or an Fn::ImportValue reference.
func (cs *CoreStack) Output(key string) any {
	if v, ok := cs.outputs[key]; ok {
		return v
	}
	return map[string]any{
		"Fn::ImportValue": cs.name + "-" + key,
	}
}
