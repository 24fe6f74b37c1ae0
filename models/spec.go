package models

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Field is a single key/value pair of a Spec.
type Field struct {
	Key   string
	Value any
}

// Spec is an ordered string-keyed mapping. Steps, states and resources are
// all described by one, and the order in which keys were read is the order
// in which they are written back out.
//
// The zero value is an empty Spec ready to use.
type Spec struct {
	fields []Field
}

func NewSpec(fields ...Field) Spec {
	var s Spec
	for _, f := range fields {
		s.Set(f.Key, f.Value)
	}
	return s
}

func (s Spec) index(key string) int {
	for i, f := range s.fields {
		if f.Key == key {
			return i
		}
	}
	return -1
}

func (s Spec) Len() int {
	return len(s.fields)
}

func (s Spec) Has(key string) bool {
	return s.index(key) >= 0
}

// Get returns the value stored under key. A key holding null reports
// ok == true with a nil value.
func (s Spec) Get(key string) (any, bool) {
	i := s.index(key)
	if i < 0 {
		return nil, false
	}
	return s.fields[i].Value, true
}

// GetString returns the value under key if it is a string.
func (s Spec) GetString(key string) (string, bool) {
	v, ok := s.Get(key)
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	return str, ok
}

// Set replaces the value of an existing key in place, or appends a new one.
func (s *Spec) Set(key string, value any) {
	if i := s.index(key); i >= 0 {
		s.fields[i].Value = value
		return
	}
	s.fields = append(s.fields, Field{Key: key, Value: value})
}

func (s *Spec) Delete(key string) {
	i := s.index(key)
	if i < 0 {
		return
	}
	fields := make([]Field, 0, len(s.fields)-1)
	fields = append(fields, s.fields[:i]...)
	s.fields = append(fields, s.fields[i+1:]...)
}

func (s Spec) Keys() []string {
	keys := make([]string, len(s.fields))
	for i, f := range s.fields {
		keys[i] = f.Key
	}
	return keys
}

func (s Spec) Fields() []Field {
	fields := make([]Field, len(s.fields))
	copy(fields, s.fields)
	return fields
}

// Clone returns a deep copy; nested Specs and sequences are copied too.
func (s Spec) Clone() Spec {
	if s.fields == nil {
		return Spec{}
	}
	c := Spec{fields: make([]Field, len(s.fields))}
	for i, f := range s.fields {
		c.fields[i] = Field{Key: f.Key, Value: cloneValue(f.Value)}
	}
	return c
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case Spec:
		return v.Clone()
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// Plain converts the Spec into nested map[string]any / []any values, for
// consumers that do not care about ordering.
func (s Spec) Plain() map[string]any {
	m := make(map[string]any, len(s.fields))
	for _, f := range s.fields {
		m[f.Key] = Plain(f.Value)
	}
	return m
}

func Plain(v any) any {
	switch v := v.(type) {
	case Spec:
		return v.Plain()
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = Plain(e)
		}
		return out
	default:
		return v
	}
}

func (s *Spec) UnmarshalYAML(node *yaml.Node) error {
	v, err := decodeNode(node)
	if err != nil {
		return err
	}
	spec, ok := v.(Spec)
	if !ok {
		return fmt.Errorf("line %d: expected a mapping, got %s", node.Line, kindName(node))
	}
	*s = spec
	return nil
}

func decodeNode(node *yaml.Node) (any, error) {
	switch node.Kind {
	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			return nil, nil
		}
		return decodeNode(node.Content[0])
	case yaml.AliasNode:
		return decodeNode(node.Alias)
	case yaml.MappingNode:
		var s Spec
		for i := 0; i+1 < len(node.Content); i += 2 {
			k, v := node.Content[i], node.Content[i+1]
			if k.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: mapping keys must be scalars", k.Line)
			}
			if k.Tag == "!!merge" {
				return nil, fmt.Errorf("line %d: merge keys are not supported", k.Line)
			}
			if s.Has(k.Value) {
				return nil, fmt.Errorf("line %d: mapping key %q already defined", k.Line, k.Value)
			}
			value, err := decodeNode(v)
			if err != nil {
				return nil, err
			}
			s.Set(k.Value, value)
		}
		return s, nil
	case yaml.SequenceNode:
		out := make([]any, 0, len(node.Content))
		for _, c := range node.Content {
			value, err := decodeNode(c)
			if err != nil {
				return nil, err
			}
			out = append(out, value)
		}
		return out, nil
	case yaml.ScalarNode:
		var v any
		if err := node.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	}
	return nil, fmt.Errorf("line %d: unsupported yaml node", node.Line)
}

func kindName(node *yaml.Node) string {
	switch node.Kind {
	case yaml.SequenceNode:
		return "a sequence"
	case yaml.ScalarNode:
		return "a scalar"
	default:
		return "an unknown node"
	}
}

func (s Spec) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, f := range s.fields {
		var v yaml.Node
		if err := v.Encode(f.Value); err != nil {
			return nil, fmt.Errorf("%s: %w", f.Key, err)
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: f.Key},
			&v,
		)
	}
	return node, nil
}

func (s Spec) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range s.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := json.Marshal(f.Value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Key, err)
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ParseSpec decodes a YAML (or JSON) document into a Spec.
func ParseSpec(contents []byte) (Spec, error) {
	var s Spec
	if err := yaml.Unmarshal(contents, &s); err != nil {
		return Spec{}, err
	}
	return s, nil
}
