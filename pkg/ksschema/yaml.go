package ksschema

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// UnmarshalYAML lets `valid: 123` (bare scalar, an implicit eq) and
// `valid: {min: 5, max: 10}` (the full form) both decode into Valid.
func (v *Valid) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode || node.Kind == yaml.SequenceNode {
		var raw any
		if err := node.Decode(&raw); err != nil {
			return err
		}
		v.Eq = raw
		return nil
	}
	type alias Valid
	var a alias
	if err := node.Decode(&a); err != nil {
		return err
	}
	*v = Valid(a)
	return nil
}

// LoadYAML parses a textual schema document into a Schema, then normalizes
// every `type:` attribute that decoded as a bare YAML mapping (the
// switch-on/cases form) into a *Switch so the interpreter never has to
// re-inspect raw map[string]any.
func LoadYAML(data []byte) (*Schema, error) {
	var schema Schema
	if err := yaml.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("ksschema: parse yaml: %w", err)
	}
	normalizeSeq(schema.Seq)
	for name, inst := range schema.Instances {
		normalizeField(&inst.Field)
		schema.Instances[name] = inst
	}
	normalizeTypes(schema.Types)
	return &schema, nil
}

func normalizeTypes(types map[string]*Type) {
	for _, t := range types {
		normalizeSeq(t.Seq)
		for name, inst := range t.Instances {
			normalizeField(&inst.Field)
			t.Instances[name] = inst
		}
		normalizeTypes(t.Types)
	}
}

func normalizeSeq(fields []Field) {
	for i := range fields {
		normalizeField(&fields[i])
	}
}

func normalizeField(f *Field) {
	m, ok := f.Type.(map[string]any)
	if !ok {
		return
	}
	sw := &Switch{Cases: map[string]any{}}
	if v, ok := m["switch-on"]; ok {
		if s, ok := v.(string); ok {
			sw.SwitchOn = s
		}
	}
	if v, ok := m["cases"]; ok {
		if cm, ok := v.(map[string]any); ok {
			for k, vv := range cm {
				sw.Cases[k] = vv
			}
		}
	}
	f.Type = sw
}
