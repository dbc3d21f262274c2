package ksvalue

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ToYAMLNode converts v into a *yaml.Node tree. A mapping node's keys are
// emitted as fields in declaration order, then instances in installation
// order, the same order EncodeJSON uses, so the two renderers agree on
// field ordering.
func ToYAMLNode(v Value) (*yaml.Node, error) {
	switch x := v.(type) {
	case nil, Null:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}, nil
	case Bool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(x.V)}, nil
	case Int:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.FormatInt(x.V, 10)}, nil
	case BigInt:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: x.V.String()}, nil
	case Float:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: strconv.FormatFloat(x.V, 'g', -1, 64)}, nil
	case Text:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: x.V}, nil
	case Bytes:
		seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, b := range x.V {
			seq.Content = append(seq.Content, &yaml.Node{
				Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(int(b)),
			})
		}
		return seq, nil
	case Seq:
		seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range x.V {
			n, err := ToYAMLNode(item)
			if err != nil {
				return nil, err
			}
			seq.Content = append(seq.Content, n)
		}
		return seq, nil
	case *Obj:
		return objToYAMLNode(x)
	default:
		return nil, fmt.Errorf("ksvalue: ToYAMLNode: unsupported value type %T", v)
	}
}

func objToYAMLNode(o *Obj) (*yaml.Node, error) {
	m := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	add := func(name string, v Value) error {
		n, err := ToYAMLNode(v)
		if err != nil {
			return err
		}
		m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: name}, n)
		return nil
	}
	for _, name := range o.fieldOrder {
		v, _ := o.Field(name)
		if err := add(name, v); err != nil {
			return nil, err
		}
	}
	for _, name := range o.instanceOrder {
		v, _, err := o.Get(name)
		if err != nil {
			continue
		}
		if err := add(name, v); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// EncodeYAML renders v to YAML text via ToYAMLNode.
func EncodeYAML(v Value) ([]byte, error) {
	n, err := ToYAMLNode(v)
	if err != nil {
		return nil, err
	}
	return yaml.Marshal(n)
}
