package vlam

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownParameter   = errors.New("unknown parameter")
	ErrDuplicateParameter = errors.New("duplicate parameter")
	ErrUnsupportedValue   = errors.New("unsupported parameter value")
)

// Param is one node option. Value is a bool, int, float64 or string.
type Param struct {
	Name  string
	Value any
}

// ParameterSet is an ordered, immutable set of node options.
type ParameterSet struct {
	params []Param
}

// NewParameterSet builds a set whose names must all appear in known.
func NewParameterSet(known []string, params ...Param) (ParameterSet, error) {
	seen := make(map[string]bool, len(params))
	out := make([]Param, 0, len(params))
	for _, p := range params {
		if !slices.Contains(known, p.Name) {
			return ParameterSet{}, fmt.Errorf("%w: %q", ErrUnknownParameter, p.Name)
		}
		if seen[p.Name] {
			return ParameterSet{}, fmt.Errorf("%w: %q", ErrDuplicateParameter, p.Name)
		}
		switch p.Value.(type) {
		case bool, int, float64, string:
		default:
			return ParameterSet{}, fmt.Errorf("%w: %q has type %T", ErrUnsupportedValue, p.Name, p.Value)
		}
		seen[p.Name] = true
		out = append(out, p)
	}
	return ParameterSet{params: out}, nil
}

func mustParameterSet(known []string, params ...Param) ParameterSet {
	set, err := NewParameterSet(known, params...)
	if err != nil {
		panic(err)
	}
	return set
}

func (s ParameterSet) Len() int { return len(s.params) }

// Params returns a copy of the options in order.
func (s ParameterSet) Params() []Param {
	return slices.Clone(s.params)
}

func (s ParameterSet) Names() []string {
	names := make([]string, len(s.params))
	for i, p := range s.params {
		names[i] = p.Name
	}
	return names
}

func (s ParameterSet) Get(name string) (any, bool) {
	for _, p := range s.params {
		if p.Name == name {
			return p.Value, true
		}
	}
	return nil, false
}

// MarshalYAML renders the set as a mapping that keeps option order and
// scalar types.
func (s ParameterSet) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, p := range s.params {
		value, err := scalarNode(p.Value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p.Name, err)
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: p.Name},
			value,
		)
	}
	return node, nil
}

func scalarNode(v any) (*yaml.Node, error) {
	switch v := v.(type) {
	case bool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(v)}, nil
	case int:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(v)}, nil
	case float64:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: formatFloat(v)}, nil
	case string:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
}

// formatFloat keeps a decimal point so ROS declares the option as a
// double rather than an integer.
func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return ".nan"
	case math.IsInf(f, 1):
		return ".inf"
	case math.IsInf(f, -1):
		return "-.inf"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}
