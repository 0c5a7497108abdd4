package spec

import (
	"sort"
)

// Specification is the root definition of a module's public contract.
type Specification struct {
	// Methods maps each operation name to its definition.
	Methods map[string]MethodSpec `yaml:"methods" json:"methods"`

	// Module contains packaging metadata.
	Module ModuleMeta `yaml:"module" json:"module"`
}

// Method returns the named method definition.
func (s *Specification) Method(name string) (MethodSpec, bool) {
	if s == nil {
		return MethodSpec{}, false
	}
	m, ok := s.Methods[name]
	return m, ok
}

// MethodNames returns the method names in sorted order.
func (s *Specification) MethodNames() []string {
	names := make([]string, 0, len(s.Methods))
	for name := range s.Methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MethodSpec defines one operation.
type MethodSpec struct {
	// Name is filled in from the methods map key.
	Name string `yaml:"-" json:"name"`

	// Input lists the positional input parameters.
	Input []ParamSpec `yaml:"input" json:"input"`

	// Output lists the positional output values.
	Output []ParamSpec `yaml:"output" json:"output"`

	// TestCases are literal examples used for regression testing.
	TestCases []TestCase `yaml:"test_cases,omitempty" json:"test_cases,omitempty"`
}

// Params returns the parameter list for a direction, or nil if the
// direction is unknown.
func (m MethodSpec) Params(dir Direction) []ParamSpec {
	switch dir {
	case Input:
		return m.Input
	case Output:
		return m.Output
	default:
		return nil
	}
}

// ParamSpec defines a single input or output parameter.
type ParamSpec struct {
	Name        string         `yaml:"name" json:"name"`
	Description string         `yaml:"description,omitempty" json:"description,omitempty"`
	Type        TypeDescriptor `yaml:"type" json:"type"`

	// Category is classification metadata. It takes no part in validation.
	Category *Category `yaml:"category,omitempty" json:"category,omitempty"`
}

// Category classifies an output, e.g. a segmentation with label names.
type Category struct {
	Name   string   `yaml:"name" json:"name"`
	Labels []string `yaml:"labels,omitempty" json:"labels,omitempty"`
}

// TestCase is an ordered list of literal inputs followed by the expected outputs.
type TestCase []any

// Split returns the inputs and expected outputs of the case for a method.
// The case must have been validated against m.
func (tc TestCase) Split(m MethodSpec) (inputs, outputs []any) {
	n := len(m.Input)
	if n > len(tc) {
		n = len(tc)
	}
	return tc[:n], tc[n:]
}

// Direction selects the inputs or outputs of a method.
type Direction string

const (
	Input  Direction = "input"
	Output Direction = "output"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == Input || d == Output
}
