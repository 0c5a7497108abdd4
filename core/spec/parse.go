package spec

import (
	"fmt"
	"os"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// ParseFile parses a specification from a YAML file.
func ParseFile(path string) (*Specification, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file %s: %w", path, err)
	}

	return Parse(data)
}

// Parse parses a specification from YAML bytes.
func Parse(data []byte) (*Specification, error) {
	var s Specification
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	for name, m := range s.Methods {
		m.Name = name
		s.Methods[name] = m
	}

	if err := Validate(&s); err != nil {
		return nil, fmt.Errorf("validate specification %q: %w", s.Module.Name, err)
	}

	return &s, nil
}

// Validate checks a specification and returns every problem found,
// combined into one error.
func Validate(s *Specification) error {
	var err error

	if len(s.Methods) == 0 {
		err = multierr.Append(err, fmt.Errorf("specification must define at least one method"))
	}

	for _, name := range s.MethodNames() {
		if !isValidIdentifier(name) {
			err = multierr.Append(err, fmt.Errorf("method name %q is not a valid identifier", name))
		}
		err = multierr.Append(err, validateMethod(name, s.Methods[name]))
	}

	err = multierr.Append(err, validateMeta(s.Module))

	return err
}

func validateMethod(name string, m MethodSpec) error {
	var err error

	err = multierr.Append(err, validateParams(name, Input, m.Input))
	err = multierr.Append(err, validateParams(name, Output, m.Output))

	want := len(m.Input) + len(m.Output)
	for i, tc := range m.TestCases {
		if len(tc) != want {
			err = multierr.Append(err, fmt.Errorf("method %q: test case %d has %d values, want %d", name, i, len(tc), want))
		}
	}

	return err
}

func validateParams(method string, dir Direction, params []ParamSpec) error {
	var err error
	seen := make(map[string]bool, len(params))

	for i, p := range params {
		if p.Name == "" {
			err = multierr.Append(err, fmt.Errorf("method %q: %s %d has no name", method, dir, i))
			continue
		}
		if seen[p.Name] {
			err = multierr.Append(err, fmt.Errorf("method %q: duplicate %s name %q", method, dir, p.Name))
		}
		seen[p.Name] = true

		if p.Type.IsZero() {
			err = multierr.Append(err, fmt.Errorf("method %q: %s %q has no type", method, dir, p.Name))
		}
	}

	return err
}

func validateMeta(m ModuleMeta) error {
	var err error

	if m.Name == "" {
		err = multierr.Append(err, fmt.Errorf("module name is required"))
	}

	if m.Version != "" {
		if _, verr := m.SemVer(); verr != nil {
			err = multierr.Append(err, verr)
		}
	}

	for _, dep := range m.Dependencies {
		if _, derr := ParseRequirement(dep); derr != nil {
			err = multierr.Append(err, derr)
		}
	}

	return err
}

// isValidIdentifier checks if a string is a valid identifier.
func isValidIdentifier(s string) bool {
	if s == "" {
		return false
	}

	for i, c := range s {
		if i == 0 {
			if !isLetter(c) && c != '_' {
				return false
			}
		} else {
			if !isLetter(c) && !isDigit(c) && c != '_' {
				return false
			}
		}
	}

	return true
}

func isLetter(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c rune) bool {
	return c >= '0' && c <= '9'
}
