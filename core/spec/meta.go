package spec

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver"
)

// ModuleMeta contains packaging metadata for a module.
type ModuleMeta struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Author      string `yaml:"author,omitempty" json:"author,omitempty"`
	AuthorEmail string `yaml:"author_email,omitempty" json:"author_email,omitempty"`
	URL         string `yaml:"url,omitempty" json:"url,omitempty"`
	Version     string `yaml:"version" json:"version"`

	// Dependencies are requirement strings such as "mmacommon>=1.3.5".
	Dependencies []string `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`
}

// SemVer parses the module version.
func (m ModuleMeta) SemVer() (*semver.Version, error) {
	v, err := semver.NewVersion(m.Version)
	if err != nil {
		return nil, fmt.Errorf("module version %q: %w", m.Version, err)
	}
	return v, nil
}

// Requirement is a parsed dependency.
type Requirement struct {
	Name string

	// Constraint is nil when the dependency is unversioned.
	Constraint *semver.Constraints

	Raw string
}

// Satisfied reports whether version v meets the requirement.
func (r Requirement) Satisfied(v string) (bool, error) {
	if r.Constraint == nil {
		return true, nil
	}
	sv, err := semver.NewVersion(v)
	if err != nil {
		return false, err
	}
	return r.Constraint.Check(sv), nil
}

// Requirements parses every dependency string.
func (m ModuleMeta) Requirements() ([]Requirement, error) {
	reqs := make([]Requirement, 0, len(m.Dependencies))
	for _, dep := range m.Dependencies {
		r, err := ParseRequirement(dep)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, r)
	}
	return reqs, nil
}

// ParseRequirement parses "name" or "name<constraint>".
func ParseRequirement(s string) (Requirement, error) {
	raw := strings.TrimSpace(s)
	idx := strings.IndexAny(raw, "<>=!~^ ")
	if idx == 0 || raw == "" {
		return Requirement{}, fmt.Errorf("dependency %q: missing package name", s)
	}

	r := Requirement{Name: raw, Raw: raw}
	if idx < 0 {
		return r, nil
	}

	r.Name = raw[:idx]
	c, err := semver.NewConstraint(strings.TrimSpace(raw[idx:]))
	if err != nil {
		return Requirement{}, fmt.Errorf("dependency %q: %w", s, err)
	}
	r.Constraint = c
	return r, nil
}
