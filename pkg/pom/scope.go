package pom

import (
	"fmt"
	"slices"
	"strings"
)

// MaxExpansionPasses bounds how deeply property values may reference other
// properties before expansion gives up.
const MaxExpansionPasses = 16

// UnresolvedPropertyError is returned when a placeholder cannot be expanded,
// either because the property is unknown, the expansion limit was reached, or
// the property references itself through Cycle.
type UnresolvedPropertyError struct {
	Token string
	Cycle []string
}

func (e *UnresolvedPropertyError) Error() string {
	if len(e.Cycle) > 0 {
		return fmt.Sprintf("pom: unresolved property %s: cycle %s", e.Token, strings.Join(e.Cycle, " -> "))
	}
	return fmt.Sprintf("pom: unresolved property %s", e.Token)
}

// Scope looks up property values across layers, first match wins.
type Scope struct {
	layers []map[string]string
}

// NewScope builds the scope for p. Declared properties win over implicit
// project properties, which win over overrides.
func NewScope(p *Project, overrides map[string]string) *Scope {
	declared := make(map[string]string, len(p.Properties))
	for _, prop := range p.Properties {
		declared[prop.Name] = prop.Value
	}
	return &Scope{
		layers: []map[string]string{declared, implicitProperties(p), copyMap(overrides)},
	}
}

// NewOverrideScope returns a scope that only holds caller overrides. It is
// used for coordinates that do not come from a descriptor.
func NewOverrideScope(overrides map[string]string) *Scope {
	return &Scope{layers: []map[string]string{copyMap(overrides)}}
}

// Lookup returns the raw, unexpanded value of name.
func (s *Scope) Lookup(name string) (string, bool) {
	for _, layer := range s.layers {
		if v, ok := layer[name]; ok {
			return v, true
		}
	}
	return "", false
}

// Expand replaces every ${name} token in v.
func (s *Scope) Expand(v string) (string, error) {
	return s.expand(v, nil)
}

// Resolved returns every property visible in the scope that expands cleanly.
// The first expansion failure, if any, is returned alongside.
func (s *Scope) Resolved() (map[string]string, error) {
	seen := make(map[string]bool)
	var names []string
	for _, layer := range s.layers {
		for name := range layer {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	slices.Sort(names)

	out := make(map[string]string, len(names))
	var firstErr error
	for _, name := range names {
		v, err := s.Expand("${" + name + "}")
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		out[name] = v
	}
	return out, firstErr
}

func (s *Scope) expand(v string, stack []string) (string, error) {
	if !strings.Contains(v, "${") {
		return v, nil
	}

	var b strings.Builder
	for {
		start := strings.Index(v, "${")
		if start < 0 {
			break
		}
		end := strings.IndexByte(v[start+2:], '}')
		if end < 0 {
			break
		}
		name := v[start+2 : start+2+end]
		token := "${" + name + "}"

		b.WriteString(v[:start])
		v = v[start+2+end+1:]

		if slices.Contains(stack, name) {
			return "", &UnresolvedPropertyError{Token: token, Cycle: append(slices.Clone(stack), name)}
		}
		if len(stack) >= MaxExpansionPasses {
			return "", &UnresolvedPropertyError{Token: token}
		}
		raw, ok := s.Lookup(name)
		if !ok {
			return "", &UnresolvedPropertyError{Token: token}
		}
		expanded, err := s.expand(raw, append(slices.Clone(stack), name))
		if err != nil {
			return "", err
		}
		b.WriteString(expanded)
	}
	b.WriteString(v)

	return b.String(), nil
}

func implicitProperties(p *Project) map[string]string {
	m := map[string]string{
		"project.groupId":    p.GroupID,
		"project.artifactId": p.ArtifactID,
		"project.version":    p.Version,
		"pom.groupId":        p.GroupID,
		"pom.artifactId":     p.ArtifactID,
		"pom.version":        p.Version,
		"groupId":            p.GroupID,
		"artifactId":         p.ArtifactID,
		"version":            p.Version,
	}
	packaging := p.Packaging
	if packaging == "" {
		packaging = "jar"
	}
	m["project.packaging"] = packaging
	if p.Parent != nil {
		m["project.parent.groupId"] = p.Parent.GroupID
		m["project.parent.artifactId"] = p.Parent.ArtifactID
		m["project.parent.version"] = p.Parent.Version
		m["parent.groupId"] = p.Parent.GroupID
		m["parent.version"] = p.Parent.Version
	}
	return m
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
