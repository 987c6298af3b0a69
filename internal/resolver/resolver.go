// Package resolver turns raw location entries into concrete coordinates.
//
// Descriptor entries are expanded against their property scope and their
// dependencyManagement section; list entries are expanded against the
// caller's overrides only. Order is preserved: entries resolve in input
// order, and within a descriptor the own coordinate and parent come before
// dependencies in declaration order.
package resolver

import (
	"errors"
	"fmt"
	"slices"

	"github.com/ligustah/offliner/internal/location"
	"github.com/ligustah/offliner/pkg/artifact"
	"github.com/ligustah/offliner/pkg/pom"
)

// DefaultSkipScopes are dependency scopes ignored unless configured otherwise.
var DefaultSkipScopes = []string{"system"}

// MissingVersionError is returned for a dependency without a version that
// dependencyManagement does not supply either.
type MissingVersionError struct {
	Location string
	Key      string
}

func (e *MissingVersionError) Error() string {
	return fmt.Sprintf("resolver: %s: no version for %s", e.Location, e.Key)
}

// DescriptorError wraps a failure that invalidates a whole descriptor.
type DescriptorError struct {
	Location string
	Err      error
}

func (e *DescriptorError) Error() string {
	return fmt.Sprintf("resolver: %s: %v", e.Location, e.Err)
}

func (e *DescriptorError) Unwrap() error {
	return e.Err
}

// EntryError wraps a failure of a single list entry or dependency.
type EntryError struct {
	Location string
	Line     int
	Text     string
	Err      error
}

func (e *EntryError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("resolver: %s:%d: %s: %v", e.Location, e.Line, e.Text, e.Err)
	}
	return fmt.Sprintf("resolver: %s: %s: %v", e.Location, e.Text, e.Err)
}

func (e *EntryError) Unwrap() error {
	return e.Err
}

// Key identifies the entry in a run report.
func (e *EntryError) Key() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d", e.Location, e.Line)
	}
	return e.Location + "#" + e.Text
}

// Key identifies the descriptor in a run report.
func (e *DescriptorError) Key() string {
	return e.Location
}

// Effective is a fully expanded descriptor.
type Effective struct {
	Coordinate   artifact.Coordinate
	Parent       *artifact.Coordinate
	Dependencies []artifact.Coordinate
	Properties   map[string]string

	includeSelf   bool
	includeParent bool
}

// Coordinates returns the coordinates to plan for this descriptor.
func (e *Effective) Coordinates() []artifact.Coordinate {
	var out []artifact.Coordinate
	if e.includeSelf {
		out = append(out, e.Coordinate)
	}
	if e.includeParent && e.Parent != nil {
		out = append(out, *e.Parent)
	}
	return append(out, e.Dependencies...)
}

// Resolved is a single resolved input: a coordinate, or a raw repository path
// when Path is set.
type Resolved struct {
	Coordinate artifact.Coordinate
	Path       string
	Location   string
}

// Resolver holds the resolution settings shared by every entry of a run.
type Resolver struct {
	// Overrides are caller-supplied properties, lowest priority.
	Overrides map[string]string

	// IncludeSelf plans each descriptor's own coordinate.
	IncludeSelf bool

	// IncludeParent plans each descriptor's declared parent descriptor.
	IncludeParent bool

	// SkipScopes lists dependency scopes to ignore. Nil means DefaultSkipScopes.
	SkipScopes []string
}

// Resolve resolves entries in order. Failed entries are reported and skipped.
func (r *Resolver) Resolve(entries []location.RawEntry) ([]Resolved, []error) {
	var (
		out  []Resolved
		errs []error
	)
	overrides := pom.NewOverrideScope(r.Overrides)

	for _, e := range entries {
		switch {
		case e.Descriptor != nil:
			eff, derrs := r.resolveDescriptor(e.Location, e.Descriptor)
			errs = append(errs, derrs...)
			if eff == nil {
				continue
			}
			for _, c := range eff.Coordinates() {
				out = append(out, Resolved{Coordinate: c, Location: e.Location})
			}

		case e.Path != "":
			out = append(out, Resolved{Path: e.Path, Location: e.Location})

		default:
			c, err := resolveCoordinate(e.Coordinate, overrides)
			if err != nil {
				errs = append(errs, &EntryError{Location: e.Location, Line: e.Line, Text: e.Coordinate, Err: err})
				continue
			}
			out = append(out, Resolved{Coordinate: c, Location: e.Location})
		}
	}

	return out, errs
}

// ResolveDescriptor expands p. A nil Effective means the descriptor as a whole
// failed; otherwise the returned errors name dropped dependencies.
func (r *Resolver) ResolveDescriptor(p *pom.Project) (*Effective, []error) {
	return r.resolveDescriptor(p.ArtifactID, p)
}

func (r *Resolver) resolveDescriptor(loc string, p *pom.Project) (*Effective, []error) {
	scope := pom.NewScope(p, r.Overrides)

	self, err := expandCoordinate(scope, artifact.Coordinate{
		GroupID:    p.GroupID,
		ArtifactID: p.ArtifactID,
		Version:    p.Version,
		Type:       packagingType(p.Packaging),
	})
	if err == nil && r.IncludeSelf {
		err = self.Validate()
	}
	if err != nil {
		return nil, []error{&DescriptorError{Location: loc, Err: err}}
	}

	eff := &Effective{
		Coordinate:    self,
		includeSelf:   r.IncludeSelf,
		includeParent: r.IncludeParent,
	}

	if p.Parent != nil && p.Parent.ArtifactID != "" {
		parent, err := expandCoordinate(scope, artifact.Coordinate{
			GroupID:    p.Parent.GroupID,
			ArtifactID: p.Parent.ArtifactID,
			Version:    p.Parent.Version,
			Type:       artifact.DescriptorType,
		})
		if err == nil && r.IncludeParent {
			err = parent.Validate()
		}
		if err != nil {
			return nil, []error{&DescriptorError{Location: loc, Err: fmt.Errorf("parent: %w", err)}}
		}
		eff.Parent = &parent
	}

	skip := r.SkipScopes
	if skip == nil {
		skip = DefaultSkipScopes
	}

	var errs []error
	for _, d := range p.Dependencies {
		if d.Scope != "" && slices.Contains(skip, d.Scope) {
			continue
		}

		c, err := resolveDependency(loc, p, scope, d)
		if err != nil {
			var unresolved *pom.UnresolvedPropertyError
			if errors.As(err, &unresolved) {
				return nil, []error{&DescriptorError{Location: loc, Err: err}}
			}
			errs = append(errs, &EntryError{Location: loc, Text: d.GroupID + ":" + d.ArtifactID, Err: err})
			continue
		}
		eff.Dependencies = append(eff.Dependencies, c)
	}

	// Unused broken properties do not fail the descriptor.
	eff.Properties, _ = scope.Resolved()

	return eff, errs
}

func resolveDependency(loc string, p *pom.Project, scope *pom.Scope, d pom.Dependency) (artifact.Coordinate, error) {
	c, err := expandCoordinate(scope, artifact.Coordinate{
		GroupID:    d.GroupID,
		ArtifactID: d.ArtifactID,
		Version:    d.Version,
		Type:       d.Type,
		Classifier: d.Classifier,
	})
	if err != nil {
		return artifact.Coordinate{}, err
	}
	if c.Type == "" {
		c.Type = artifact.DefaultType
	}

	if c.Version == "" {
		v, ok, err := p.ManagedVersion(c.ManagementKey(), scope.Expand)
		if err != nil {
			return artifact.Coordinate{}, err
		}
		if !ok {
			return artifact.Coordinate{}, &MissingVersionError{Location: loc, Key: c.ManagementKey()}
		}
		c.Version = v
	}

	if err := c.Validate(); err != nil {
		return artifact.Coordinate{}, err
	}
	return c, nil
}

func resolveCoordinate(s string, scope *pom.Scope) (artifact.Coordinate, error) {
	expanded, err := scope.Expand(s)
	if err != nil {
		return artifact.Coordinate{}, err
	}
	c, err := artifact.Parse(expanded)
	if err != nil {
		return artifact.Coordinate{}, err
	}
	if err := c.Validate(); err != nil {
		return artifact.Coordinate{}, err
	}
	return c, nil
}

// expandCoordinate expands every field. Version may stay empty.
func expandCoordinate(scope *pom.Scope, c artifact.Coordinate) (artifact.Coordinate, error) {
	fields := []*string{&c.GroupID, &c.ArtifactID, &c.Version, &c.Type, &c.Classifier}
	for _, f := range fields {
		v, err := scope.Expand(*f)
		if err != nil {
			return artifact.Coordinate{}, err
		}
		*f = v
	}
	return c, nil
}

// packagingType maps a descriptor's packaging to the type of its main file.
func packagingType(packaging string) string {
	switch packaging {
	case "":
		return artifact.DefaultType
	case "bundle", "maven-plugin", "ejb":
		return "jar"
	default:
		return packaging
	}
}
