package artifact

import (
	"errors"
	"fmt"
	"strings"
)

// DescriptorType is the type of a descriptor file.
const DescriptorType = "pom"

// DefaultType is used when a coordinate omits its type.
const DefaultType = "jar"

// ErrInvalidCoordinate is wrapped by every coordinate parse and validation error.
var ErrInvalidCoordinate = errors.New("artifact: invalid coordinate")

// Coordinate identifies a single artifact file.
type Coordinate struct {
	GroupID    string
	ArtifactID string
	Version    string
	Type       string
	Classifier string
}

// typeMapping maps dependency types whose files use a different extension or
// an implied classifier.
var typeMapping = map[string]struct {
	extension  string
	classifier string
}{
	"test-jar":     {"jar", "tests"},
	"maven-plugin": {"jar", ""},
	"ejb":          {"jar", ""},
	"ejb-client":   {"jar", "client"},
	"bundle":       {"jar", ""},
	"java-source":  {"jar", "sources"},
	"javadoc":      {"jar", "javadoc"},
}

// Parse parses groupId:artifactId:version[:type[:classifier]].
func Parse(s string) (Coordinate, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 3 || len(parts) > 5 {
		return Coordinate{}, fmt.Errorf("%w: %q: expected groupId:artifactId:version[:type[:classifier]]", ErrInvalidCoordinate, s)
	}

	c := Coordinate{
		GroupID:    parts[0],
		ArtifactID: parts[1],
		Version:    parts[2],
		Type:       DefaultType,
	}
	if len(parts) > 3 && parts[3] != "" {
		c.Type = parts[3]
	}
	if len(parts) > 4 {
		c.Classifier = parts[4]
	}

	if c.GroupID == "" || c.ArtifactID == "" || c.Version == "" {
		return Coordinate{}, fmt.Errorf("%w: %q: groupId, artifactId and version must not be empty", ErrInvalidCoordinate, s)
	}

	return c, nil
}

// String formats the coordinate as groupId:artifactId:version:type[:classifier].
func (c Coordinate) String() string {
	s := c.GroupID + ":" + c.ArtifactID + ":" + c.Version + ":" + c.typ()
	if c.Classifier != "" {
		s += ":" + c.Classifier
	}
	return s
}

// ManagementKey returns the groupId:artifactId key used by dependency management.
func (c Coordinate) ManagementKey() string {
	return c.GroupID + ":" + c.ArtifactID
}

// Extension returns the file extension for the coordinate's type.
func (c Coordinate) Extension() string {
	if m, ok := typeMapping[c.typ()]; ok {
		return m.extension
	}
	return c.typ()
}

// EffectiveClassifier returns the explicit classifier, or the classifier
// implied by the type.
func (c Coordinate) EffectiveClassifier() string {
	if c.Classifier != "" {
		return c.Classifier
	}
	if m, ok := typeMapping[c.typ()]; ok {
		return m.classifier
	}
	return ""
}

// Path returns the repository-relative path of the artifact file.
func (c Coordinate) Path() string {
	var b strings.Builder
	b.WriteString(strings.ReplaceAll(c.GroupID, ".", "/"))
	b.WriteByte('/')
	b.WriteString(c.ArtifactID)
	b.WriteByte('/')
	b.WriteString(c.Version)
	b.WriteByte('/')
	b.WriteString(c.ArtifactID)
	b.WriteByte('-')
	b.WriteString(c.Version)
	if cl := c.EffectiveClassifier(); cl != "" {
		b.WriteByte('-')
		b.WriteString(cl)
	}
	b.WriteByte('.')
	b.WriteString(c.Extension())
	return b.String()
}

// IsDescriptor reports whether the coordinate names a descriptor file.
func (c Coordinate) IsDescriptor() bool {
	return c.typ() == DescriptorType && c.Classifier == ""
}

// HasDescriptor reports whether a separate descriptor file accompanies the artifact.
func (c Coordinate) HasDescriptor() bool {
	return !c.IsDescriptor()
}

// POM returns the descriptor coordinate for the same groupId, artifactId and version.
func (c Coordinate) POM() Coordinate {
	return Coordinate{
		GroupID:    c.GroupID,
		ArtifactID: c.ArtifactID,
		Version:    c.Version,
		Type:       DescriptorType,
	}
}

// Validate checks that the coordinate is complete, placeholder-free and
// cannot escape the repository root.
func (c Coordinate) Validate() error {
	fields := []struct {
		name, value string
		required    bool
	}{
		{"groupId", c.GroupID, true},
		{"artifactId", c.ArtifactID, true},
		{"version", c.Version, true},
		{"type", c.Type, false},
		{"classifier", c.Classifier, false},
	}
	for _, f := range fields {
		if f.value == "" {
			if f.required {
				return fmt.Errorf("%w: %s: %s is empty", ErrInvalidCoordinate, c, f.name)
			}
			continue
		}
		if HasPlaceholder(f.value) {
			return fmt.Errorf("%w: %s: %s contains an unexpanded placeholder", ErrInvalidCoordinate, c, f.name)
		}
		if strings.ContainsAny(f.value, `/\`) || strings.Contains(f.value, "..") || strings.TrimSpace(f.value) != f.value {
			return fmt.Errorf("%w: %s: %s %q is not a valid path segment", ErrInvalidCoordinate, c, f.name, f.value)
		}
	}
	return nil
}

// HasPlaceholder reports whether s contains a ${...} token.
func HasPlaceholder(s string) bool {
	i := strings.Index(s, "${")
	return i >= 0 && strings.Contains(s[i:], "}")
}

func (c Coordinate) typ() string {
	if c.Type == "" {
		return DefaultType
	}
	return c.Type
}
