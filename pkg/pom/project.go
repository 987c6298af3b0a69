package pom

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNoArtifactID is returned by Parse for a descriptor without an artifactId.
var ErrNoArtifactID = errors.New("pom: descriptor has no artifactId")

// Project is the parsed descriptor subset.
type Project struct {
	XMLName              xml.Name     `xml:"project"`
	ModelVersion         string       `xml:"modelVersion,omitempty"`
	Parent               *Parent      `xml:"parent,omitempty"`
	GroupID              string       `xml:"groupId,omitempty"`
	ArtifactID           string       `xml:"artifactId"`
	Version              string       `xml:"version,omitempty"`
	Packaging            string       `xml:"packaging,omitempty"`
	Properties           Properties   `xml:"properties,omitempty"`
	DependencyManagement []Dependency `xml:"dependencyManagement>dependencies>dependency,omitempty"`
	Dependencies         []Dependency `xml:"dependencies>dependency,omitempty"`
}

// Parent references the parent descriptor.
type Parent struct {
	GroupID      string `xml:"groupId"`
	ArtifactID   string `xml:"artifactId"`
	Version      string `xml:"version"`
	RelativePath string `xml:"relativePath,omitempty"`
}

// Dependency is a declared or managed dependency.
type Dependency struct {
	GroupID    string `xml:"groupId"`
	ArtifactID string `xml:"artifactId"`
	Version    string `xml:"version,omitempty"`
	Type       string `xml:"type,omitempty"`
	Classifier string `xml:"classifier,omitempty"`
	Scope      string `xml:"scope,omitempty"`
	Optional   string `xml:"optional,omitempty"`
}

// Property is a single name/value pair from the properties element.
type Property struct {
	Name  string
	Value string
}

// Properties keeps declared properties in document order.
type Properties []Property

// UnmarshalXML decodes arbitrary child elements into name/value pairs.
func (p *Properties) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			var value string
			if err := d.DecodeElement(&value, &t); err != nil {
				return fmt.Errorf("property %s: %w", t.Name.Local, err)
			}
			*p = append(*p, Property{Name: t.Name.Local, Value: strings.TrimSpace(value)})
		case xml.EndElement:
			return nil
		}
	}
}

// MarshalXML encodes properties as child elements named after each property.
func (p Properties) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	for _, prop := range p {
		if err := e.EncodeElement(prop.Value, xml.StartElement{Name: xml.Name{Local: prop.Name}}); err != nil {
			return err
		}
	}
	return e.EncodeToken(start.End())
}

// Parse decodes a descriptor. groupId and version missing from the project
// are inherited from its parent declaration.
func Parse(r io.Reader) (*Project, error) {
	var p Project
	if err := xml.NewDecoder(r).Decode(&p); err != nil {
		return nil, fmt.Errorf("pom: decode: %w", err)
	}

	p.trim()

	if p.ArtifactID == "" {
		return nil, ErrNoArtifactID
	}
	if p.Parent != nil {
		if p.GroupID == "" {
			p.GroupID = p.Parent.GroupID
		}
		if p.Version == "" {
			p.Version = p.Parent.Version
		}
	}

	return &p, nil
}

// Marshal encodes the project as an indented descriptor document.
func (p *Project) Marshal() ([]byte, error) {
	out := *p
	out.XMLName = xml.Name{Local: "project"}
	data, err := xml.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("pom: encode: %w", err)
	}
	return append([]byte(xml.Header), data...), nil
}

// ManagedVersion looks up a dependency management entry by groupId:artifactId.
// Keys are compared after expand is applied to both sides.
func (p *Project) ManagedVersion(key string, expand func(string) (string, error)) (string, bool, error) {
	for _, m := range p.DependencyManagement {
		g, err := expand(m.GroupID)
		if err != nil {
			return "", false, err
		}
		a, err := expand(m.ArtifactID)
		if err != nil {
			return "", false, err
		}
		if g+":"+a != key || m.Version == "" {
			continue
		}
		v, err := expand(m.Version)
		if err != nil {
			return "", false, err
		}
		return v, true, nil
	}
	return "", false, nil
}

func (p *Project) trim() {
	p.GroupID = strings.TrimSpace(p.GroupID)
	p.ArtifactID = strings.TrimSpace(p.ArtifactID)
	p.Version = strings.TrimSpace(p.Version)
	p.Packaging = strings.TrimSpace(p.Packaging)
	if p.Parent != nil {
		p.Parent.GroupID = strings.TrimSpace(p.Parent.GroupID)
		p.Parent.ArtifactID = strings.TrimSpace(p.Parent.ArtifactID)
		p.Parent.Version = strings.TrimSpace(p.Parent.Version)
	}
	for _, deps := range [][]Dependency{p.Dependencies, p.DependencyManagement} {
		for i := range deps {
			d := &deps[i]
			d.GroupID = strings.TrimSpace(d.GroupID)
			d.ArtifactID = strings.TrimSpace(d.ArtifactID)
			d.Version = strings.TrimSpace(d.Version)
			d.Type = strings.TrimSpace(d.Type)
			d.Classifier = strings.TrimSpace(d.Classifier)
			d.Scope = strings.TrimSpace(d.Scope)
		}
	}
}
