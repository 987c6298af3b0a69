// Package location reads the input files that name the artifacts to mirror.
//
// Two formats are understood, selected by extension or content:
//
//   - descriptors (.pom, .xml, or content starting with '<'), parsed with
//     package pom into a single [RawEntry] carrying the whole project
//   - plain lists, one entry per line: a coordinate
//     groupId:artifactId:version[:type[:classifier]] or a repository path
//     containing '/'. Blank lines and lines starting with '#' are ignored.
//
// Malformed entries are returned as [FormatError] values next to the entries
// that did parse; loading never stops at the first bad line.
package location

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-logr/logr"
	"github.com/hashicorp/go-multierror"

	offhttp "github.com/ligustah/offliner/internal/http"
	"github.com/ligustah/offliner/pkg/artifact"
	"github.com/ligustah/offliner/pkg/pom"
)

// ErrNoReadableLocation is returned by LoadAll when none of the references
// could be read.
var ErrNoReadableLocation = errors.New("location: no readable location")

// RawEntry is one unresolved input entry. Exactly one of Descriptor,
// Coordinate and Path is set.
type RawEntry struct {
	Location string
	Line     int

	Descriptor *pom.Project
	Coordinate string
	Path       string
}

// FormatError describes an input entry that could not be parsed.
type FormatError struct {
	Location string
	Line     int
	Text     string
	Err      error
}

func (e *FormatError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("location %s:%d: %q: %v", e.Location, e.Line, e.Text, e.Err)
	}
	return fmt.Sprintf("location %s: %v", e.Location, e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// Key identifies the entry in a run report.
func (e *FormatError) Key() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d", e.Location, e.Line)
	}
	return e.Location
}

// Parser turns file content into entries.
type Parser interface {
	Parse(location string, data []byte) ([]RawEntry, []error)
}

// DescriptorParser parses descriptor documents.
type DescriptorParser struct{}

// Parse implements Parser.
func (DescriptorParser) Parse(location string, data []byte) ([]RawEntry, []error) {
	p, err := pom.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, []error{&FormatError{Location: location, Err: err}}
	}
	return []RawEntry{{Location: location, Descriptor: p}}, nil
}

// ListParser parses plain coordinate and path lists.
type ListParser struct{}

// Parse implements Parser.
func (ListParser) Parse(location string, data []byte) ([]RawEntry, []error) {
	var (
		entries []RawEntry
		errs    []error
	)

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		if strings.Contains(text, "/") {
			if err := validatePath(text); err != nil {
				errs = append(errs, &FormatError{Location: location, Line: line, Text: text, Err: err})
				continue
			}
			entries = append(entries, RawEntry{Location: location, Line: line, Path: strings.TrimPrefix(text, "/")})
			continue
		}

		if _, err := artifact.Parse(text); err != nil {
			errs = append(errs, &FormatError{Location: location, Line: line, Text: text, Err: err})
			continue
		}
		entries = append(entries, RawEntry{Location: location, Line: line, Coordinate: text})
	}
	if err := scanner.Err(); err != nil {
		errs = append(errs, &FormatError{Location: location, Line: line + 1, Err: err})
	}

	return entries, errs
}

func validatePath(p string) error {
	for _, seg := range strings.Split(strings.TrimPrefix(p, "/"), "/") {
		if seg == "" || seg == "." || seg == ".." {
			return fmt.Errorf("invalid repository path segment %q", seg)
		}
	}
	return nil
}

// Loader reads location references and dispatches to a parser.
type Loader struct {
	client *offhttp.Client
	log    logr.Logger
}

// NewLoader returns a loader. client is used for http(s) references and may
// be nil when only local files are loaded.
func NewLoader(client *offhttp.Client, log logr.Logger) *Loader {
	return &Loader{client: client, log: log}
}

// Load reads ref and parses it. Entry-level problems are returned in the
// second value; the third reports that ref itself could not be read.
func (l *Loader) Load(ctx context.Context, ref string) ([]RawEntry, []error, error) {
	data, err := l.read(ctx, ref)
	if err != nil {
		return nil, nil, fmt.Errorf("location %s: %w", ref, err)
	}

	parser := detect(ref, data)
	entries, errs := parser.Parse(ref, data)
	l.log.V(1).Info("loaded location", "location", ref, "format", fmt.Sprintf("%T", parser), "entries", len(entries), "errors", len(errs))
	return entries, errs, nil
}

// LoadAll loads every reference in order. Unreadable references are reported
// as FormatErrors unless none could be read at all.
func (l *Loader) LoadAll(ctx context.Context, refs []string) ([]RawEntry, []error, error) {
	var (
		entries  []RawEntry
		errs     []error
		readErrs *multierror.Error
		readable int
	)

	for _, ref := range refs {
		e, perr, err := l.Load(ctx, ref)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			readErrs = multierror.Append(readErrs, err)
			errs = append(errs, &FormatError{Location: ref, Err: err})
			continue
		}
		readable++
		entries = append(entries, e...)
		errs = append(errs, perr...)
	}

	if readable == 0 {
		if readErrs != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrNoReadableLocation, readErrs)
		}
		return nil, nil, ErrNoReadableLocation
	}

	return entries, errs, nil
}

func (l *Loader) read(ctx context.Context, ref string) ([]byte, error) {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		if l.client == nil {
			return nil, errors.New("remote locations require an HTTP client")
		}
		return l.client.Fetch(ctx, ref)
	}
	return os.ReadFile(ref)
}

// detect picks a parser by extension, falling back to the first non-blank byte.
func detect(ref string, data []byte) Parser {
	switch strings.ToLower(filepath.Ext(ref)) {
	case ".pom", ".xml":
		return DescriptorParser{}
	case ".txt", ".list", ".lst":
		return ListParser{}
	}
	trimmed := bytes.TrimLeft(data, " \t\r\n\uFEFF")
	if len(trimmed) > 0 && trimmed[0] == '<' {
		return DescriptorParser{}
	}
	return ListParser{}
}
