// Package plan turns resolved coordinates into the deduplicated list of file
// transfers a run performs.
//
// For every coordinate the planner adds the artifact file and its checksum
// companions, then the descriptor file and its companions. A path is planned
// at most once per run no matter how many inputs reference it, and the first
// occurrence fixes its position, so plans are deterministic for a given input
// order.
package plan

import (
	"strings"

	"github.com/ligustah/offliner/internal/resolver"
	"github.com/ligustah/offliner/pkg/artifact"
)

// Kind distinguishes files written to the output from checksum companions
// that are only fetched for verification.
type Kind int

const (
	Primary Kind = iota
	Checksum
)

func (k Kind) String() string {
	if k == Checksum {
		return "checksum"
	}
	return "primary"
}

// TransferRequest is one planned file fetch.
type TransferRequest struct {
	// Path is the repository-relative target path.
	Path string

	// Mirrors are candidate base URLs in priority order.
	Mirrors []string

	Kind Kind

	// Checksums lists the algorithms a primary request is verified with.
	Checksums []artifact.Algorithm

	// Algorithm and Of are set on checksum requests: the digest algorithm
	// and the path it verifies.
	Algorithm artifact.Algorithm
	Of        string

	// Source names the coordinate or input path that first planned this request.
	Source string
}

// URL returns the request's URL on mirror i.
func (r *TransferRequest) URL(i int) string {
	return JoinURL(r.Mirrors[i], r.Path)
}

// JoinURL appends a repository path to a mirror base URL.
func JoinURL(base, path string) string {
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(path, "/")
}

// Planner accumulates requests. It is not safe for concurrent use; planning
// completes before any download starts.
type Planner struct {
	mirrors    []string
	algorithms []artifact.Algorithm
	seen       map[string]bool
	requests   []*TransferRequest
	primaries  int
}

// New returns a planner for the given mirrors, verifying every file with all
// supported checksum algorithms.
func New(mirrors []string) *Planner {
	return &Planner{
		mirrors:    mirrors,
		algorithms: artifact.Algorithms,
		seen:       make(map[string]bool),
	}
}

// Add plans a resolved entry.
func (p *Planner) Add(r resolver.Resolved) {
	if r.Path != "" {
		p.AddPath(r.Path, r.Path)
		return
	}
	p.AddCoordinate(r.Coordinate)
}

// AddCoordinate plans the artifact, its descriptor and all companions.
func (p *Planner) AddCoordinate(c artifact.Coordinate) {
	source := c.String()
	p.addFile(c.Path(), source)
	if c.HasDescriptor() {
		p.addFile(c.POM().Path(), source)
	}
}

// AddPath plans a raw repository path. A path that is itself a checksum
// companion is planned as a checksum request only.
func (p *Planner) AddPath(path, source string) {
	path = strings.TrimPrefix(path, "/")
	if of, alg, ok := artifact.ChecksumOf(path); ok {
		p.addChecksum(of, alg, source)
		return
	}
	p.addFile(path, source)
}

func (p *Planner) addFile(path, source string) {
	if !p.seen[path] {
		p.seen[path] = true
		p.primaries++
		p.requests = append(p.requests, &TransferRequest{
			Path:      path,
			Mirrors:   p.mirrors,
			Kind:      Primary,
			Checksums: p.algorithms,
			Source:    source,
		})
	}
	for _, alg := range p.algorithms {
		p.addChecksum(path, alg, source)
	}
}

func (p *Planner) addChecksum(of string, alg artifact.Algorithm, source string) {
	path := of + alg.Suffix()
	if p.seen[path] {
		return
	}
	p.seen[path] = true
	p.requests = append(p.requests, &TransferRequest{
		Path:      path,
		Mirrors:   p.mirrors,
		Kind:      Checksum,
		Algorithm: alg,
		Of:        of,
		Source:    source,
	})
}

// Requests returns the plan in planning order.
func (p *Planner) Requests() []*TransferRequest {
	return p.requests
}

// Primaries returns the number of planned non-checksum requests.
func (p *Planner) Primaries() int {
	return p.primaries
}
