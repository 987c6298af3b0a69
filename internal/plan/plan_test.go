package plan

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ligustah/offliner/internal/resolver"
	"github.com/ligustah/offliner/pkg/artifact"
)

var mirrors = []string{"http://one.example/repo", "http://two.example/maven2/"}

func paths(reqs []*TransferRequest) []string {
	out := make([]string, len(reqs))
	for i, r := range reqs {
		out[i] = r.Path
	}
	return out
}

func TestAddCoordinate(t *testing.T) {
	p := New(mirrors)
	p.AddCoordinate(artifact.Coordinate{GroupID: "org.dep", ArtifactID: "dep", Version: "1.2.3", Type: "jar"})

	want := []string{
		"org/dep/dep/1.2.3/dep-1.2.3.jar",
		"org/dep/dep/1.2.3/dep-1.2.3.jar.md5",
		"org/dep/dep/1.2.3/dep-1.2.3.jar.sha1",
		"org/dep/dep/1.2.3/dep-1.2.3.pom",
		"org/dep/dep/1.2.3/dep-1.2.3.pom.md5",
		"org/dep/dep/1.2.3/dep-1.2.3.pom.sha1",
	}
	if diff := cmp.Diff(want, paths(p.Requests())); diff != "" {
		t.Errorf("plan mismatch (-want +got):\n%s", diff)
	}
	if p.Primaries() != 2 {
		t.Errorf("expected 2 primaries, got %d", p.Primaries())
	}

	reqs := p.Requests()
	if reqs[0].Kind != Primary || len(reqs[0].Checksums) != 2 {
		t.Errorf("expected primary verified by 2 algorithms, got %+v", reqs[0])
	}
	if reqs[2].Kind != Checksum || reqs[2].Algorithm != artifact.SHA1 || reqs[2].Of != want[0] {
		t.Errorf("expected sha1 checksum of the jar, got %+v", reqs[2])
	}
}

func TestAddDescriptorCoordinate(t *testing.T) {
	p := New(mirrors)
	p.AddCoordinate(artifact.Coordinate{GroupID: "g", ArtifactID: "bom", Version: "1", Type: "pom"})

	if got := len(p.Requests()); got != 3 {
		t.Errorf("expected 3 requests for a descriptor, got %d: %v", got, paths(p.Requests()))
	}
	if p.Primaries() != 1 {
		t.Errorf("expected 1 primary, got %d", p.Primaries())
	}
}

func TestGlobalDedup(t *testing.T) {
	p := New(mirrors)
	jar := artifact.Coordinate{GroupID: "g", ArtifactID: "a", Version: "1", Type: "jar"}
	sources := artifact.Coordinate{GroupID: "g", ArtifactID: "a", Version: "1", Type: "jar", Classifier: "sources"}

	p.Add(resolver.Resolved{Coordinate: jar})
	p.Add(resolver.Resolved{Coordinate: sources})
	p.Add(resolver.Resolved{Coordinate: jar})
	p.Add(resolver.Resolved{Path: "g/a/1/a-1.pom"})
	p.Add(resolver.Resolved{Path: "g/a/1/a-1.jar.sha1"})

	want := []string{
		"g/a/1/a-1.jar",
		"g/a/1/a-1.jar.md5",
		"g/a/1/a-1.jar.sha1",
		"g/a/1/a-1.pom",
		"g/a/1/a-1.pom.md5",
		"g/a/1/a-1.pom.sha1",
		"g/a/1/a-1-sources.jar",
		"g/a/1/a-1-sources.jar.md5",
		"g/a/1/a-1-sources.jar.sha1",
	}
	if diff := cmp.Diff(want, paths(p.Requests())); diff != "" {
		t.Errorf("plan mismatch (-want +got):\n%s", diff)
	}
	if p.Primaries() != 3 {
		t.Errorf("expected 3 primaries, got %d", p.Primaries())
	}
}

func TestAddChecksumPath(t *testing.T) {
	p := New(mirrors)
	p.AddPath("/org/x/x/1/x-1.jar.md5", "list.txt")

	reqs := p.Requests()
	if len(reqs) != 1 {
		t.Fatalf("expected a single checksum request, got %v", paths(reqs))
	}
	if reqs[0].Kind != Checksum || reqs[0].Of != "org/x/x/1/x-1.jar" || reqs[0].Algorithm != artifact.MD5 {
		t.Errorf("unexpected request %+v", reqs[0])
	}
	if p.Primaries() != 0 {
		t.Errorf("expected no primaries, got %d", p.Primaries())
	}
}

func TestURL(t *testing.T) {
	p := New(mirrors)
	p.AddPath("g/a/1/a-1.jar", "test")
	req := p.Requests()[0]

	if got := req.URL(0); got != "http://one.example/repo/g/a/1/a-1.jar" {
		t.Errorf("URL(0) = %s", got)
	}
	if got := req.URL(1); got != "http://two.example/maven2/g/a/1/a-1.jar" {
		t.Errorf("URL(1) = %s", got)
	}
}
