// Package testutils provides shared test infrastructure: a fake remote
// repository served over HTTP, generated artifact content, and (with the
// integration build tag) a minio container for bucket-backed output.
package testutils

import (
	"crypto/md5"
	"crypto/rand"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ligustah/offliner/pkg/artifact"
	"github.com/ligustah/offliner/pkg/pom"
)

// Repository is a fake remote repository. Files are served under their
// repository path; anything else is a 404.
type Repository struct {
	Server *httptest.Server

	mu       sync.Mutex
	files    map[string][]byte
	failures map[string][]int
	requests map[string]int
	total    int
}

// NewRepository starts a repository server that is closed when the test ends.
func NewRepository(t testing.TB) *Repository {
	t.Helper()

	r := &Repository{
		files:    make(map[string][]byte),
		failures: make(map[string][]int),
		requests: make(map[string]int),
	}
	r.Server = httptest.NewServer(http.HandlerFunc(r.serve))
	t.Cleanup(r.Server.Close)
	return r
}

// URL returns the repository base URL.
func (r *Repository) URL() string {
	return r.Server.URL + "/maven2"
}

func (r *Repository) serve(w http.ResponseWriter, req *http.Request) {
	path, ok := strings.CutPrefix(req.URL.Path, "/maven2/")
	if !ok {
		http.NotFound(w, req)
		return
	}

	r.mu.Lock()
	r.requests[path]++
	r.total++
	var status int
	if queue := r.failures[path]; len(queue) > 0 {
		status = queue[0]
		r.failures[path] = queue[1:]
	}
	data, found := r.files[path]
	r.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		return
	}
	if !found {
		http.NotFound(w, req)
		return
	}

	w.Header().Set("Content-Length", fmt.Sprint(len(data)))
	w.Write(data)
}

// Put serves data at path.
func (r *Repository) Put(path string, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[path] = data
}

// PutFile serves data at path together with its .md5 and .sha1 companions.
func (r *Repository) PutFile(path string, data []byte) {
	r.Put(path, data)
	r.Put(path+artifact.MD5.Suffix(), []byte(MD5Hex(data)))
	r.Put(path+artifact.SHA1.Suffix(), []byte(SHA1Hex(data)+"  "+path[strings.LastIndex(path, "/")+1:]))
}

// PutArtifact serves generated content for c and its descriptor, each with
// companions, and returns the artifact content.
func (r *Repository) PutArtifact(t testing.TB, c artifact.Coordinate, size int) []byte {
	t.Helper()
	data := GenerateTestData(t, int64(size))
	r.PutFile(c.Path(), data)
	if c.HasDescriptor() {
		r.PutFile(c.POM().Path(), Descriptor(c.POM()))
	}
	return data
}

// Remove stops serving path.
func (r *Repository) Remove(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.files, path)
}

// Fail makes the next len(statuses) requests for path answer with the given
// statuses in order.
func (r *Repository) Fail(path string, statuses ...int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[path] = append(r.failures[path], statuses...)
}

// Requests returns how many times path was requested.
func (r *Repository) Requests(path string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requests[path]
}

// TotalRequests returns the number of requests served.
func (r *Repository) TotalRequests() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}

// GenerateTestData returns size random bytes.
func GenerateTestData(t testing.TB, size int64) []byte {
	t.Helper()
	data := make([]byte, size)
	if _, err := rand.Read(data); err != nil {
		t.Fatalf("generate random data: %v", err)
	}
	return data
}

// MD5Hex returns the lowercase hex md5 of data.
func MD5Hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// SHA1Hex returns the lowercase hex sha1 of data.
func SHA1Hex(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}

// Descriptor renders a minimal descriptor for c declaring deps.
func Descriptor(c artifact.Coordinate, deps ...artifact.Coordinate) []byte {
	p := &pom.Project{
		ModelVersion: "4.0.0",
		GroupID:      c.GroupID,
		ArtifactID:   c.ArtifactID,
		Version:      c.Version,
	}
	for _, d := range deps {
		dep := pom.Dependency{
			GroupID:    d.GroupID,
			ArtifactID: d.ArtifactID,
			Version:    d.Version,
			Classifier: d.Classifier,
		}
		if d.Type != artifact.DefaultType {
			dep.Type = d.Type
		}
		p.Dependencies = append(p.Dependencies, dep)
	}
	data, err := p.Marshal()
	if err != nil {
		panic(fmt.Sprintf("testutils: marshal descriptor for %s: %v", c, err))
	}
	return data
}
