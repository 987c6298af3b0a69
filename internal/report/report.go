// Package report aggregates the outcome of a mirror run.
//
// A Report is shared by every download worker; all mutations are serialized
// so no update is lost regardless of pool size. Callers read it once the run
// has finished, or after cancellation to see partial progress.
package report

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/ligustah/offliner/internal/plan"
)

// Failure is a single failed request, or a load/resolution failure when
// Request is nil.
type Failure struct {
	Key     string
	Request *plan.TransferRequest
	Err     error
}

// Written describes a committed primary file.
type Written struct {
	Path string
	Size int64
	SHA1 string
}

// Report collects success counts and failures.
type Report struct {
	runID string

	mu         sync.Mutex
	downloaded int
	checksums  int
	bytes      int64
	written    []Written
	failures   map[string]Failure
}

// New returns an empty report with a fresh run ID.
func New() *Report {
	return &Report{
		runID:    uuid.NewString(),
		failures: make(map[string]Failure),
	}
}

// RunID identifies the run in logs and the repository manifest.
func (r *Report) RunID() string {
	return r.runID
}

// RecordSuccess marks req as successful. Only primary requests count towards
// Downloaded.
func (r *Report) RecordSuccess(req *plan.TransferRequest, w Written) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if req.Kind == plan.Checksum {
		r.checksums++
		return
	}
	r.downloaded++
	r.bytes += w.Size
	r.written = append(r.written, w)
}

// RecordFailure stores err under key. A later failure for the same key
// replaces the earlier one, so each key has at most one entry.
func (r *Report) RecordFailure(key string, req *plan.TransferRequest, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[key] = Failure{Key: key, Request: req, Err: err}
}

// RecordTransferFailure stores err keyed by the request's path.
func (r *Report) RecordTransferFailure(req *plan.TransferRequest, err error) {
	r.RecordFailure(req.Path, req, err)
}

// Downloaded returns the number of primary files written and verified.
func (r *Report) Downloaded() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.downloaded
}

// ChecksumsFetched returns the number of checksum companions fetched.
func (r *Report) ChecksumsFetched() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.checksums
}

// Bytes returns the total size of primary files written.
func (r *Report) Bytes() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bytes
}

// Written returns the committed primary files sorted by path.
func (r *Report) Written() []Written {
	r.mu.Lock()
	out := make([]Written, len(r.written))
	copy(out, r.written)
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Errors returns a copy of the failures keyed by path or location.
func (r *Report) Errors() map[string]error {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]error, len(r.failures))
	for k, f := range r.failures {
		out[k] = f.Err
	}
	return out
}

// Failures returns every failure sorted by key.
func (r *Report) Failures() []Failure {
	r.mu.Lock()
	out := make([]Failure, 0, len(r.failures))
	for _, f := range r.failures {
		out = append(out, f)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Err aggregates all failures, or returns nil when there were none.
func (r *Report) Err() error {
	var result *multierror.Error
	for _, f := range r.Failures() {
		result = multierror.Append(result, fmt.Errorf("%s: %w", f.Key, f.Err))
	}
	return result.ErrorOrNil()
}
