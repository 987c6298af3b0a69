package downloader

import (
	"errors"
	"fmt"

	offhttp "github.com/ligustah/offliner/internal/http"
	"github.com/ligustah/offliner/pkg/artifact"
)

// ErrNoMirrors is returned for a request without candidate mirrors.
var ErrNoMirrors = errors.New("downloader: no mirrors configured")

// ChecksumMismatchError is returned when a written file does not hash to the
// value published in its companion file. The file is removed.
type ChecksumMismatchError struct {
	Path      string
	Algorithm artifact.Algorithm
	Expected  string
	Actual    string
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch for %s: %s expected %s, got %s", e.Path, e.Algorithm, e.Expected, e.Actual)
}

// IOError is a failure writing to the output repository. It is terminal for
// the request.
type IOError struct {
	Path string
	Op   string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// NotFoundError is returned when every mirror reported the file missing.
type NotFoundError struct {
	Path    string
	Mirrors int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: not found on any of %d mirrors", e.Path, e.Mirrors)
}

func (e *NotFoundError) Unwrap() error {
	return offhttp.ErrNotFound
}

// FailedRequest records a request that failed while the circuit breaker was
// counting.
type FailedRequest struct {
	Path  string
	Error error
}

// CircuitBreakerError is returned when too many consecutive failures occur.
// It contains details about the failures that triggered the circuit breaker.
//
// This error is returned when:
//   - MaxConsecutiveFailures consecutive requests fail
//   - The circuit breaker threshold is exceeded
//
// Missing files (NotFoundError) do not count towards the threshold.
// Use errors.As to extract this error and inspect FailedRequests for details.
type CircuitBreakerError struct {
	ConsecutiveFailures int
	FailedRequests      []FailedRequest
}

func (e *CircuitBreakerError) Error() string {
	return fmt.Sprintf("circuit breaker tripped: %d consecutive failures", e.ConsecutiveFailures)
}
