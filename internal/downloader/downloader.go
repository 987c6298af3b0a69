package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/juju/clock"
	"github.com/juju/retry"

	offhttp "github.com/ligustah/offliner/internal/http"
	"github.com/ligustah/offliner/internal/metrics"
	"github.com/ligustah/offliner/internal/plan"
	"github.com/ligustah/offliner/internal/progress"
	"github.com/ligustah/offliner/internal/report"
	"github.com/ligustah/offliner/pkg/artifact"
	"github.com/ligustah/offliner/pkg/repository"
)

// DefaultRetryStatuses are the HTTP statuses retried on the same mirror.
var DefaultRetryStatuses = []int{408, 429, 500, 502, 503, 504}

// Options configures the downloader.
type Options struct {
	// Workers is the number of parallel download workers.
	Workers int

	// AttemptTimeout bounds a single HTTP attempt. Overrides HTTPOptions.Timeout
	// when set.
	AttemptTimeout time.Duration

	// MaxAttempts is the number of attempts per mirror before moving to the
	// next one (default: 3).
	MaxAttempts int

	// Backoff is the delay before the first retry; later retries back off
	// exponentially up to MaxBackoff.
	Backoff    time.Duration
	MaxBackoff time.Duration

	// RetryStatuses are HTTP statuses treated as transient.
	// Default: DefaultRetryStatuses.
	RetryStatuses []int

	// MaxConsecutiveFailures is the number of consecutive failed requests
	// before the circuit breaker trips and stops the run.
	// 0 means the default (10); negative disables the breaker.
	MaxConsecutiveFailures int

	// Progress is an optional progress reporter.
	Progress *progress.Reporter

	// Metrics is an optional metrics collector.
	Metrics *metrics.Collector

	// Logger receives per-transfer logs. Default: discard.
	Logger logr.Logger

	// HTTPOptions configures the HTTP client.
	HTTPOptions offhttp.Options

	// Client overrides the HTTP client built from HTTPOptions.
	Client *offhttp.Client

	// Clock is used for retry delays. Default: wall clock.
	Clock clock.Clock
}

func (o *Options) applyDefaults() {
	if o.Workers <= 0 {
		o.Workers = 8
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.Backoff <= 0 {
		o.Backoff = 500 * time.Millisecond
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 30 * time.Second
	}
	if o.MaxBackoff < o.Backoff {
		o.MaxBackoff = o.Backoff
	}
	if o.RetryStatuses == nil {
		o.RetryStatuses = DefaultRetryStatuses
	}
	if o.MaxConsecutiveFailures == 0 {
		o.MaxConsecutiveFailures = 10
	}
	if o.HTTPOptions.MaxIdleConnsPerHost == 0 {
		o.HTTPOptions = offhttp.DefaultOptions()
	}
	if o.AttemptTimeout > 0 {
		o.HTTPOptions.Timeout = o.AttemptTimeout
	}
	if o.Logger.GetSink() == nil {
		o.Logger = logr.Discard()
	}
	if o.Clock == nil {
		o.Clock = clock.WallClock
	}
}

// state is the lifecycle position of a single request.
type state int

const (
	statePending state = iota
	stateAttempting
	stateRetryPending
	stateSuccess
	stateFailed
)

func (s state) String() string {
	switch s {
	case statePending:
		return "pending"
	case stateAttempting:
		return "attempting"
	case stateRetryPending:
		return "retry-pending"
	case stateSuccess:
		return "success"
	default:
		return "failed"
	}
}

// transfer tracks one request through the state machine.
type transfer struct {
	req      *plan.TransferRequest
	state    state
	mirror   int
	attempt  int
	notFound int
	lastErr  error
}

type engine struct {
	client    *offhttp.Client
	store     *repository.Store
	rep       *report.Report
	opts      Options
	log       logr.Logger
	backoff   func(time.Duration, int) time.Duration
	checksums *checksumCache
}

// Download fetches every request into store and records outcomes in rep.
//
// Per-request failures are recorded in rep and do not make Download fail.
// Download returns a *CircuitBreakerError when the breaker trips, or the
// context error when ctx is cancelled; requests that had not started by then
// are left out of the report.
func Download(ctx context.Context, requests []*plan.TransferRequest, store *repository.Store, rep *report.Report, opts Options) error {
	opts.applyDefaults()

	client := opts.Client
	if client == nil {
		client = offhttp.NewClient(opts.HTTPOptions)
		defer client.CloseIdleConnections()
	}

	e := &engine{
		client:  client,
		store:   store,
		rep:     rep,
		opts:    opts,
		log:     opts.Logger,
		backoff: retry.ExpBackoff(opts.Backoff, opts.MaxBackoff, 2, true),
	}
	e.checksums = newChecksumCache(e.fetchChecksum)

	// Circuit breaker state
	var (
		cbMu                  sync.Mutex
		consecutiveFailures   int
		failedRequests        []FailedRequest
		circuitBreakerTripped bool
	)

	cbCtx, cbCancel := context.WithCancel(ctx)
	defer cbCancel()

	jobs := make(chan *plan.TransferRequest, opts.Workers)
	var wg sync.WaitGroup

	for i := 0; i < opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for req := range jobs {
				if cbCtx.Err() != nil {
					// Dequeued after cancellation; never started.
					continue
				}

				err := e.process(cbCtx, req)

				cbMu.Lock()
				var nf *NotFoundError
				switch {
				case err == nil:
					consecutiveFailures = 0
				case errors.As(err, &nf), cbCtx.Err() != nil:
					// Missing files and interrupted requests say nothing
					// about mirror health.
				case opts.MaxConsecutiveFailures > 0:
					consecutiveFailures++
					failedRequests = append(failedRequests, FailedRequest{Path: req.Path, Error: err})
					if consecutiveFailures >= opts.MaxConsecutiveFailures {
						circuitBreakerTripped = true
						e.log.Info("circuit breaker tripped", "consecutiveFailures", consecutiveFailures)
						cbCancel()
					}
				}
				cbMu.Unlock()
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, req := range requests {
			select {
			case jobs <- req:
			case <-cbCtx.Done():
				return
			}
		}
	}()

	wg.Wait()

	cbMu.Lock()
	defer cbMu.Unlock()
	if circuitBreakerTripped {
		return &CircuitBreakerError{
			ConsecutiveFailures: consecutiveFailures,
			FailedRequests:      failedRequests,
		}
	}

	return ctx.Err()
}

// process runs one request to a terminal state and records it.
func (e *engine) process(ctx context.Context, req *plan.TransferRequest) error {
	start := time.Now()
	if e.opts.Progress != nil {
		e.opts.Progress.TransferStarted()
	}

	var (
		written report.Written
		err     error
	)
	if req.Kind == plan.Checksum {
		_, err = e.checksums.get(ctx, req)
	} else {
		written, err = e.primary(ctx, req)
	}

	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultFailed
		e.rep.RecordTransferFailure(req, err)
		e.log.Error(err, "transfer failed", "path", req.Path, "kind", req.Kind.String())
		if e.opts.Progress != nil {
			e.opts.Progress.TransferFailed()
		}
	} else {
		e.rep.RecordSuccess(req, written)
		e.log.V(1).Info("transfer complete", "path", req.Path, "kind", req.Kind.String(), "size", written.Size)
		if e.opts.Progress != nil {
			e.opts.Progress.BytesWritten(written.Size)
			e.opts.Progress.TransferCompleted()
		}
		if e.opts.Metrics != nil {
			e.opts.Metrics.BytesWritten(written.Size)
		}
	}
	if e.opts.Metrics != nil {
		e.opts.Metrics.TransferFinished(req.Kind.String(), result, time.Since(start))
	}

	return err
}

// primary downloads, commits and verifies a primary file.
func (e *engine) primary(ctx context.Context, req *plan.TransferRequest) (report.Written, error) {
	var digests repository.Digests
	err := e.run(ctx, req, func(ctx context.Context, url string) error {
		d, err := e.fetchPrimary(ctx, req, url)
		digests = d
		return err
	})
	if err != nil {
		return report.Written{}, err
	}

	if err := e.verify(ctx, req, digests); err != nil {
		if derr := e.store.Delete(context.WithoutCancel(ctx), req.Path); derr != nil {
			e.log.Error(derr, "remove rejected file", "path", req.Path)
		}
		return report.Written{}, err
	}

	return report.Written{Path: req.Path, Size: digests.Size, SHA1: digests.SHA1}, nil
}

// fetchPrimary performs one attempt of a primary request.
func (e *engine) fetchPrimary(ctx context.Context, req *plan.TransferRequest, url string) (repository.Digests, error) {
	resp, err := e.client.Get(ctx, url)
	if err != nil {
		return repository.Digests{}, err
	}
	defer resp.Close()

	w, err := e.store.NewWriter(ctx, req.Path)
	if err != nil {
		return repository.Digests{}, &IOError{Path: req.Path, Op: "create", Err: err}
	}

	if _, err := io.Copy(writeErrors{w: w, path: req.Path}, resp.Body); err != nil {
		w.Abort()
		return repository.Digests{}, err
	}

	d, err := w.Close()
	if err != nil {
		w.Abort()
		if ctx.Err() != nil {
			return repository.Digests{}, ctx.Err()
		}
		return repository.Digests{}, &IOError{Path: req.Path, Op: "commit", Err: err}
	}
	return d, nil
}

// writeErrors tags output errors so they are not mistaken for read errors.
type writeErrors struct {
	w    io.Writer
	path string
}

func (w writeErrors) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	if err != nil {
		err = &IOError{Path: w.path, Op: "write", Err: err}
	}
	return n, err
}

// verify compares digests against every companion checksum.
func (e *engine) verify(ctx context.Context, req *plan.TransferRequest, digests repository.Digests) error {
	for _, alg := range req.Checksums {
		expected, err := e.checksums.get(ctx, companionRequest(req, alg))
		if err != nil {
			var nf *NotFoundError
			if errors.As(err, &nf) {
				e.log.Info("checksum not published, file not verified", "path", req.Path, "algorithm", string(alg))
				continue
			}
			return fmt.Errorf("verify %s: %w", req.Path, err)
		}

		actual := digests.Get(alg)
		if !strings.EqualFold(expected, actual) {
			if e.opts.Metrics != nil {
				e.opts.Metrics.ChecksumMismatch()
			}
			return &ChecksumMismatchError{Path: req.Path, Algorithm: alg, Expected: expected, Actual: actual}
		}
	}
	return nil
}

func companionRequest(req *plan.TransferRequest, alg artifact.Algorithm) *plan.TransferRequest {
	return &plan.TransferRequest{
		Path:      req.Path + alg.Suffix(),
		Mirrors:   req.Mirrors,
		Kind:      plan.Checksum,
		Algorithm: alg,
		Of:        req.Path,
		Source:    req.Source,
	}
}

// fetchChecksum downloads and parses a companion file.
func (e *engine) fetchChecksum(ctx context.Context, req *plan.TransferRequest) (string, error) {
	var value string
	err := e.run(ctx, req, func(ctx context.Context, url string) error {
		data, err := e.client.Fetch(ctx, url)
		if err != nil {
			return err
		}
		value = artifact.ParseChecksum(data)
		return nil
	})
	return value, err
}

// run drives req through the state machine, calling attempt once per
// Attempting state. Transient failures retry the same mirror with backoff;
// anything else, or exhausted attempts, moves on to the next mirror.
func (e *engine) run(ctx context.Context, req *plan.TransferRequest, attempt func(ctx context.Context, url string) error) error {
	t := &transfer{req: req, state: statePending}

	for {
		switch t.state {
		case statePending:
			if len(req.Mirrors) == 0 {
				t.lastErr = ErrNoMirrors
				t.state = stateFailed
				continue
			}
			t.state = stateAttempting

		case stateAttempting:
			if err := ctx.Err(); err != nil {
				t.lastErr = err
				t.state = stateFailed
				continue
			}

			t.attempt++
			if e.opts.Metrics != nil {
				e.opts.Metrics.Attempt(req.Mirrors[t.mirror])
			}

			err := attempt(ctx, req.URL(t.mirror))
			if err == nil {
				t.state = stateSuccess
				continue
			}
			t.lastErr = err

			switch {
			case ctx.Err() != nil:
				t.lastErr = ctx.Err()
				t.state = stateFailed
			case isTerminal(err):
				t.state = stateFailed
			case e.retryable(err) && t.attempt < e.opts.MaxAttempts:
				t.state = stateRetryPending
			default:
				if errors.Is(err, offhttp.ErrNotFound) {
					t.notFound++
				}
				e.log.V(1).Info("moving to next mirror", "path", req.Path, "mirror", req.Mirrors[t.mirror], "attempts", t.attempt, "error", err.Error())
				t.mirror++
				t.attempt = 0
				if t.mirror >= len(req.Mirrors) {
					t.state = stateFailed
				} else {
					t.state = stateAttempting
				}
			}

		case stateRetryPending:
			delay := e.backoff(0, t.attempt-1)
			e.log.V(2).Info("retrying", "path", req.Path, "attempt", t.attempt, "delay", delay, "error", t.lastErr.Error())
			if e.opts.Progress != nil {
				e.opts.Progress.Retried()
			}
			if e.opts.Metrics != nil {
				e.opts.Metrics.Retry()
			}
			select {
			case <-e.opts.Clock.After(delay):
				t.state = stateAttempting
			case <-ctx.Done():
				t.lastErr = ctx.Err()
				t.state = stateFailed
			}

		case stateSuccess:
			return nil

		case stateFailed:
			if t.notFound == len(req.Mirrors) && t.notFound > 0 {
				return &NotFoundError{Path: req.Path, Mirrors: t.notFound}
			}
			return t.lastErr
		}
	}
}

// retryable reports whether err is transient: a network failure, attempt
// timeout or a configured HTTP status.
func (e *engine) retryable(err error) bool {
	var ne *offhttp.NetworkError
	if errors.As(err, &ne) {
		return true
	}
	var se *offhttp.StatusError
	if errors.As(err, &se) {
		return slices.Contains(e.opts.RetryStatuses, se.StatusCode)
	}
	return false
}

func isTerminal(err error) bool {
	var ioErr *IOError
	return errors.As(err, &ioErr)
}
