// Package mirror runs a complete mirror pass: it loads the configured
// locations, resolves them to coordinates, plans every file and downloads
// the plan into the output repository.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/go-logr/logr"
	"github.com/gofrs/flock"

	"github.com/ligustah/offliner/internal/config"
	"github.com/ligustah/offliner/internal/downloader"
	offhttp "github.com/ligustah/offliner/internal/http"
	"github.com/ligustah/offliner/internal/location"
	"github.com/ligustah/offliner/internal/metrics"
	"github.com/ligustah/offliner/internal/plan"
	"github.com/ligustah/offliner/internal/progress"
	"github.com/ligustah/offliner/internal/report"
	"github.com/ligustah/offliner/internal/resolver"
	"github.com/ligustah/offliner/pkg/repository"
)

// LockFile is created in local output roots while a run holds them.
const LockFile = ".offliner/lock"

var (
	// ErrInvalidConfig wraps configuration problems found before any download.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrLocked is returned when another run holds the output root.
	ErrLocked = errors.New("output repository is locked by another run")

	// ErrStorage wraps failures opening or locking the output repository.
	ErrStorage = errors.New("output repository unavailable")
)

type options struct {
	log            logr.Logger
	store          *repository.Store
	client         *offhttp.Client
	metrics        *metrics.Collector
	progressOutput io.Writer
	lockTimeout    time.Duration
}

// Option customizes Run.
type Option func(*options)

// WithLogger sets the run logger.
func WithLogger(log logr.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithStore writes into store instead of opening cfg.Output.
func WithStore(store *repository.Store) Option {
	return func(o *options) { o.store = store }
}

// WithClient uses client for locations and downloads.
func WithClient(client *offhttp.Client) Option {
	return func(o *options) { o.client = client }
}

// WithMetrics records engine metrics into c.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) { o.metrics = c }
}

// WithProgressOutput sets where progress is printed when enabled.
func WithProgressOutput(w io.Writer) Option {
	return func(o *options) { o.progressOutput = w }
}

// WithLockTimeout bounds how long Run waits for the output lock.
func WithLockTimeout(d time.Duration) Option {
	return func(o *options) { o.lockTimeout = d }
}

// Run mirrors cfg.Locations into cfg.Output.
//
// An error is returned only when the run could not start (invalid
// configuration, unusable output, no readable location) or was cut short by
// cancellation or the circuit breaker; in the latter cases the report still
// holds everything recorded so far. Per-request problems are only recorded
// in the report.
func Run(ctx context.Context, cfg config.Config, opts ...Option) (*report.Report, error) {
	o := options{
		log:         logr.Discard(),
		lockTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	store := o.store
	if store == nil {
		s, err := repository.Open(ctx, cfg.Output)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorage, err)
		}
		defer s.Close()
		store = s
	}

	if dir := store.Dir(); dir != "" {
		unlock, err := lockRoot(ctx, dir, o.lockTimeout)
		if err != nil {
			return nil, err
		}
		defer unlock()
	}

	rep := report.New()
	log := o.log.WithValues("run", rep.RunID())

	client := o.client
	if client == nil {
		httpOpts := offhttp.DefaultOptions()
		if cfg.Timeout > 0 {
			httpOpts.Timeout = cfg.Timeout
		}
		httpOpts.RateLimit = cfg.RateLimit
		client = offhttp.NewClient(httpOpts)
		defer client.CloseIdleConnections()
	}

	entries, loadErrs, err := location.NewLoader(client, log).LoadAll(ctx, cfg.Locations)
	if err != nil {
		return nil, err
	}
	recordErrors(rep, loadErrs)

	res := &resolver.Resolver{
		Overrides:     cfg.Properties,
		IncludeSelf:   cfg.IncludeSelf,
		IncludeParent: cfg.IncludeParent,
		SkipScopes:    cfg.SkipScopes,
	}
	resolved, resolveErrs := res.Resolve(entries)
	recordErrors(rep, resolveErrs)

	planner := plan.New(cfg.Mirrors)
	for _, r := range resolved {
		planner.Add(r)
	}
	requests := planner.Requests()
	log.Info("planned transfers",
		"entries", len(entries),
		"resolved", len(resolved),
		"requests", len(requests),
		"primaries", planner.Primaries(),
		"problems", len(loadErrs)+len(resolveErrs),
	)

	var reporter *progress.Reporter
	if cfg.Progress {
		reporter = progress.NewReporter(progress.Options{
			TotalFiles: len(requests),
			Workers:    cfg.Workers,
			Mirrors:    cfg.Mirrors,
			Output:     o.progressOutput,
		})
		reporter.Start()
	}

	dlErr := downloader.Download(ctx, requests, store, rep, downloader.Options{
		Workers:                cfg.Workers,
		MaxAttempts:            cfg.Retry.Attempts,
		Backoff:                cfg.Retry.Backoff,
		MaxBackoff:             cfg.Retry.MaxBackoff,
		RetryStatuses:          cfg.Retry.Statuses,
		MaxConsecutiveFailures: cfg.MaxConsecutiveFailures,
		Progress:               reporter,
		Metrics:                o.metrics,
		Logger:                 log,
		Client:                 client,
	})

	if reporter != nil {
		reporter.Stop()
	}

	if cfg.Manifest {
		// Files committed before an interruption are still recorded.
		if err := writeManifest(context.WithoutCancel(ctx), store, rep); err != nil {
			log.Error(err, "failed to write manifest")
			if dlErr == nil {
				return rep, err
			}
		}
	}

	log.Info("run finished",
		"downloaded", rep.Downloaded(),
		"checksums", rep.ChecksumsFetched(),
		"bytes", rep.Bytes(),
		"failures", len(rep.Failures()),
	)

	return rep, dlErr
}

func recordErrors(rep *report.Report, errs []error) {
	for _, err := range errs {
		rep.RecordFailure(errorKey(err), nil, err)
	}
}

// errorKey returns the location-based key of a load or resolution error.
func errorKey(err error) string {
	var keyed interface{ Key() string }
	if errors.As(err, &keyed) {
		return keyed.Key()
	}
	return err.Error()
}

func writeManifest(ctx context.Context, store *repository.Store, rep *report.Report) error {
	m := &repository.Manifest{
		RunID:       rep.RunID(),
		CompletedAt: time.Now().UTC(),
	}
	for _, w := range rep.Written() {
		m.Entries = append(m.Entries, repository.Entry{Path: w.Path, Size: w.Size, SHA1: w.SHA1})
	}

	prev, err := store.ReadManifest(ctx)
	if err != nil && !repository.IsNotExist(err) {
		return err
	}
	m.Merge(prev)

	return store.WriteManifest(ctx, m)
}

// lockRoot takes the output lock, retrying until timeout.
func lockRoot(ctx context.Context, dir string, timeout time.Duration) (func(), error) {
	fileLock := flock.New(filepath.Join(dir, filepath.FromSlash(LockFile)))
	if err := os.MkdirAll(filepath.Dir(fileLock.Path()), 0755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	locked, err := fileLock.TryLockContext(lockCtx, 100*time.Millisecond)
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: lock %s: %v", ErrStorage, fileLock.Path(), err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLocked, dir)
	}
	return func() { fileLock.Unlock() }, nil
}
