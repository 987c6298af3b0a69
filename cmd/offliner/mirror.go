package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ligustah/offliner/internal/config"
	"github.com/ligustah/offliner/internal/downloader"
	"github.com/ligustah/offliner/internal/location"
	"github.com/ligustah/offliner/internal/metrics"
	"github.com/ligustah/offliner/internal/mirror"
	"github.com/ligustah/offliner/internal/report"
)

// mirrorOptions holds the mirror command flags. Only flags that were set on
// the command line override the file and environment configuration.
type mirrorOptions struct {
	mirrors                []string
	output                 string
	workers                int
	timeout                time.Duration
	properties             []string
	includeSelf            bool
	includeParent          bool
	skipScopes             []string
	noManifest             bool
	progress               bool
	metricsFile            string
	rateLimit              float64
	maxConsecutiveFailures int
	retryAttempts          int
	retryBackoff           time.Duration
	retryMaxBackoff        time.Duration
}

func newMirrorCommand(ctx context.Context, root *rootOptions) *cobra.Command {
	opts := &mirrorOptions{}
	cmd := &cobra.Command{
		Use:   "mirror [flags] LOCATION...",
		Short: "Download every artifact referenced by the given locations",
		Long: `Load descriptors (pom.xml) and artifact lists, resolve every referenced
artifact and download it from the configured mirrors into the output
repository.

A location is a local file or an http(s) URL. List files hold one entry per
line: groupId:artifactId:version[:type[:classifier]] or a repository path.`,
		Example: `  offliner mirror -m https://repo1.maven.org/maven2 -o ./repository pom.xml
  offliner mirror --config offliner.yaml -D version.org.slf4j=2.0.13 extra.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config(cmd.Flags(), root.configPath, args)
			if err != nil {
				return exitWith(ExitInvalidArgs, err)
			}
			return runMirror(ctx, cmd, root, cfg)
		},
	}
	opts.AddFlags(cmd.Flags())
	return cmd
}

// AddFlags adds flags for the options to a flagset.
func (o *mirrorOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringSliceVarP(&o.mirrors, "mirror", "m", nil, "Mirror base URL, in priority order (repeatable)")
	fs.StringVarP(&o.output, "output", "o", "", "Output repository: a directory or bucket URL (s3://, gs://, file://)")
	fs.IntVarP(&o.workers, "workers", "w", 0, "Number of parallel download workers (default 8)")
	fs.DurationVar(&o.timeout, "timeout", 0, "Timeout for a single download attempt (default 1m)")
	fs.StringArrayVarP(&o.properties, "property", "D", nil, "Property override as name=value (repeatable)")
	fs.BoolVar(&o.includeSelf, "include-self", false, "Also download each descriptor's own artifact")
	fs.BoolVar(&o.includeParent, "include-parent", false, "Also download each descriptor's declared parent descriptor")
	fs.StringSliceVar(&o.skipScopes, "skip-scope", nil, "Dependency scope to ignore (default system, pass \"\" to keep every scope)")
	fs.BoolVar(&o.noManifest, "no-manifest", false, "Do not write the repository manifest")
	fs.BoolVar(&o.progress, "progress", false, "Show progress output")
	fs.StringVar(&o.metricsFile, "metrics-file", "", "Write prometheus metrics to this textfile")
	fs.Float64Var(&o.rateLimit, "rate-limit", 0, "Maximum requests per second across all workers (0 disables)")
	fs.IntVar(&o.maxConsecutiveFailures, "max-consecutive-failures", 0, "Stop after this many consecutive failed transfers (default 10, negative disables)")
	fs.IntVar(&o.retryAttempts, "retry-attempts", 0, "Attempts per mirror for transient failures (default 3)")
	fs.DurationVar(&o.retryBackoff, "retry-backoff", 0, "Delay before the first retry (default 500ms)")
	fs.DurationVar(&o.retryMaxBackoff, "retry-max-backoff", 0, "Maximum delay between retries (default 30s)")
}

// config layers defaults, the config file, OFFLINER_ environment variables
// and explicitly set flags, in that order.
func (o *mirrorOptions) config(fs *pflag.FlagSet, path string, locations []string) (config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.LoadFromFile(path); err != nil {
			return config.Config{}, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return config.Config{}, err
	}

	override := config.Config{
		Mirrors:                o.mirrors,
		Output:                 o.output,
		Locations:              locations,
		Workers:                o.workers,
		Timeout:                o.timeout,
		SkipScopes:             o.skipScopes,
		MetricsFile:            o.metricsFile,
		RateLimit:              o.rateLimit,
		MaxConsecutiveFailures: o.maxConsecutiveFailures,
		Retry: config.RetryConfig{
			Attempts:   o.retryAttempts,
			Backoff:    o.retryBackoff,
			MaxBackoff: o.retryMaxBackoff,
		},
	}
	if len(o.properties) > 0 {
		props, err := config.ParseProperties(o.properties)
		if err != nil {
			return config.Config{}, err
		}
		override.Properties = props
	}

	cfg, err := cfg.Merge(override)
	if err != nil {
		return config.Config{}, err
	}

	if fs.Changed("include-self") {
		cfg.IncludeSelf = o.includeSelf
	}
	if fs.Changed("include-parent") {
		cfg.IncludeParent = o.includeParent
	}
	if fs.Changed("no-manifest") {
		cfg.Manifest = !o.noManifest
	}
	if fs.Changed("progress") {
		cfg.Progress = o.progress
	}
	if fs.Changed("skip-scope") && len(o.skipScopes) == 0 {
		cfg.SkipScopes = []string{}
	}
	return cfg, nil
}

func runMirror(ctx context.Context, cmd *cobra.Command, root *rootOptions, cfg config.Config) error {
	stderr := cmd.ErrOrStderr()
	log := root.logger(stderr)

	runOpts := []mirror.Option{
		mirror.WithLogger(log),
		mirror.WithProgressOutput(stderr),
	}
	var collector *metrics.Collector
	if cfg.MetricsFile != "" {
		collector = metrics.NewCollector()
		runOpts = append(runOpts, mirror.WithMetrics(collector))
	}

	start := time.Now()
	rep, err := mirror.Run(ctx, cfg, runOpts...)

	if collector != nil && rep != nil {
		if merr := collector.WriteTextfile(cfg.MetricsFile); merr != nil {
			log.Error(merr, "failed to write metrics", "path", cfg.MetricsFile)
		}
	}
	if rep != nil {
		printSummary(stderr, rep, time.Since(start))
	}

	if err != nil {
		return exitWith(exitCode(err), err)
	}
	if len(rep.Failures()) > 0 {
		return exitWith(ExitTransferFailed, nil)
	}
	return nil
}

func exitCode(err error) int {
	var cb *downloader.CircuitBreakerError
	switch {
	case errors.Is(err, mirror.ErrInvalidConfig):
		return ExitInvalidArgs
	case errors.Is(err, location.ErrNoReadableLocation), errors.As(err, &cb):
		return ExitSourceNotAccess
	case errors.Is(err, mirror.ErrStorage), errors.Is(err, mirror.ErrLocked):
		return ExitStorageError
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	default:
		return ExitGeneralError
	}
}

func printSummary(w io.Writer, rep *report.Report, elapsed time.Duration) {
	fmt.Fprintf(w, "[offliner] Downloaded %d files (%s) in %s, %d checksums fetched\n",
		rep.Downloaded(), humanize.IBytes(uint64(rep.Bytes())), elapsed.Round(time.Millisecond), rep.ChecksumsFetched())

	failures := rep.Failures()
	if len(failures) == 0 {
		return
	}
	fmt.Fprintf(w, "[offliner] %d failures:\n", len(failures))
	for _, f := range failures {
		fmt.Fprintf(w, "  - %s: %v\n", f.Key, f.Err)
	}
}
