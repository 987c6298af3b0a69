// Package metrics exposes download engine counters to prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "offliner"

// Result labels.
const (
	ResultSuccess = "success"
	ResultFailed  = "failed"
)

// Collector is a prometheus.Collector for a mirror run.
type Collector struct {
	transfers        *prometheus.CounterVec
	attempts         *prometheus.CounterVec
	retries          prometheus.Counter
	bytes            prometheus.Counter
	checksumFailures prometheus.Counter
	transferDuration prometheus.Histogram
}

// NewCollector returns a new Collector.
func NewCollector() *Collector {
	return &Collector{
		transfers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transfers_total",
				Help:      "Finished transfer requests by kind and result.",
			}, []string{"kind", "result"},
		),
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "attempts_total",
				Help:      "HTTP attempts by mirror base URL.",
			}, []string{"mirror"},
		),
		retries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retries_total",
				Help:      "Attempts repeated on the same mirror after a transient failure.",
			},
		),
		bytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "written_bytes_total",
				Help:      "Bytes committed to the output repository.",
			},
		),
		checksumFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "checksum_mismatches_total",
				Help:      "Primary files rejected because a digest did not match.",
			},
		),
		transferDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "transfer_duration_seconds",
				Help:      "Time from first attempt to terminal state of a transfer.",
				Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
		),
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.transfers.Describe(ch)
	c.attempts.Describe(ch)
	c.retries.Describe(ch)
	c.bytes.Describe(ch)
	c.checksumFailures.Describe(ch)
	c.transferDuration.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.transfers.Collect(ch)
	c.attempts.Collect(ch)
	c.retries.Collect(ch)
	c.bytes.Collect(ch)
	c.checksumFailures.Collect(ch)
	c.transferDuration.Collect(ch)
}

// TransferFinished records a terminal transfer state.
func (c *Collector) TransferFinished(kind, result string, d time.Duration) {
	c.transfers.WithLabelValues(kind, result).Inc()
	c.transferDuration.Observe(d.Seconds())
}

// Attempt records one HTTP attempt against mirror.
func (c *Collector) Attempt(mirror string) {
	c.attempts.WithLabelValues(mirror).Inc()
}

// Retry records a retry on the same mirror.
func (c *Collector) Retry() {
	c.retries.Inc()
}

// BytesWritten adds n committed bytes.
func (c *Collector) BytesWritten(n int64) {
	c.bytes.Add(float64(n))
}

// ChecksumMismatch records a rejected primary file.
func (c *Collector) ChecksumMismatch() {
	c.checksumFailures.Inc()
}

// WriteTextfile registers c in a fresh registry and writes it in the text
// exposition format to path, for node_exporter's textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	reg := prometheus.NewRegistry()
	if err := reg.Register(c); err != nil {
		return err
	}
	return prometheus.WriteToTextfile(path, reg)
}
