package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// Options configures the progress reporter.
type Options struct {
	// TotalFiles is the number of planned transfers.
	TotalFiles int

	// Workers is the number of parallel workers.
	Workers int

	// Mirrors are the mirror base URLs (for display).
	Mirrors []string

	// Output is where to write progress output.
	// Default: os.Stdout
	Output io.Writer

	// UpdateInterval is how often to update the progress display.
	// Default: 500ms
	UpdateInterval time.Duration
}

// Reporter outputs human-readable progress information.
type Reporter struct {
	opts Options

	mu             sync.Mutex
	completedBytes atomic.Int64
	completed      atomic.Int32
	failed         atomic.Int32
	retries        atomic.Int32
	inProgress     atomic.Int32
	startTime      time.Time
	lastUpdate     time.Time
	lastBytes      int64
	stopCh         chan struct{}
	doneCh         chan struct{}
	started        bool
	stopped        bool
}

// NewReporter creates a new progress reporter.
func NewReporter(opts Options) *Reporter {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.UpdateInterval == 0 {
		opts.UpdateInterval = 500 * time.Millisecond
	}

	return &Reporter{
		opts:   opts,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins outputting progress information.
func (r *Reporter) Start() {
	r.mu.Lock()
	r.started = true
	r.startTime = time.Now()
	r.lastUpdate = r.startTime
	r.mu.Unlock()

	for i, m := range r.opts.Mirrors {
		fmt.Fprintf(r.opts.Output, "[offliner] Mirror %d: %s\n", i+1, m)
	}
	fmt.Fprintf(r.opts.Output, "[offliner] Files: %d | Workers: %d\n", r.opts.TotalFiles, r.opts.Workers)

	go r.updateLoop()
}

// Stop stops the progress reporter and prints the final status.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	started := r.started
	r.mu.Unlock()

	close(r.stopCh)
	if started {
		<-r.doneCh
	}
}

// TransferStarted marks a transfer as in progress.
func (r *Reporter) TransferStarted() {
	r.inProgress.Add(1)
}

// BytesWritten adds to the completed byte count.
func (r *Reporter) BytesWritten(n int64) {
	r.completedBytes.Add(n)
}

// TransferCompleted marks a transfer as completed.
func (r *Reporter) TransferCompleted() {
	r.completed.Add(1)
	r.inProgress.Add(-1)
}

// TransferFailed marks a transfer as failed.
func (r *Reporter) TransferFailed() {
	r.failed.Add(1)
	r.inProgress.Add(-1)
}

// Retried counts a retry of an in-progress transfer.
func (r *Reporter) Retried() {
	r.retries.Add(1)
}

func (r *Reporter) updateLoop() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.opts.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			r.printFinalStatus()
			return
		case <-ticker.C:
			r.printProgress()
		}
	}
}

func (r *Reporter) printProgress() {
	now := time.Now()
	bytes := r.completedBytes.Load()
	completed := int(r.completed.Load())
	failed := int(r.failed.Load())
	inProgress := int(r.inProgress.Load())

	r.mu.Lock()
	elapsed := now.Sub(r.lastUpdate).Seconds()
	if elapsed < 0.1 {
		elapsed = 0.1
	}
	speed := float64(bytes-r.lastBytes) / elapsed
	r.lastUpdate = now
	r.lastBytes = bytes
	r.mu.Unlock()

	var percent float64
	if r.opts.TotalFiles > 0 {
		percent = float64(completed+failed) / float64(r.opts.TotalFiles) * 100
	}

	pending := r.opts.TotalFiles - completed - failed - inProgress
	if pending < 0 {
		pending = 0
	}

	fmt.Fprintf(r.opts.Output, "\r[offliner] Progress: %.1f%% | %s | Speed: %s/s    ",
		percent,
		FormatBytes(bytes),
		FormatBytes(int64(speed)),
	)
	fmt.Fprintf(r.opts.Output, "\n[offliner] Files: %d completed | %d failed | %d in-progress | %d pending | %d retries    \033[A",
		completed,
		failed,
		inProgress,
		pending,
		r.retries.Load(),
	)
}

func (r *Reporter) printFinalStatus() {
	bytes := r.completedBytes.Load()
	duration := time.Since(r.startTime)
	avgSpeed := float64(bytes) / max(duration.Seconds(), 0.001)

	fmt.Fprintf(r.opts.Output, "\r[offliner] Files: %d completed | %d failed | %d retries    \n",
		r.completed.Load(),
		r.failed.Load(),
		r.retries.Load(),
	)
	fmt.Fprintf(r.opts.Output, "[offliner] Total: %s in %s | Average speed: %s/s\n",
		FormatBytes(bytes),
		FormatDuration(duration),
		FormatBytes(int64(avgSpeed)),
	)
}

// FormatBytes formats bytes as a human-readable IEC string.
func FormatBytes(b int64) string {
	if b < 0 {
		b = 0
	}
	return humanize.IBytes(uint64(b))
}

// FormatDuration formats a duration as a human-readable string.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}
