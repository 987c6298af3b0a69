package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector(t *testing.T) {
	c := NewCollector()

	c.TransferFinished("primary", ResultSuccess, time.Second)
	c.TransferFinished("primary", ResultSuccess, time.Second)
	c.TransferFinished("checksum", ResultFailed, time.Second)
	c.Attempt("http://one")
	c.Attempt("http://one")
	c.Attempt("http://two")
	c.Retry()
	c.BytesWritten(2048)
	c.ChecksumMismatch()

	if got := testutil.ToFloat64(c.transfers.WithLabelValues("primary", ResultSuccess)); got != 2 {
		t.Errorf("expected 2 primary successes, got %v", got)
	}
	if got := testutil.ToFloat64(c.attempts.WithLabelValues("http://one")); got != 2 {
		t.Errorf("expected 2 attempts on mirror one, got %v", got)
	}
	if got := testutil.ToFloat64(c.bytes); got != 2048 {
		t.Errorf("expected 2048 bytes, got %v", got)
	}

	expected := `
# HELP offliner_retries_total Attempts repeated on the same mirror after a transient failure.
# TYPE offliner_retries_total counter
offliner_retries_total 1
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(expected), "offliner_retries_total"); err != nil {
		t.Error(err)
	}

	if n := testutil.CollectAndCount(c, "offliner_transfers_total"); n != 2 {
		t.Errorf("expected 2 transfer series, got %d", n)
	}
}

func TestWriteTextfile(t *testing.T) {
	c := NewCollector()
	c.BytesWritten(10)

	path := filepath.Join(t.TempDir(), "offliner.prom")
	if err := c.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if !strings.Contains(string(data), "offliner_written_bytes_total 10") {
		t.Errorf("unexpected textfile content:\n%s", data)
	}
}
