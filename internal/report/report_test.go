package report

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/ligustah/offliner/internal/plan"
)

func TestConcurrentRecording(t *testing.T) {
	r := New()

	const workers = 16
	const perWorker = 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				path := fmt.Sprintf("g/a/%d/a-%d-%d.jar", w, w, i)
				switch i % 3 {
				case 0:
					r.RecordSuccess(&plan.TransferRequest{Path: path}, Written{Path: path, Size: 10})
				case 1:
					r.RecordSuccess(&plan.TransferRequest{Path: path + ".sha1", Kind: plan.Checksum}, Written{})
				default:
					r.RecordTransferFailure(&plan.TransferRequest{Path: path}, errors.New("boom"))
				}
			}
		}(w)
	}
	wg.Wait()

	// i%3 over 0..49: 17 zeros, 17 ones, 16 twos.
	if got, want := r.Downloaded(), workers*17; got != want {
		t.Errorf("Downloaded() = %d, want %d", got, want)
	}
	if got, want := r.ChecksumsFetched(), workers*17; got != want {
		t.Errorf("ChecksumsFetched() = %d, want %d", got, want)
	}
	if got, want := r.Bytes(), int64(workers*17*10); got != want {
		t.Errorf("Bytes() = %d, want %d", got, want)
	}
	if got, want := len(r.Failures()), workers*16; got != want {
		t.Errorf("len(Failures()) = %d, want %d", got, want)
	}
	if got, want := len(r.Written()), workers*17; got != want {
		t.Errorf("len(Written()) = %d, want %d", got, want)
	}
}

func TestChecksumSuccessNotCounted(t *testing.T) {
	r := New()
	r.RecordSuccess(&plan.TransferRequest{Path: "g/a/1/a-1.jar.md5", Kind: plan.Checksum}, Written{})

	if r.Downloaded() != 0 {
		t.Errorf("expected checksum success not to count, got %d", r.Downloaded())
	}
	if len(r.Written()) != 0 {
		t.Error("checksum success recorded as written file")
	}
}

func TestFailuresSortedAndKeyed(t *testing.T) {
	r := New()
	first := errors.New("first")
	second := errors.New("second")

	r.RecordFailure("list.txt:4", nil, first)
	r.RecordTransferFailure(&plan.TransferRequest{Path: "a/b/c.jar"}, first)
	r.RecordFailure("list.txt:4", nil, second)

	var keys []string
	for _, f := range r.Failures() {
		keys = append(keys, f.Key)
	}
	if diff := cmp.Diff([]string{"a/b/c.jar", "list.txt:4"}, keys); diff != "" {
		t.Errorf("failure keys (-want +got):\n%s", diff)
	}
	if got := r.Errors()["list.txt:4"]; got != second {
		t.Errorf("expected latest failure to win, got %v", got)
	}
}

func TestErr(t *testing.T) {
	r := New()
	if err := r.Err(); err != nil {
		t.Fatalf("expected nil error for clean report, got %v", err)
	}

	sentinel := errors.New("not found")
	r.RecordTransferFailure(&plan.TransferRequest{Path: "x/y.jar"}, sentinel)
	r.RecordFailure("pom.xml", nil, errors.New("bad descriptor"))

	err := r.Err()
	var merr *multierror.Error
	if !errors.As(err, &merr) {
		t.Fatalf("expected *multierror.Error, got %T", err)
	}
	if len(merr.Errors) != 2 {
		t.Errorf("expected 2 aggregated errors, got %d", len(merr.Errors))
	}
	if !errors.Is(err, sentinel) {
		t.Error("aggregate does not wrap the recorded error")
	}
}

func TestRunID(t *testing.T) {
	a, b := New(), New()
	if _, err := uuid.Parse(a.RunID()); err != nil {
		t.Errorf("run id %q is not a uuid: %v", a.RunID(), err)
	}
	if a.RunID() == b.RunID() {
		t.Error("expected distinct run ids")
	}
}
