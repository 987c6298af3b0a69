package repository

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/gcerrors"

	"github.com/ligustah/offliner/pkg/artifact"
)

// Store is an output repository backed by a blob bucket.
type Store struct {
	bucket *blob.Bucket
	dir    string
	owned  bool
}

// Open opens root as an output repository. A root containing "://" is opened
// as a bucket URL; anything else is a local directory, created if needed.
func Open(ctx context.Context, root string) (*Store, error) {
	if strings.Contains(root, "://") {
		bucket, err := blob.OpenBucket(ctx, root)
		if err != nil {
			return nil, fmt.Errorf("repository: open bucket: %w", err)
		}
		return &Store{bucket: bucket, owned: true}, nil
	}

	dir, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("repository: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("repository: create output directory: %w", err)
	}

	bucket, err := fileblob.OpenBucket(dir, &fileblob.Options{
		CreateDir: true,
		NoTempDir: true,
		Metadata:  fileblob.MetadataDontWrite,
	})
	if err != nil {
		return nil, fmt.Errorf("repository: open directory: %w", err)
	}
	return &Store{bucket: bucket, dir: dir, owned: true}, nil
}

// NewStore wraps an existing bucket. Close does not close the bucket.
func NewStore(bucket *blob.Bucket) *Store {
	return &Store{bucket: bucket}
}

// Dir returns the local directory backing the store, or "" for remote buckets.
func (s *Store) Dir() string {
	return s.dir
}

// Bucket returns the underlying bucket.
func (s *Store) Bucket() *blob.Bucket {
	return s.bucket
}

// Close releases the bucket if the store opened it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.bucket.Close()
}

// Exists reports whether path exists.
func (s *Store) Exists(ctx context.Context, path string) (bool, error) {
	return s.bucket.Exists(ctx, path)
}

// ReadAll reads the whole file at path.
func (s *Store) ReadAll(ctx context.Context, path string) ([]byte, error) {
	return s.bucket.ReadAll(ctx, path)
}

// Delete removes path. Deleting a missing file is not an error.
func (s *Store) Delete(ctx context.Context, path string) error {
	if err := s.bucket.Delete(ctx, path); err != nil && !isNotExist(err) {
		return fmt.Errorf("repository: delete %s: %w", path, err)
	}
	return nil
}

// Digests are the checksums of a committed file.
type Digests struct {
	Size int64
	MD5  string
	SHA1 string
}

// Get returns the lowercase hex digest for alg.
func (d Digests) Get(alg artifact.Algorithm) string {
	switch alg {
	case artifact.MD5:
		return d.MD5
	case artifact.SHA1:
		return d.SHA1
	default:
		return ""
	}
}

// Writer writes a single repository file.
type Writer struct {
	store *Store
	path  string
	// existed records a file already present at path before this writer.
	existed bool

	mu     sync.Mutex
	writer *blob.Writer
	cancel context.CancelFunc
	md5    hash.Hash
	sha1   hash.Hash
	size   int64
	closed bool
}

// NewWriter starts writing path. Cancelling ctx aborts the write.
func (s *Store) NewWriter(ctx context.Context, path string) (*Writer, error) {
	existed, err := s.bucket.Exists(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("repository: stat %s: %w", path, err)
	}
	wctx, cancel := context.WithCancel(ctx)
	w, err := s.bucket.NewWriter(wctx, path, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("repository: create writer for %s: %w", path, err)
	}
	return &Writer{
		store:   s,
		path:    path,
		existed: existed,
		writer:  w,
		cancel:  cancel,
		md5:     artifact.MD5.New(),
		sha1:    artifact.SHA1.New(),
	}, nil
}

// Write writes p and feeds the digests.
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, errors.New("repository: writer is closed")
	}

	n, err := w.writer.Write(p)
	w.md5.Write(p[:n])
	w.sha1.Write(p[:n])
	w.size += int64(n)
	return n, err
}

// Close commits the file and returns its digests.
func (w *Writer) Close() (Digests, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return Digests{}, errors.New("repository: writer is already closed")
	}
	w.closed = true
	defer w.cancel()

	if err := w.writer.Close(); err != nil {
		return Digests{}, fmt.Errorf("repository: commit %s: %w", w.path, err)
	}

	return Digests{
		Size: w.size,
		MD5:  hex.EncodeToString(w.md5.Sum(nil)),
		SHA1: hex.EncodeToString(w.sha1.Sum(nil)),
	}, nil
}

// Abort cancels the write. A file that was already at the path is left in
// place; partial data from this writer is removed. Safe to call more than
// once or after Close; after a successful Close it does nothing.
func (w *Writer) Abort() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	w.closed = true

	w.cancel()
	w.writer.Close()

	// Some providers commit buffered data even when cancelled.
	if !w.existed {
		w.store.bucket.Delete(context.Background(), w.path)
	}
}

func isNotExist(err error) bool {
	return gcerrors.Code(err) == gcerrors.NotFound
}

// IsNotExist reports whether err means a file does not exist in the store.
func IsNotExist(err error) bool {
	return isNotExist(err)
}
