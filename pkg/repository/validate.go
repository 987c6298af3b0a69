package repository

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/ligustah/offliner/pkg/artifact"
)

// ValidationResult contains the results of validating a repository against
// its manifest.
type ValidationResult struct {
	Valid            bool     // true if every entry exists with matching size and digest
	Files            int      // number of entries in the manifest
	TotalSize        int64    // sum of entry sizes from the manifest
	Missing          int      // entries that don't exist
	SizeMismatches   int      // entries with the wrong size
	DigestMismatches int      // entries whose content does not hash to the recorded sha1
	Errors           []string // detailed error messages
}

// Validate re-reads every file listed in the manifest.
//
// Returns an error if:
//   - The manifest doesn't exist (check with IsNotExist)
//   - The manifest JSON is malformed
//   - A file cannot be read for a reason other than not existing
//   - The context is cancelled
//
// Missing files and mismatches are NOT returned as errors; they are reported
// in the ValidationResult with Valid=false.
func Validate(ctx context.Context, s *Store) (*ValidationResult, error) {
	m, err := s.ReadManifest(ctx)
	if err != nil {
		return nil, err
	}

	result := &ValidationResult{
		Valid:  true,
		Files:  len(m.Entries),
		Errors: make([]string, 0),
	}

	for _, e := range m.Entries {
		result.TotalSize += e.Size

		attrs, err := s.bucket.Attributes(ctx, e.Path)
		if err != nil {
			if isNotExist(err) {
				result.Valid = false
				result.Missing++
				result.Errors = append(result.Errors, fmt.Sprintf("missing: %s", e.Path))
				continue
			}
			return nil, fmt.Errorf("repository: check %s: %w", e.Path, err)
		}

		if attrs.Size != e.Size {
			result.Valid = false
			result.SizeMismatches++
			result.Errors = append(result.Errors,
				fmt.Sprintf("size mismatch: %s: expected %d, got %d", e.Path, e.Size, attrs.Size))
			continue
		}

		if e.SHA1 == "" {
			continue
		}
		actual, err := s.digest(ctx, e.Path, artifact.SHA1)
		if err != nil {
			return nil, err
		}
		if actual != e.SHA1 {
			result.Valid = false
			result.DigestMismatches++
			result.Errors = append(result.Errors,
				fmt.Sprintf("sha1 mismatch: %s: expected %s, got %s", e.Path, e.SHA1, actual))
		}
	}

	return result, nil
}

func (s *Store) digest(ctx context.Context, path string, alg artifact.Algorithm) (string, error) {
	r, err := s.bucket.NewReader(ctx, path, nil)
	if err != nil {
		return "", fmt.Errorf("repository: open %s: %w", path, err)
	}
	defer r.Close()

	h := alg.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("repository: read %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
