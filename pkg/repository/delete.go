package repository

import (
	"context"
	"fmt"
)

// Delete removes every file listed in the manifest, then the manifest itself.
// Files that are already gone are skipped.
//
// Returns an error if:
//   - The manifest doesn't exist (check with IsNotExist)
//   - The manifest JSON is malformed
//   - A file cannot be deleted (permission denied, network error)
//   - The context is cancelled
func Delete(ctx context.Context, s *Store) error {
	m, err := s.ReadManifest(ctx)
	if err != nil {
		return err
	}

	for _, e := range m.Entries {
		if err := s.Delete(ctx, e.Path); err != nil {
			return err
		}
	}

	if err := s.bucket.Delete(ctx, ManifestPath); err != nil {
		return fmt.Errorf("repository: delete manifest: %w", err)
	}

	return nil
}
