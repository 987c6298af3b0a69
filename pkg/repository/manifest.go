package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// ManifestPath is where the manifest lives relative to the store root.
const ManifestPath = ".offliner/manifest.json"

// Manifest records the files written into a repository.
type Manifest struct {
	RunID       string    `json:"run_id"`
	Entries     []Entry   `json:"entries"`
	CompletedAt time.Time `json:"completed_at"`
}

// Entry describes a single file in the manifest.
type Entry struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
	SHA1 string `json:"sha1"`
}

// Merge adds entries from prev that m does not already contain, keeping the
// result sorted by path.
func (m *Manifest) Merge(prev *Manifest) {
	if prev != nil {
		have := make(map[string]bool, len(m.Entries))
		for _, e := range m.Entries {
			have[e.Path] = true
		}
		for _, e := range prev.Entries {
			if !have[e.Path] {
				m.Entries = append(m.Entries, e)
			}
		}
	}
	sort.Slice(m.Entries, func(i, j int) bool { return m.Entries[i].Path < m.Entries[j].Path })
}

// WriteManifest stores m, replacing any previous manifest.
func (s *Store) WriteManifest(ctx context.Context, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("repository: marshal manifest: %w", err)
	}
	if err := s.bucket.WriteAll(ctx, ManifestPath, data, nil); err != nil {
		return fmt.Errorf("repository: write manifest: %w", err)
	}
	return nil
}

// ReadManifest loads the manifest. The error wraps gcerrors.NotFound when
// the repository has none; check with IsNotExist.
func (s *Store) ReadManifest(ctx context.Context) (*Manifest, error) {
	data, err := s.bucket.ReadAll(ctx, ManifestPath)
	if err != nil {
		return nil, fmt.Errorf("repository: read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("repository: unmarshal manifest: %w", err)
	}
	return &m, nil
}
