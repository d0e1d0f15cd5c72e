package git

import (
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"
)

// DiffStats summarizes what a snapshot changed relative to the one before it.
type DiffStats struct {
	// Files is the number of files touched.
	Files int
	// Added is the number of added lines
	Added int
	// Removed is the number of removed lines
	Removed int
}

func (d *DiffStats) IsEmpty() bool {
	return d.Files == 0 && d.Added == 0 && d.Removed == 0
}

// Diff returns line statistics for the given snapshot against its parent.
// For the first snapshot the parent is the empty initial commit, so the diff
// covers the whole recorded tree.
func (s *SnapshotRepo) Diff(id string) (*DiffStats, error) {
	commit, err := s.repo.CommitObject(plumbing.NewHash(id))
	if err != nil {
		return nil, fmt.Errorf("snapshot %s not found: %w", shortHash(id), err)
	}

	stats, err := commit.Stats()
	if err != nil {
		return nil, fmt.Errorf("failed to compute snapshot diff: %w", err)
	}

	out := &DiffStats{Files: len(stats)}
	for _, fs := range stats {
		out.Added += fs.Addition
		out.Removed += fs.Deletion
	}
	return out, nil
}
