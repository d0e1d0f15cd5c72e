package git

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeProjectFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func readProjectFile(t *testing.T, dir, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	return string(data)
}

func TestSnapshotCreateAndList(t *testing.T) {
	project := t.TempDir()
	writeProjectFile(t, project, "main.go", "package main\n")
	writeProjectFile(t, project, "internal/util.go", "package internal\n")

	repo, err := NewSnapshotRepo(project)
	require.NoError(t, err)

	_, err = repo.Create("before risky command", "git reset --hard detected")
	require.NoError(t, err)

	writeProjectFile(t, project, "main.go", "package main\n\nfunc main() {}\n")
	snap, err := repo.Create("second", "")
	require.NoError(t, err)
	require.Equal(t, 1, snap.FilesChanged)

	snaps, err := repo.List()
	require.NoError(t, err)
	require.Len(t, snaps, 2, "initial empty commit must not be listed")

	// Newest first.
	require.Equal(t, "second", snaps[0].Name)
	require.Equal(t, "before risky command", snaps[1].Name)
	require.Equal(t, "git reset --hard detected", snaps[1].Description)
	require.Equal(t, 2, snaps[1].FilesChanged)
	require.False(t, snaps[0].CreatedAt.IsZero())
}

func TestSnapshotRestore(t *testing.T) {
	project := t.TempDir()
	writeProjectFile(t, project, "config.yaml", "version: 1\n")

	repo, err := NewSnapshotRepo(project)
	require.NoError(t, err)

	snap, err := repo.Create("baseline", "")
	require.NoError(t, err)

	writeProjectFile(t, project, "config.yaml", "version: 2\n")
	writeProjectFile(t, project, "extra.txt", "kept\n")

	require.NoError(t, repo.Restore(snap.ID))

	require.Equal(t, "version: 1\n", readProjectFile(t, project, "config.yaml"))
	// Restore recovers recorded content but does not delete newer files.
	require.Equal(t, "kept\n", readProjectFile(t, project, "extra.txt"))
}

func TestSnapshotDiff(t *testing.T) {
	project := t.TempDir()
	writeProjectFile(t, project, "notes.txt", "one\ntwo\n")

	repo, err := NewSnapshotRepo(project)
	require.NoError(t, err)
	first, err := repo.Create("first", "")
	require.NoError(t, err)

	writeProjectFile(t, project, "notes.txt", "one\nthree\n")
	second, err := repo.Create("second", "")
	require.NoError(t, err)

	stats, err := repo.Diff(first.ID)
	require.NoError(t, err)
	require.Equal(t, &DiffStats{Files: 1, Added: 2, Removed: 0}, stats)

	stats, err = repo.Diff(second.ID)
	require.NoError(t, err)
	require.Equal(t, &DiffStats{Files: 1, Added: 1, Removed: 1}, stats)
	require.False(t, stats.IsEmpty())
}

func TestSnapshotRestoreUnknownID(t *testing.T) {
	project := t.TempDir()
	repo, err := NewSnapshotRepo(project)
	require.NoError(t, err)

	err = repo.Restore("0000000000000000000000000000000000000000")
	require.Error(t, err)
}

func TestSnapshotExclusions(t *testing.T) {
	project := t.TempDir()
	writeProjectFile(t, project, "main.go", "package main\n")
	writeProjectFile(t, project, ".env", "SECRET=1\n")
	writeProjectFile(t, project, "deploy.key", "private\n")
	writeProjectFile(t, project, "node_modules/pkg/index.js", "x\n")
	writeProjectFile(t, project, ".gitignore", "logs/\n")
	writeProjectFile(t, project, "logs/app.log", "line\n")

	repo, err := NewSnapshotRepo(project)
	require.NoError(t, err)
	_, err = repo.Create("first", "")
	require.NoError(t, err)

	shadow := filepath.Join(project, ".tabscope", "snapshots")
	_, err = os.Stat(filepath.Join(shadow, "main.go"))
	require.NoError(t, err)

	for _, name := range []string{".env", "deploy.key", "node_modules", "logs"} {
		_, err := os.Stat(filepath.Join(shadow, name))
		require.True(t, os.IsNotExist(err), "%s must not be snapshotted", name)
	}
}

func TestSnapshotReopenExistingRepo(t *testing.T) {
	project := t.TempDir()
	writeProjectFile(t, project, "a.txt", "a\n")

	repo, err := NewSnapshotRepo(project)
	require.NoError(t, err)
	_, err = repo.Create("first", "")
	require.NoError(t, err)

	// A second open sees the same history instead of re-initializing.
	reopened, err := NewSnapshotRepo(project)
	require.NoError(t, err)
	snaps, err := reopened.List()
	require.NoError(t, err)
	require.Len(t, snaps, 1)
}

func TestExcludedEntries(t *testing.T) {
	tests := []struct {
		name string
		dir  bool
		want bool
	}{
		{"node_modules", true, true},
		{".git", true, true},
		{"src", true, false},
		{".env.local", false, true},
		{"server.pem", false, true},
		{"id_rsa", false, true},
		{"main.go", false, false},
		{"keymap.go", false, false},
	}
	for _, tt := range tests {
		d := fakeDirEntry{name: tt.name, dir: tt.dir}
		if got := excluded(tt.name, d); got != tt.want {
			t.Errorf("excluded(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

type fakeDirEntry struct {
	name string
	dir  bool
}

func (f fakeDirEntry) Name() string               { return f.name }
func (f fakeDirEntry) IsDir() bool                { return f.dir }
func (f fakeDirEntry) Type() os.FileMode          { return 0 }
func (f fakeDirEntry) Info() (os.FileInfo, error) { return nil, nil }
