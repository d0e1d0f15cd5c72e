package git

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"github.com/go-git/go-git/v5/plumbing/object"

	"tabscope/log"
)

const (
	snapshotDirName   = ".tabscope"
	snapshotRepoName  = "snapshots"
	initialCommitName = "Initial snapshot"
)

// excludedDirs are directory names never copied into a snapshot. They are
// either regenerable build output or other tools' metadata.
var excludedDirs = map[string]bool{
	".git":          true,
	".tabscope":     true,
	"node_modules":  true,
	"target":        true,
	"dist":          true,
	"build":         true,
	".next":         true,
	"__pycache__":   true,
	".venv":         true,
	"venv":          true,
}

// excludedFilePrefixes and excludedFileSuffixes keep secrets out of the
// snapshot history. A snapshot repo lives on disk unencrypted, so credential
// material must never enter it.
var (
	excludedFilePrefixes = []string{".env", "id_rsa", "id_ed25519"}
	excludedFileSuffixes = []string{".key", ".pem", ".p12", ".pfx"}
)

// Snapshot describes one recorded project state.
type Snapshot struct {
	// ID is the full commit hash in the shadow repository.
	ID string
	// Name is the short label the snapshot was created with.
	Name string
	// Description is the optional longer text, e.g. what triggered it.
	Description string
	// CreatedAt is the commit timestamp.
	CreatedAt time.Time
	// FilesChanged is the number of files that differ from the previous
	// snapshot.
	FilesChanged int
}

// SnapshotRepo records point-in-time copies of a project directory in a
// shadow git repository under <project>/.tabscope/snapshots. The project's
// own git repository, if any, is never touched: the shadow repo has its own
// history and its working tree is a filtered copy of the project.
type SnapshotRepo struct {
	projectPath string
	repoPath    string
	repo        *gogit.Repository
}

// NewSnapshotRepo opens the shadow repository for the given project,
// initializing it with an empty root commit on first use.
func NewSnapshotRepo(projectPath string) (*SnapshotRepo, error) {
	abs, err := filepath.Abs(projectPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to stat project path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("project path %s is not a directory", abs)
	}

	s := &SnapshotRepo{
		projectPath: abs,
		repoPath:    filepath.Join(abs, snapshotDirName, snapshotRepoName),
	}

	repo, err := gogit.PlainOpen(s.repoPath)
	if err == gogit.ErrRepositoryNotExists {
		repo, err = s.initialize()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot repository: %w", err)
	}
	s.repo = repo
	return s, nil
}

// ProjectPath returns the project directory this repo snapshots.
func (s *SnapshotRepo) ProjectPath() string {
	return s.projectPath
}

func (s *SnapshotRepo) initialize() (*gogit.Repository, error) {
	if err := os.MkdirAll(s.repoPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	repo, err := gogit.PlainInit(s.repoPath, false)
	if err != nil {
		return nil, fmt.Errorf("failed to init snapshot repository: %w", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot worktree: %w", err)
	}

	// An empty root commit gives the first real snapshot a parent to diff
	// against.
	_, err = wt.Commit(initialCommitName, &gogit.CommitOptions{
		AllowEmptyCommits: true,
		Author:            s.signature(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create initial commit: %w", err)
	}

	log.InfoLog.Printf("initialized snapshot repository at %s", s.repoPath)
	return repo, nil
}

func (s *SnapshotRepo) signature() *object.Signature {
	return &object.Signature{
		Name:  "tabscope",
		Email: "tabscope@localhost",
		When:  time.Now(),
	}
}

// Create records the current project state as a new snapshot and returns it.
// name is the short label; description may be empty.
func (s *SnapshotRepo) Create(name, description string) (*Snapshot, error) {
	wt, err := s.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot worktree: %w", err)
	}

	if err := s.syncWorktree(); err != nil {
		return nil, fmt.Errorf("failed to copy project into snapshot: %w", err)
	}

	if err := wt.AddWithOptions(&gogit.AddOptions{All: true}); err != nil {
		return nil, fmt.Errorf("failed to stage snapshot files: %w", err)
	}

	message := name
	if description != "" {
		message = name + "\n\n" + description
	}

	// Empty commits are allowed so a snapshot is recorded even when nothing
	// changed since the previous one; the user asked for a restore point.
	hash, err := wt.Commit(message, &gogit.CommitOptions{
		AllowEmptyCommits: true,
		Author:            s.signature(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to commit snapshot: %w", err)
	}

	commit, err := s.repo.CommitObject(hash)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot commit: %w", err)
	}

	snap := snapshotFromCommit(commit)
	log.InfoLog.Printf("created snapshot %s (%q, %d files changed)", shortHash(snap.ID), snap.Name, snap.FilesChanged)
	return snap, nil
}

// List returns all snapshots, newest first. The internal root commit is not
// included.
func (s *SnapshotRepo) List() ([]Snapshot, error) {
	head, err := s.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot head: %w", err)
	}

	iter, err := s.repo.Log(&gogit.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot log: %w", err)
	}
	defer iter.Close()

	var out []Snapshot
	err = iter.ForEach(func(c *object.Commit) error {
		if c.NumParents() == 0 && strings.HasPrefix(c.Message, initialCommitName) {
			return nil
		}
		out = append(out, *snapshotFromCommit(c))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk snapshot log: %w", err)
	}
	return out, nil
}

// Restore writes the state recorded in the given snapshot back into the
// project directory. Files that exist in the project but not in the snapshot
// are left in place; a restore recovers content, it does not delete work.
func (s *SnapshotRepo) Restore(id string) error {
	hash := plumbing.NewHash(id)
	if _, err := s.repo.CommitObject(hash); err != nil {
		return fmt.Errorf("snapshot %s not found: %w", shortHash(id), err)
	}

	wt, err := s.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get snapshot worktree: %w", err)
	}

	if err := wt.Checkout(&gogit.CheckoutOptions{Hash: hash, Force: true}); err != nil {
		return fmt.Errorf("failed to check out snapshot %s: %w", shortHash(id), err)
	}

	// Put the shadow worktree back on its branch afterwards regardless of
	// how the copy goes.
	defer func() {
		head, err := s.repo.Reference(plumbing.Master, true)
		if err == nil {
			_ = wt.Checkout(&gogit.CheckoutOptions{Hash: head.Hash(), Force: true})
			_ = s.repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.Master))
		}
	}()

	if err := copyTree(s.repoPath, s.projectPath, func(rel string, d os.DirEntry) bool {
		return d.Name() == ".git"
	}); err != nil {
		return fmt.Errorf("failed to copy snapshot back into project: %w", err)
	}

	log.InfoLog.Printf("restored snapshot %s into %s", shortHash(id), s.projectPath)
	return nil
}

// syncWorktree mirrors the filtered project tree into the shadow worktree.
// Existing worktree contents are removed first so deletions in the project
// show up as deletions in the snapshot.
func (s *SnapshotRepo) syncWorktree() error {
	entries, err := os.ReadDir(s.repoPath)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Name() == ".git" {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.repoPath, e.Name())); err != nil {
			return err
		}
	}

	matcher := s.ignoreMatcher()
	skip := func(rel string, d os.DirEntry) bool {
		if excluded(rel, d) {
			return true
		}
		if matcher != nil && matcher.Match(strings.Split(rel, string(filepath.Separator)), d.IsDir()) {
			return true
		}
		return false
	}
	return copyTree(s.projectPath, s.repoPath, skip)
}

// ignoreMatcher honors the project's own .gitignore files, so generated
// content the project does not track stays out of snapshots too. Returns nil
// when no patterns can be read.
func (s *SnapshotRepo) ignoreMatcher() gitignore.Matcher {
	ps, err := gitignore.ReadPatterns(osfs.New(s.projectPath), nil)
	if err != nil {
		log.WarningLog.Printf("failed to read gitignore patterns in %s: %v", s.projectPath, err)
		return nil
	}
	if len(ps) == 0 {
		return nil
	}
	return gitignore.NewMatcher(ps)
}

// excluded reports whether a project entry must be kept out of snapshots.
func excluded(rel string, d os.DirEntry) bool {
	name := d.Name()
	if d.IsDir() {
		return excludedDirs[name]
	}
	for _, p := range excludedFilePrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	for _, suf := range excludedFileSuffixes {
		if strings.HasSuffix(name, suf) {
			return true
		}
	}
	return false
}

// copyTree copies src into dst, skipping entries for which skip returns true.
// Symlinks are skipped entirely; a snapshot stores content, not link targets
// that may point outside the project.
func copyTree(src, dst string, skip func(rel string, d os.DirEntry) bool) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == src {
			return nil
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if skip(rel, d) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&os.ModeSymlink != 0 {
			return nil
		}

		target := filepath.Join(dst, rel)
		if d.IsDir() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			return os.MkdirAll(target, info.Mode().Perm())
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

func snapshotFromCommit(c *object.Commit) *Snapshot {
	name := c.Message
	description := ""
	if idx := strings.Index(c.Message, "\n\n"); idx >= 0 {
		name = c.Message[:idx]
		description = strings.TrimSpace(c.Message[idx+2:])
	}
	name = strings.TrimSpace(name)

	filesChanged := 0
	if stats, err := c.Stats(); err == nil {
		filesChanged = len(stats)
	}

	return &Snapshot{
		ID:           c.Hash.String(),
		Name:         name,
		Description:  description,
		CreatedAt:    c.Author.When,
		FilesChanged: filesChanged,
	}
}

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}
