package config

import "os"

// FileLock provides file-based locking for cross-process synchronization.
// It uses a separate lock file rather than locking the data file directly,
// so readers of the data file never observe a partially written state.
type FileLock struct {
	path string
	file *os.File
}

// NewFileLock creates a FileLock guarding the given path. The lock file
// lives next to the data file with a ".lock" suffix.
func NewFileLock(path string) *FileLock {
	return &FileLock{path: path + ".lock"}
}
