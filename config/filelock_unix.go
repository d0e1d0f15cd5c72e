//go:build !windows

package config

import (
	"fmt"
	"os"
	"syscall"
)

// Lock takes the exclusive flock, blocking until no other process holds any
// lock on the file.
func (l *FileLock) Lock() error {
	return l.acquire(os.O_RDWR, syscall.LOCK_EX, "exclusive")
}

// RLock takes the shared flock. Any number of readers may hold it at once;
// it blocks only while a writer holds the exclusive lock.
func (l *FileLock) RLock() error {
	return l.acquire(os.O_RDONLY, syscall.LOCK_SH, "shared")
}

func (l *FileLock) acquire(mode int, how int, kind string) error {
	if l.file != nil {
		return fmt.Errorf("lock already held")
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|mode, 0644)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), how); err != nil {
		f.Close()
		return fmt.Errorf("failed to acquire %s lock: %w", kind, err)
	}

	l.file = f
	return nil
}

// Unlock drops the flock and closes the lock file. A no-op when no lock is
// held.
func (l *FileLock) Unlock() error {
	if l.file == nil {
		return nil
	}

	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}

	if err := l.file.Close(); err != nil {
		return fmt.Errorf("failed to close lock file: %w", err)
	}

	l.file = nil
	return nil
}
