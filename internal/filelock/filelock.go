// Package filelock keeps separate codeloop processes from trampling each
// other's sandbox workspaces and output files.
package filelock

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// FileLock is an advisory, process-wide exclusive lock backed by a lock file.
type FileLock struct {
	flock *flock.Flock
	path  string
}

// New returns an unlocked FileLock for path. The lock file is created on
// first acquisition.
func New(path string) *FileLock {
	return &FileLock{
		flock: flock.New(path),
		path:  path,
	}
}

// Path returns the lock file path.
func (fl *FileLock) Path() string {
	return fl.path
}

// Lock blocks until the lock is acquired.
func (fl *FileLock) Lock() error {
	if err := os.MkdirAll(filepath.Dir(fl.path), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory for %s: %w", fl.path, err)
	}
	for {
		if err := fl.flock.Lock(); err != nil {
			return fmt.Errorf("failed to acquire lock on %s: %w", fl.path, err)
		}
		current, err := fl.holdsCurrentFile()
		if err != nil || current {
			return err
		}
	}
}

// TryLock acquires the lock without blocking. It reports false when
// another holder owns it.
func (fl *FileLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(fl.path), 0755); err != nil {
		return false, fmt.Errorf("failed to create lock directory for %s: %w", fl.path, err)
	}
	for {
		acquired, err := fl.flock.TryLock()
		if err != nil {
			return false, fmt.Errorf("failed to try lock on %s: %w", fl.path, err)
		}
		if !acquired {
			return false, nil
		}
		current, err := fl.holdsCurrentFile()
		if err != nil || current {
			return current, err
		}
	}
}

// holdsCurrentFile checks that the locked file is still the one at path.
// Release removes the file before unlocking, so a waiter can end up holding
// an unlinked file; that lock is dropped and reports false.
func (fl *FileLock) holdsCurrentFile() (bool, error) {
	held, err := fl.flock.Stat()
	if err != nil {
		fl.flock.Unlock()
		return false, fmt.Errorf("failed to stat lock on %s: %w", fl.path, err)
	}
	onDisk, err := os.Stat(fl.path)
	if err == nil && os.SameFile(held, onDisk) {
		return true, nil
	}
	if err := fl.flock.Unlock(); err != nil {
		return false, fmt.Errorf("failed to drop stale lock on %s: %w", fl.path, err)
	}
	return false, nil
}

// Locked reports whether this FileLock currently holds the lock.
func (fl *FileLock) Locked() bool {
	return fl.flock.Locked()
}

// Unlock releases the lock. Unlocking an unheld lock is a no-op.
func (fl *FileLock) Unlock() error {
	if err := fl.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock on %s: %w", fl.path, err)
	}
	return nil
}

// Release deletes the lock file and then unlocks. The file is only removed
// while held; Lock and TryLock ignore a lock on a file removed this way.
func (fl *FileLock) Release() error {
	if !fl.flock.Locked() {
		return nil
	}
	if err := os.Remove(fl.path); err != nil && !os.IsNotExist(err) {
		fl.flock.Unlock()
		return fmt.Errorf("failed to remove lock file %s: %w", fl.path, err)
	}
	return fl.Unlock()
}

// AtomicWrite replaces path with data via a temp file in the same directory
// and a rename, so readers see either the old or the new content.
func AtomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tempFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	// Cleared once the rename succeeds.
	defer func() {
		if tempFile != nil {
			tempFile.Close()
			os.Remove(tempPath)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tempPath, 0644); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file to %s: %w", path, err)
	}

	tempFile = nil
	return nil
}
