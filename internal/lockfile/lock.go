// Package lockfile serializes cross-process work with advisory file locks.
// The response-index rebuild uses it so two processes never write the disk
// cache at the same time.
package lockfile

import (
	"fmt"
	"os"
	"path/filepath"
)

// Lock is a held advisory lock backed by a file.
type Lock struct {
	f *os.File
}

// Acquire takes an exclusive blocking lock on path, creating the file and
// its directory as needed.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := FlockExclusiveBlocking(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	return &Lock{f: f}, nil
}

// Release unlocks and closes the lock file.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	unlockErr := FlockUnlock(l.f)
	closeErr := l.f.Close()
	l.f = nil
	if unlockErr != nil {
		return unlockErr
	}
	return closeErr
}
