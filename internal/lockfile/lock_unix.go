//go:build unix

package lockfile

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// ErrLocked is returned when another process already holds the lock.
var ErrLocked = errors.New("lock already held by another process")

// FlockExclusiveNonBlocking attempts to acquire an exclusive non-blocking
// lock. Returns ErrLocked when another process holds it.
func FlockExclusiveNonBlocking(f *os.File) error {
	err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err == unix.EWOULDBLOCK {
		return ErrLocked
	}
	return err
}

// FlockExclusiveBlocking acquires an exclusive lock, waiting until it is
// available.
func FlockExclusiveBlocking(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_EX)
}

// FlockUnlock releases a lock on the file.
func FlockUnlock(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
