// Package lockfile prevents simultaneous ansuz instances from sharing a
// state directory, using an advisory flock on a lock file.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"syscall"
)

// ErrHeld is returned when another process holds the lock.
var ErrHeld = errors.New("lockfile: held by another process")

// Lock is an acquired exclusive lock. The flock is released when the
// process exits, so a crashed instance never leaves a stale lock.
type Lock struct {
	f *os.File
}

// TryAcquire takes an exclusive non-blocking lock on path, creating the
// file if needed. ErrHeld is returned when another instance has it.
func TryAcquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("lockfile: open %s: %w", path, err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return nil, ErrHeld
		}
		return nil, fmt.Errorf("lockfile: flock %s: %w", path, err)
	}
	return &Lock{f: f}, nil
}

// Release unlocks and closes the lock file.
func (l *Lock) Release() error {
	if err := syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN); err != nil {
		l.f.Close()
		return fmt.Errorf("lockfile: unlock: %w", err)
	}
	return l.f.Close()
}
