//go:build unix

// Package lock provides the cross-process lock guarding the module registry.
package lock

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/artpar/modreg/core/errs"
	"github.com/artpar/modreg/ports"
)

// pollInterval is how often a contended lock is retried.
const pollInterval = 20 * time.Millisecond

// File is an advisory flock(2) lock on a file. Each Lock opens its own
// descriptor, so two File values on the same path exclude each other even
// inside one process.
type File struct {
	path string

	mu sync.Mutex
	f  *os.File
}

// NewFile creates a lock on path. The file is created on first Lock.
func NewFile(path string) *File {
	return &File{path: path}
}

// Lock blocks until the lock is held or ctx is done.
func (l *File) Lock(ctx context.Context) error {
	f, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE, 0o666)
	if err != nil {
		return errs.Wrap(errs.Internal, err, "open lock file %q", l.path)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			break
		}
		if !errors.Is(err, unix.EWOULDBLOCK) && !errors.Is(err, unix.EINTR) {
			f.Close()
			return errs.Wrap(errs.Internal, err, "lock %q", l.path)
		}
		select {
		case <-ctx.Done():
			f.Close()
			return ctx.Err()
		case <-ticker.C:
		}
	}

	l.mu.Lock()
	l.f = f
	l.mu.Unlock()
	return nil
}

// Unlock releases the lock.
func (l *File) Unlock() error {
	l.mu.Lock()
	f := l.f
	l.f = nil
	l.mu.Unlock()

	if f == nil {
		return errs.New(errs.Internal, "unlock of unlocked file %q", l.path)
	}
	defer f.Close()
	if err := unix.Flock(int(f.Fd()), unix.LOCK_UN); err != nil {
		return errs.Wrap(errs.Internal, err, "unlock %q", l.path)
	}
	return nil
}

var _ ports.Locker = (*File)(nil)
