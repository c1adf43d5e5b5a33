// Package lock serialises writers across processes with an advisory file lock.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/flock"
)

// ErrTimeout is returned when the lock could not be taken before the context
// expired.
var ErrTimeout = errors.New("lock: timed out waiting for file lock")

// File is an exclusive lock on a path, usually "<db>.lock".
type File struct {
	fl      *flock.Flock
	retry   time.Duration
	timeout time.Duration
}

// New returns a lock on path. Nothing is created until Lock is called.
func New(path string, retry time.Duration) *File {
	if retry <= 0 {
		retry = 50 * time.Millisecond
	}
	return &File{fl: flock.New(path), retry: retry}
}

// WithTimeout bounds how long Lock waits. Zero waits as long as the caller's
// context allows.
func (f *File) WithTimeout(d time.Duration) *File {
	f.timeout = d
	return f
}

// Path returns the lock file path.
func (f *File) Path() string {
	return f.fl.Path()
}

// Lock blocks until the lock is held or ctx is done.
func (f *File) Lock(ctx context.Context) error {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	ok, err := f.fl.TryLockContext(ctx, f.retry)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %s: %w", ErrTimeout, f.fl.Path(), ctxErr)
		}
		return fmt.Errorf("lock %s: %w", f.fl.Path(), err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrTimeout, f.fl.Path())
	}
	return nil
}

// Unlock releases the lock. It is safe to call when the lock is not held.
func (f *File) Unlock() error {
	if err := f.fl.Unlock(); err != nil {
		return fmt.Errorf("unlock %s: %w", f.fl.Path(), err)
	}
	return nil
}

// Nop satisfies the same interface as File without locking anything.
type Nop struct{}

func (Nop) Lock(context.Context) error { return nil }
func (Nop) Unlock() error              { return nil }
