// Package fslock provides cooperative mutual exclusion between processes
// sharing a filesystem.
//
// A lock is a directory at <resource>.lock: os.Mkdir either creates it or
// fails because it exists, and that atomicity is the entire correctness
// foundation. No lock service is involved. A process dying while holding
// the lock leaves the directory behind; acquisition timeouts keep waiters
// bounded, and removing the stale directory is an operator action.
package fslock

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultPollInterval is the delay between acquisition attempts.
const DefaultPollInterval = 100 * time.Millisecond

// ErrLockTimeout reports that a lock could not be acquired within the bound.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// Lock guards a named resource via an atomically created directory.
type Lock struct {
	path         string
	pollInterval time.Duration

	mu    sync.Mutex
	owner string
}

// New returns a lock for the given resource path. The lock directory is
// the resource path suffixed with ".lock".
func New(resource string) *Lock {
	return &Lock{
		path:         resource + ".lock",
		pollInterval: DefaultPollInterval,
	}
}

// WithPollInterval overrides the acquisition poll interval (test hook).
func (l *Lock) WithPollInterval(interval time.Duration) *Lock {
	if interval > 0 {
		l.pollInterval = interval
	}
	return l
}

// Path returns the lock directory path.
func (l *Lock) Path() string {
	return l.path
}

// Owner returns the token minted for the current acquisition, or "" when
// the lock is not held by this process.
func (l *Lock) Owner() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.owner
}

// Acquire polls until the lock directory can be created, the timeout
// elapses, or ctx is cancelled. Timeout failures wrap ErrLockTimeout.
func (l *Lock) Acquire(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for {
		err := os.Mkdir(l.path, 0o755)
		if err == nil {
			l.mu.Lock()
			l.owner = uuid.NewString()
			l.mu.Unlock()
			return nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("create lock directory %s: %w", l.path, err)
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s after %s", ErrLockTimeout, l.path, timeout)
		}

		wait := l.pollInterval
		if remaining := time.Until(deadline); remaining < wait {
			wait = remaining
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Release removes the lock directory. It is idempotent: releasing an
// already released lock is not an error.
func (l *Lock) Release() error {
	l.mu.Lock()
	l.owner = ""
	l.mu.Unlock()

	err := os.Remove(l.path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("remove lock directory %s: %w", l.path, err)
}

// Held reports whether the lock directory currently exists. Intended for
// diagnostics only; the answer is stale the moment it returns.
func (l *Lock) Held() bool {
	info, err := os.Stat(l.path)
	return err == nil && info.IsDir()
}

// WithLock acquires the lock, runs fn, and releases unconditionally, so a
// failing critical section cannot deadlock later callers.
func (l *Lock) WithLock(ctx context.Context, timeout time.Duration, fn func() error) error {
	if err := l.Acquire(ctx, timeout); err != nil {
		return err
	}
	defer func() {
		_ = l.Release()
	}()
	return fn()
}
