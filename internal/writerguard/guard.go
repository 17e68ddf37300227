// Package writerguard enforces the single-writer invariant a SQLite-class
// embedded store depends on: only one process may hold the store open for
// writes at a time. §4.2 SingleWriterGuard.
package writerguard

import (
	"errors"
	"fmt"

	"github.com/gofrs/flock"
)

// ErrAlreadyLocked is returned by Acquire when another process already
// holds the writer lock. The caller should exit with this as a
// distinguishable, non-retryable startup failure (§4.2: "a second process
// attempting to start exits with a distinguishable error").
var ErrAlreadyLocked = errors.New("another process already holds the writer lock")

// Guard holds the exclusive advisory lock for the lifetime of the process.
type Guard struct {
	lock *flock.Flock
}

// Acquire takes an exclusive, non-blocking advisory lock on a file beside
// the store (conventionally the store path with a ".lock" suffix). It
// returns ErrAlreadyLocked, not a generic error, when some other process
// already holds it, so callers can log and exit distinctly from any other
// startup failure.
func Acquire(lockPath string) (*Guard, error) {
	lock := flock.New(lockPath)

	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire writer lock %s: %w", lockPath, err)
	}

	if !locked {
		return nil, ErrAlreadyLocked
	}

	return &Guard{lock: lock}, nil
}

// Release drops the lock. Safe to call once, on every exit path (normal
// shutdown and signal handling) per §4.2. Calling Release more than once is
// a programming error, not guarded against here, same as an ordinary
// Close().
func (g *Guard) Release() error {
	if err := g.lock.Unlock(); err != nil {
		return fmt.Errorf("failed to release writer lock: %w", err)
	}

	return nil
}
