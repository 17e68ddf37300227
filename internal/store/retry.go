package store

import (
	"context"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

const lockRetryBaseDelay = 100 * time.Millisecond

// ErrStoreLocked wraps a write failure that exhausted the lock-retry policy
// (§4.1: "Beyond that, the operation surfaces a transient error to the
// caller; the writer lock is not released").
type ErrStoreLocked struct {
	Cause error
}

func (e *ErrStoreLocked) Error() string {
	return "store is locked: " + e.Cause.Error()
}

func (e *ErrStoreLocked) Unwrap() error {
	return e.Cause
}

// withLockRetry retries fn on "database is locked" up to three times, with
// delays of 100ms, 200ms, 400ms (four attempts in all), before surfacing a
// transient error.
// Only lock contention is retried; any other error returns immediately.
func withLockRetry(ctx context.Context, fn func() error) error {
	backoff := retry.WithMaxRetries(3, retry.NewExponential(lockRetryBaseDelay))

	var lastErr error

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err

		if isDatabaseLocked(err) {
			return retry.RetryableError(err)
		}

		return err
	})
	if err != nil {
		if isDatabaseLocked(lastErr) {
			return &ErrStoreLocked{Cause: lastErr}
		}

		return err
	}

	return nil
}

// isDatabaseLocked reports whether err originates from SQLite reporting
// SQLITE_BUSY/SQLITE_LOCKED, the only condition this retry policy covers.
func isDatabaseLocked(err error) bool {
	if err == nil {
		return false
	}

	msg := err.Error()

	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked")
}
