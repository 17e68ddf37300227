package telemetry

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for validation failures, wrapped with context via %w so
// callers can still errors.Is against the base condition.
var (
	ErrInvalidStatus         = errors.New("invalid status")
	ErrMissingEventID        = errors.New("event_id is required")
	ErrMissingRunID          = errors.New("run_id is required")
	ErrMissingAgentName      = errors.New("agent_name is required")
	ErrMissingJobType        = errors.New("job_type is required")
	ErrMissingStartTime      = errors.New("start_time is required")
	ErrRunIDTooLong          = errors.New("run_id exceeds 255 characters")
	ErrRunIDPathSeparator    = errors.New("run_id must not contain path separators or a null byte")
	ErrNegativeCounter       = errors.New("counter must be non-negative")
	ErrNegativeDuration      = errors.New("duration_ms must be non-negative")
	ErrInvalidGitCommitSource = errors.New("git_commit_source must be one of: manual, llm, ci")
	ErrInvalidCommitHash     = errors.New("commit_hash must be 7-40 characters")
	ErrEmptyPatch            = errors.New("at least one field must be set")
)

const (
	maxRunIDLength  = 255
	minCommitHashLen = 7
	maxCommitHashLen = 40
)

// ValidateRunID enforces §3.2 invariant 5: length <= 255, no path separators
// or null byte, non-empty after trimming. The store imposes no length bound
// of its own; this is application-level defense in depth.
func ValidateRunID(runID string) error {
	trimmed := strings.TrimSpace(runID)
	if trimmed == "" {
		return ErrMissingRunID
	}

	if len(runID) > maxRunIDLength {
		return fmt.Errorf("%w: got %d characters", ErrRunIDTooLong, len(runID))
	}

	if strings.ContainsAny(runID, "/\\\x00") {
		return ErrRunIDPathSeparator
	}

	return nil
}

// ValidateCounter enforces §3.2 invariant 3: all counters are non-negative.
func ValidateCounter(name string, value int64) error {
	if value < 0 {
		return fmt.Errorf("%w: %s = %d", ErrNegativeCounter, name, value)
	}

	return nil
}

// NormalizeDurationMs implements "duration_ms: null -> 0 on ingress" (§4.3).
// present is false when the input payload omitted/null'd the field.
func NormalizeDurationMs(value int64, present bool) (int64, error) {
	if !present {
		return 0, nil
	}

	if value < 0 {
		return 0, fmt.Errorf("%w: got %d", ErrNegativeDuration, value)
	}

	return value, nil
}

// ValidateCreate validates the required fields of a Run as submitted to
// POST /api/v1/runs (§4.3). Status is expected to already have been passed
// through NormalizeIngressStatus by the caller.
func ValidateCreate(r *Run) error {
	if strings.TrimSpace(r.EventID) == "" {
		return ErrMissingEventID
	}

	if err := ValidateRunID(r.RunID); err != nil {
		return err
	}

	if strings.TrimSpace(r.AgentName) == "" {
		return ErrMissingAgentName
	}

	if strings.TrimSpace(r.JobType) == "" {
		return ErrMissingJobType
	}

	if r.StartTime.IsZero() {
		return ErrMissingStartTime
	}

	if !r.Status.IsCanonical() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, r.Status)
	}

	for _, c := range []struct {
		name  string
		value int64
	}{
		{"items_discovered", r.ItemsDiscovered},
		{"items_succeeded", r.ItemsSucceeded},
		{"items_failed", r.ItemsFailed},
		{"items_skipped", r.ItemsSkipped},
	} {
		if err := ValidateCounter(c.name, c.value); err != nil {
			return err
		}
	}

	if r.DurationMs < 0 {
		return fmt.Errorf("%w: got %d", ErrNegativeDuration, r.DurationMs)
	}

	// git_commit_source is accepted syntactically on POST but never
	// persisted by the store (§4.3); still validate it so a malformed value
	// is rejected rather than silently accepted-and-dropped.
	if r.GitCommitSource != "" && !r.GitCommitSource.IsValid() {
		return ErrInvalidGitCommitSource
	}

	return nil
}

// ValidateCommitHash enforces the associate-commit payload's hash length
// bound (§4.3: "commit_hash (7-40 chars)").
func ValidateCommitHash(hash string) error {
	if len(hash) < minCommitHashLen || len(hash) > maxCommitHashLen {
		return fmt.Errorf("%w: got %d characters", ErrInvalidCommitHash, len(hash))
	}

	return nil
}
