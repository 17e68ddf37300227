package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/telemetry-run/telemetryd/internal/telemetry"
)

// AssociateCommit applies the commit-association state machine
// (internal/telemetry.AssociateCommit) to the run identified by eventID,
// persisting the new git_commit_* columns and, for an authoritative
// transition (changed hash, not a same-hash re-ack), appending a row to the
// commits audit trail (DESIGN.md: commits is history, agent_runs is
// current state).
func (s *Store) AssociateCommit(
	ctx context.Context,
	eventID, hash, author string,
	source telemetry.GitCommitSource,
	timestamp *time.Time,
) (telemetry.CommitAssociation, error) {
	var association telemetry.CommitAssociation

	err := withLockRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		defer func() { _ = tx.Rollback() }()

		run, err := getRunForUpdate(ctx, tx, eventID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()

		association, err = telemetry.AssociateCommit(run, hash, author, source, timestamp, now)
		if err != nil {
			return err
		}

		const updateQuery = `
			UPDATE agent_runs
			SET git_commit_hash = ?, git_commit_source = ?, git_commit_author = ?,
			    git_commit_timestamp = ?, updated_at = ?
			WHERE event_id = ?
		`

		_, err = tx.ExecContext(ctx, updateQuery,
			run.GitCommitHash, string(run.GitCommitSource), run.GitCommitAuthor,
			formatTimePtr(run.GitCommitTimestamp), formatTime(run.UpdatedAt), eventID,
		)
		if err != nil {
			return fmt.Errorf("failed to update run commit metadata: %w", err)
		}

		if association.Changed {
			const auditQuery = `
				INSERT INTO commits (event_id, commit_hash, commit_source, commit_author, commit_timestamp, associated_at)
				VALUES (?, ?, ?, ?, ?, ?)
			`

			_, err = tx.ExecContext(ctx, auditQuery,
				eventID, hash, string(source), author, formatTimePtr(timestamp), formatTime(now),
			)
			if err != nil {
				return fmt.Errorf("failed to append commit audit row: %w", err)
			}
		}

		return tx.Commit()
	})
	if err != nil {
		return telemetry.CommitAssociation{}, err
	}

	return association, nil
}

// getRunForUpdate loads the subset of run state AssociateCommit needs,
// within tx, translating a missing row to ErrRunNotFound.
func getRunForUpdate(ctx context.Context, tx *sql.Tx, eventID string) (*telemetry.Run, error) {
	const query = `
		SELECT git_commit_hash, git_commit_source, git_commit_author, git_commit_timestamp, updated_at
		FROM agent_runs
		WHERE event_id = ?
	`

	var (
		hash, source, author string
		timestamp, updatedAt sql.NullString
	)

	err := tx.QueryRowContext(ctx, query, eventID).Scan(&hash, &source, &author, &timestamp, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}

		return nil, fmt.Errorf("failed to load run for commit association: %w", err)
	}

	gitTimestamp, err := parseNullableTime(timestamp)
	if err != nil {
		return nil, fmt.Errorf("invalid git_commit_timestamp: %w", err)
	}

	var updatedAtTime time.Time

	if updatedAt.Valid {
		updatedAtTime, err = time.Parse(timeLayout, updatedAt.String)
		if err != nil {
			return nil, fmt.Errorf("invalid updated_at: %w", err)
		}
	}

	return &telemetry.Run{
		EventID:            eventID,
		GitCommitHash:      hash,
		GitCommitSource:    telemetry.GitCommitSource(source),
		GitCommitAuthor:    author,
		GitCommitTimestamp: gitTimestamp,
		UpdatedAt:          updatedAtTime,
	}, nil
}
