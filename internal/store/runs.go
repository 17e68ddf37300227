package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/telemetry-run/telemetryd/internal/telemetry"
)

// ErrRunNotFound is returned by GetRun and the commit-association/patch
// paths when event_id names no row.
var ErrRunNotFound = errors.New("run not found")

// ErrDuplicateEventID is returned by InsertRun when event_id already exists;
// callers treat this as the idempotent "duplicate" outcome (§4.3), not a
// failure.
var ErrDuplicateEventID = errors.New("event_id already exists")

const timeLayout = time.RFC3339Nano

// InsertRun persists a new run. Returns ErrDuplicateEventID, not an error,
// when event_id already exists -- the caller (IngestionService) maps that
// to the idempotent 201 "duplicate" response rather than a failure.
func (s *Store) InsertRun(ctx context.Context, r *telemetry.Run) error {
	const query = `
		INSERT INTO agent_runs (
			event_id, run_id, agent_name, job_type, trigger_type, product,
			product_family, platform, subdomain, website, website_section,
			item_name, environment, host, parent_run_id, insight_id,
			status, start_time, end_time, duration_ms, created_at, updated_at,
			items_discovered, items_succeeded, items_failed, items_skipped,
			input_summary, output_summary, source_ref, target_ref,
			error_summary, error_details,
			git_repo, git_branch, git_run_tag,
			metrics_json, context_json
		) VALUES (
			?, ?, ?, ?, ?, ?,
			?, ?, ?, ?, ?,
			?, ?, ?, ?, ?,
			?, ?, ?, ?, ?, ?,
			?, ?, ?, ?,
			?, ?, ?, ?,
			?, ?,
			?, ?, ?,
			?, ?
		)
	`

	err := withLockRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query,
			r.EventID, r.RunID, r.AgentName, r.JobType, r.TriggerType, r.Product,
			r.ProductFamily, r.Platform, r.Subdomain, r.Website, r.WebsiteSection,
			r.ItemName, r.Environment, r.Host, r.ParentRunID, r.InsightID,
			string(r.Status), formatTime(r.StartTime), formatTimePtr(r.EndTime), r.DurationMs,
			formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
			r.ItemsDiscovered, r.ItemsSucceeded, r.ItemsFailed, r.ItemsSkipped,
			r.InputSummary, r.OutputSummary, r.SourceRef, r.TargetRef,
			r.ErrorSummary, r.ErrorDetails,
			r.GitRepo, r.GitBranch, r.GitRunTag,
			r.MetricsJSON, r.ContextJSON,
		)

		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEventID
		}

		return fmt.Errorf("failed to insert run: %w", err)
	}

	return nil
}

// GetRun retrieves a single run by event_id.
func (s *Store) GetRun(ctx context.Context, eventID string) (*telemetry.Run, error) {
	const query = `
		SELECT
			event_id, run_id, agent_name, job_type, trigger_type, product,
			product_family, platform, subdomain, website, website_section,
			item_name, environment, host, parent_run_id, insight_id,
			status, start_time, end_time, duration_ms, created_at, updated_at,
			items_discovered, items_succeeded, items_failed, items_skipped,
			input_summary, output_summary, source_ref, target_ref,
			error_summary, error_details,
			git_repo, git_branch, git_commit_hash, git_run_tag, git_commit_source,
			git_commit_author, git_commit_timestamp,
			api_posted, api_posted_at, api_retry_count,
			metrics_json, context_json
		FROM agent_runs
		WHERE event_id = ?
	`

	row := s.db.QueryRowContext(ctx, query, eventID)

	r, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}

		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return r, nil
}

// RunFilter carries the GET /api/v1/runs query parameters (§4.3).
type RunFilter struct {
	AgentName       string
	Status          telemetry.Status
	JobType         string
	CreatedBefore   *time.Time
	CreatedAfter    *time.Time
	StartTimeFrom   *time.Time
	StartTimeTo     *time.Time
	Limit           int
	Offset          int
}

// QueryRuns returns runs matching filter, ordered by created_at DESC.
func (s *Store) QueryRuns(ctx context.Context, filter RunFilter) ([]*telemetry.Run, error) {
	var (
		where []string
		args  []interface{}
	)

	if filter.AgentName != "" {
		where = append(where, "agent_name = ?")
		args = append(args, filter.AgentName)
	}

	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}

	if filter.JobType != "" {
		where = append(where, "job_type = ?")
		args = append(args, filter.JobType)
	}

	if filter.CreatedBefore != nil {
		where = append(where, "created_at < ?")
		args = append(args, formatTime(*filter.CreatedBefore))
	}

	if filter.CreatedAfter != nil {
		where = append(where, "created_at > ?")
		args = append(args, formatTime(*filter.CreatedAfter))
	}

	if filter.StartTimeFrom != nil {
		where = append(where, "start_time >= ?")
		args = append(args, formatTime(*filter.StartTimeFrom))
	}

	if filter.StartTimeTo != nil {
		where = append(where, "start_time <= ?")
		args = append(args, formatTime(*filter.StartTimeTo))
	}

	query := `
		SELECT
			event_id, run_id, agent_name, job_type, trigger_type, product,
			product_family, platform, subdomain, website, website_section,
			item_name, environment, host, parent_run_id, insight_id,
			status, start_time, end_time, duration_ms, created_at, updated_at,
			items_discovered, items_succeeded, items_failed, items_skipped,
			input_summary, output_summary, source_ref, target_ref,
			error_summary, error_details,
			git_repo, git_branch, git_commit_hash, git_run_tag, git_commit_source,
			git_commit_author, git_commit_timestamp,
			api_posted, api_posted_at, api_retry_count,
			metrics_json, context_json
		FROM agent_runs
	`

	if len(where) > 0 {
		query += "WHERE " + strings.Join(where, " AND ") + "\n"
	}

	query += "ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	defer func() { _ = rows.Close() }()

	runs := make([]*telemetry.Run, 0)

	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		runs = append(runs, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// UpdateRun applies patch to the run identified by eventID (§4.3: PATCH does
// not bump updated_at -- see internal/telemetry.RunPatch doc).
func (s *Store) UpdateRun(ctx context.Context, eventID string, patch *telemetry.RunPatch) error {
	var (
		set  []string
		args []interface{}
	)

	add := func(column string, value interface{}) {
		set = append(set, column+" = ?")
		args = append(args, value)
	}

	if patch.Status != nil {
		add("status", string(*patch.Status))
	}

	if patch.EndTime != nil {
		add("end_time", *patch.EndTime)
	}

	if patch.DurationMs != nil {
		add("duration_ms", *patch.DurationMs)
	}

	if patch.ItemsDiscovered != nil {
		add("items_discovered", *patch.ItemsDiscovered)
	}

	if patch.ItemsSucceeded != nil {
		add("items_succeeded", *patch.ItemsSucceeded)
	}

	if patch.ItemsFailed != nil {
		add("items_failed", *patch.ItemsFailed)
	}

	if patch.ItemsSkipped != nil {
		add("items_skipped", *patch.ItemsSkipped)
	}

	if patch.InputSummary != nil {
		add("input_summary", *patch.InputSummary)
	}

	if patch.OutputSummary != nil {
		add("output_summary", *patch.OutputSummary)
	}

	if patch.SourceRef != nil {
		add("source_ref", *patch.SourceRef)
	}

	if patch.TargetRef != nil {
		add("target_ref", *patch.TargetRef)
	}

	if patch.ErrorSummary != nil {
		add("error_summary", *patch.ErrorSummary)
	}

	if patch.ErrorDetails != nil {
		add("error_details", *patch.ErrorDetails)
	}

	if patch.GitRepo != nil {
		add("git_repo", *patch.GitRepo)
	}

	if patch.GitBranch != nil {
		add("git_branch", *patch.GitBranch)
	}

	if patch.GitRunTag != nil {
		add("git_run_tag", *patch.GitRunTag)
	}

	if patch.MetricsJSON != nil {
		add("metrics_json", *patch.MetricsJSON)
	}

	if patch.ContextJSON != nil {
		add("context_json", *patch.ContextJSON)
	}

	if len(set) == 0 {
		return telemetry.ErrEmptyPatch
	}

	query := "UPDATE agent_runs SET " + strings.Join(set, ", ") + " WHERE event_id = ?"
	args = append(args, eventID)

	return withLockRetry(ctx, func() error {
		result, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to update run: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}

		if rowsAffected == 0 {
			return ErrRunNotFound
		}

		return nil
	})
}

// ListDistinctAgents returns every distinct agent_name in the store, for
// the MetadataCache (§4.4).
func (s *Store) ListDistinctAgents(ctx context.Context) ([]string, error) {
	return s.listDistinctColumn(ctx, "agent_name")
}

// ListDistinctJobTypes returns every distinct job_type in the store, for
// the MetadataCache (§4.4).
func (s *Store) ListDistinctJobTypes(ctx context.Context) ([]string, error) {
	return s.listDistinctColumn(ctx, "job_type")
}

func (s *Store) listDistinctColumn(ctx context.Context, column string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT DISTINCT %s FROM agent_runs ORDER BY %s", column, column))
	if err != nil {
		return nil, fmt.Errorf("failed to list distinct %s: %w", column, err)
	}

	defer func() { _ = rows.Close() }()

	values := make([]string, 0)

	for rows.Next() {
		var v string

		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", column, err)
		}

		values = append(values, v)
	}

	return values, rows.Err()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*telemetry.Run, error) {
	var (
		r                                       telemetry.Run
		status, gitCommitSource                 string
		startTime, createdAt, updatedAt         string
		endTime, gitCommitTimestamp, apiPostedAt sql.NullString
		apiPosted                               int
	)

	err := row.Scan(
		&r.EventID, &r.RunID, &r.AgentName, &r.JobType, &r.TriggerType, &r.Product,
		&r.ProductFamily, &r.Platform, &r.Subdomain, &r.Website, &r.WebsiteSection,
		&r.ItemName, &r.Environment, &r.Host, &r.ParentRunID, &r.InsightID,
		&status, &startTime, &endTime, &r.DurationMs, &createdAt, &updatedAt,
		&r.ItemsDiscovered, &r.ItemsSucceeded, &r.ItemsFailed, &r.ItemsSkipped,
		&r.InputSummary, &r.OutputSummary, &r.SourceRef, &r.TargetRef,
		&r.ErrorSummary, &r.ErrorDetails,
		&r.GitRepo, &r.GitBranch, &r.GitCommitHash, &r.GitRunTag, &gitCommitSource,
		&r.GitCommitAuthor, &gitCommitTimestamp,
		&apiPosted, &apiPostedAt, &r.APIRetryCount,
		&r.MetricsJSON, &r.ContextJSON,
	)
	if err != nil {
		return nil, err
	}

	r.Status = telemetry.Status(status)
	r.GitCommitSource = telemetry.GitCommitSource(gitCommitSource)
	r.APIPosted = apiPosted != 0

	if r.StartTime, err = time.Parse(timeLayout, startTime); err != nil {
		return nil, fmt.Errorf("invalid start_time: %w", err)
	}

	if r.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("invalid created_at: %w", err)
	}

	if r.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("invalid updated_at: %w", err)
	}

	if r.EndTime, err = parseNullableTime(endTime); err != nil {
		return nil, fmt.Errorf("invalid end_time: %w", err)
	}

	if r.GitCommitTimestamp, err = parseNullableTime(gitCommitTimestamp); err != nil {
		return nil, fmt.Errorf("invalid git_commit_timestamp: %w", err)
	}

	if r.APIPostedAt, err = parseNullableTime(apiPostedAt); err != nil {
		return nil, fmt.Errorf("invalid api_posted_at: %w", err)
	}

	return &r, nil
}

func formatTime(t time.Time) string {
	return t.Format(timeLayout)
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}

	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullableTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}

	t, err := time.Parse(timeLayout, v.String)
	if err != nil {
		return nil, err
	}

	return &t, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
