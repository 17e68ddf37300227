package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telemetry-run/telemetryd/internal/telemetry"
)

func TestAssociateCommit_FirstAssociationWritesAuditRow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertRun(ctx, newTestRun("evt-commit")))

	ts := time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)

	association, err := s.AssociateCommit(ctx, "evt-commit", "abc1234", "octocat", telemetry.GitCommitSourceCI, &ts)
	require.NoError(t, err)
	assert.True(t, association.Changed)

	run, err := s.GetRun(ctx, "evt-commit")
	require.NoError(t, err)
	assert.Equal(t, "abc1234", run.GitCommitHash)
	assert.Equal(t, telemetry.GitCommitSourceCI, run.GitCommitSource)
	assert.True(t, run.UpdatedAt.After(run.CreatedAt) || run.UpdatedAt.Equal(run.CreatedAt))

	var auditCount int
	require.NoError(t, s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM commits WHERE event_id = ?", "evt-commit",
	).Scan(&auditCount))
	assert.Equal(t, 1, auditCount)
}

func TestAssociateCommit_SameHashIsNoOpAck(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertRun(ctx, newTestRun("evt-reack")))

	_, err := s.AssociateCommit(ctx, "evt-reack", "abc1234", "octocat", telemetry.GitCommitSourceCI, nil)
	require.NoError(t, err)

	before, err := s.GetRun(ctx, "evt-reack")
	require.NoError(t, err)

	association, err := s.AssociateCommit(ctx, "evt-reack", "abc1234", "someone-else", telemetry.GitCommitSourceManual, nil)
	require.NoError(t, err)
	assert.False(t, association.Changed)

	after, err := s.GetRun(ctx, "evt-reack")
	require.NoError(t, err)
	assert.True(t, before.UpdatedAt.Equal(after.UpdatedAt), "same-hash re-ack must not bump updated_at")

	var auditCount int
	require.NoError(t, s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM commits WHERE event_id = ?", "evt-reack",
	).Scan(&auditCount))
	assert.Equal(t, 1, auditCount, "no-op re-ack must not append a second audit row")
}

func TestAssociateCommit_DifferentHashOverwritesAndAppendsAudit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertRun(ctx, newTestRun("evt-overwrite")))

	_, err := s.AssociateCommit(ctx, "evt-overwrite", "abc1234", "octocat", telemetry.GitCommitSourceCI, nil)
	require.NoError(t, err)

	association, err := s.AssociateCommit(ctx, "evt-overwrite", "def5678", "octocat", telemetry.GitCommitSourceCI, nil)
	require.NoError(t, err)
	assert.True(t, association.Changed)

	run, err := s.GetRun(ctx, "evt-overwrite")
	require.NoError(t, err)
	assert.Equal(t, "def5678", run.GitCommitHash)

	var auditCount int
	require.NoError(t, s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM commits WHERE event_id = ?", "evt-overwrite",
	).Scan(&auditCount))
	assert.Equal(t, 2, auditCount)
}

func TestAssociateCommit_RunNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.AssociateCommit(context.Background(), "missing", "abc1234", "", telemetry.GitCommitSourceManual, nil)
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestAssociateCommit_InvalidHashRejectedWithoutTransition(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertRun(ctx, newTestRun("evt-badhash")))

	_, err := s.AssociateCommit(ctx, "evt-badhash", "ab", "", telemetry.GitCommitSourceManual, nil)
	assert.ErrorIs(t, err, telemetry.ErrInvalidCommitHash)

	run, err := s.GetRun(ctx, "evt-badhash")
	require.NoError(t, err)
	assert.Empty(t, run.GitCommitHash)
}

func TestAssociateCommit_MissingSourceRejectedWithoutTransition(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertRun(ctx, newTestRun("evt-nosource")))

	_, err := s.AssociateCommit(ctx, "evt-nosource", "abc1234", "", "", nil)
	assert.ErrorIs(t, err, telemetry.ErrMissingGitCommitSource)

	run, err := s.GetRun(ctx, "evt-nosource")
	require.NoError(t, err)
	assert.Empty(t, run.GitCommitHash)
}
