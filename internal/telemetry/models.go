// Package telemetry provides the domain model for agent-run telemetry: the
// Run/Event entities, status normalization, and the commit-association state
// machine that the store and HTTP layers build on.
package telemetry

import "time"

type (
	// Run is a single agent execution record (data model §3.1).
	//
	// This is a pure domain model, independent of both the SQL row shape and
	// the JSON wire shape; internal/store and internal/api each map their own
	// representation onto/from it.
	Run struct {
		// Identity.
		EventID string // globally unique, client-minted idempotency key
		RunID   string // application-level identifier

		// Classification.
		AgentName     string
		JobType       string
		TriggerType   string
		Product       string
		ProductFamily string
		Platform      string
		Subdomain     string
		Website       string
		WebsiteSection string
		ItemName      string
		Environment   string
		Host          string
		ParentRunID   string
		InsightID     string

		// Lifecycle.
		Status     Status
		StartTime  time.Time
		EndTime    *time.Time
		DurationMs int64
		CreatedAt  time.Time
		UpdatedAt  time.Time

		// Outcome counters.
		ItemsDiscovered int64
		ItemsSucceeded  int64
		ItemsFailed     int64
		ItemsSkipped    int64

		// Narrative.
		InputSummary  string
		OutputSummary string
		SourceRef     string
		TargetRef     string
		ErrorSummary  string
		ErrorDetails  string

		// Git context.
		GitRepo            string
		GitBranch          string
		GitCommitHash      string
		GitRunTag          string
		GitCommitSource    GitCommitSource
		GitCommitAuthor    string
		GitCommitTimestamp *time.Time

		// Export state.
		APIPosted     bool
		APIPostedAt   *time.Time
		APIRetryCount int

		// Extensible payload, stored as opaque JSON text.
		MetricsJSON string
		ContextJSON string
	}

	// Event is a checkpoint within a run (§3.1). Events are never persisted
	// to the relational store; they exist only as BufferFile entries for
	// forensic replay (§9 "Events not persisted").
	Event struct {
		RunID      string
		EventType  string
		Timestamp  time.Time
		PayloadJSON string
	}

	// BufferEntry is a single line in the local append-only spool: a tag
	// identifying which replay path to use, plus the exact request body
	// (§3.1, §4.5).
	BufferEntry struct {
		Tag  BufferEntryTag
		Body []byte
	}

	// BufferEntryTag identifies which HTTP call a buffered entry replays.
	BufferEntryTag string
)

const (
	// BufferEntryRunCreate replays a POST /api/v1/runs.
	BufferEntryRunCreate BufferEntryTag = "run_create"
	// BufferEntryRunUpdate replays a PATCH /api/v1/runs/{event_id}.
	BufferEntryRunUpdate BufferEntryTag = "run_update"
	// BufferEntryCommitAssociate replays a POST .../associate-commit.
	BufferEntryCommitAssociate BufferEntryTag = "commit_associate"
	// BufferEntryEventLog records a logEvent checkpoint. Events are never
	// persisted to the relational store (§3.2, §4.5 "Events not persisted"),
	// so this tag has no HTTP replay: it exists purely so the buffered
	// checkpoint is available for local forensic inspection.
	BufferEntryEventLog BufferEntryTag = "event_log"
)
