package telemetryclient

import "time"

// createRunPayload mirrors internal/api's createRunRequest wire shape: the
// client and server agree on field names independently (the client has no
// import on the api package), so this struct is kept in lockstep with it by
// hand.
type createRunPayload struct {
	EventID       string `json:"event_id"`
	RunID         string `json:"run_id"`
	AgentName     string `json:"agent_name"`
	JobType       string `json:"job_type"`
	TriggerType   string `json:"trigger_type"`
	Product       string `json:"product"`
	ProductFamily string `json:"product_family"`
	Platform      string `json:"platform"`
	Subdomain     string `json:"subdomain"`
	Website       string `json:"website"`
	WebsiteSection string `json:"website_section"`
	ItemName      string `json:"item_name"`
	Environment   string `json:"environment"`
	Host          string `json:"host"`
	ParentRunID   string `json:"parent_run_id"`
	InsightID     string `json:"insight_id"`

	Status    string    `json:"status"`
	StartTime time.Time `json:"start_time"`

	GitRepo   string `json:"git_repo"`
	GitBranch string `json:"git_branch"`
	GitRunTag string `json:"git_run_tag"`

	ContextJSON string `json:"context_json"`
}

// patchRunPayload mirrors internal/api's patchRunRequest wire shape.
type patchRunPayload struct {
	Status          *string    `json:"status"`
	EndTime         *time.Time `json:"end_time"`
	DurationMs      *int64     `json:"duration_ms"`
	ItemsDiscovered *int64     `json:"items_discovered"`
	ItemsSucceeded  *int64     `json:"items_succeeded"`
	ItemsFailed     *int64     `json:"items_failed"`
	ItemsSkipped    *int64     `json:"items_skipped"`
	ErrorSummary    *string    `json:"error_summary"`
	ErrorDetails    *string    `json:"error_details"`
	OutputSummary   *string    `json:"output_summary"`
}

// associateCommitPayload mirrors internal/api's associateCommitRequest wire
// shape.
type associateCommitPayload struct {
	CommitHash      string     `json:"commit_hash"`
	CommitSource    string     `json:"commit_source"`
	CommitAuthor    string     `json:"commit_author"`
	CommitTimestamp *time.Time `json:"commit_timestamp"`
}
