// Package api provides the HTTP surface of the telemetry ingestion service.
package api

import (
	"time"

	"github.com/telemetry-run/telemetryd/internal/telemetry"
)

// runWire is the JSON wire shape for a Run, matching the field names the
// data model names in §3.1. Pointer fields distinguish "absent" from "zero
// value" on both ingress (RunPatch) and egress (omitted timestamps).
type runWire struct {
	EventID       string `json:"event_id"`
	RunID         string `json:"run_id"`
	AgentName     string `json:"agent_name"`
	JobType       string `json:"job_type"`
	TriggerType   string `json:"trigger_type,omitempty"`
	Product       string `json:"product,omitempty"`
	ProductFamily string `json:"product_family,omitempty"`
	Platform      string `json:"platform,omitempty"`
	Subdomain     string `json:"subdomain,omitempty"`
	Website       string `json:"website,omitempty"`
	WebsiteSection string `json:"website_section,omitempty"`
	ItemName      string `json:"item_name,omitempty"`
	Environment   string `json:"environment,omitempty"`
	Host          string `json:"host,omitempty"`
	ParentRunID   string `json:"parent_run_id,omitempty"`
	InsightID     string `json:"insight_id,omitempty"`

	Status     string     `json:"status"`
	StartTime  time.Time  `json:"start_time"`
	EndTime    *time.Time `json:"end_time,omitempty"`
	DurationMs int64      `json:"duration_ms"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`

	ItemsDiscovered int64 `json:"items_discovered"`
	ItemsSucceeded  int64 `json:"items_succeeded"`
	ItemsFailed     int64 `json:"items_failed"`
	ItemsSkipped    int64 `json:"items_skipped"`

	InputSummary  string `json:"input_summary,omitempty"`
	OutputSummary string `json:"output_summary,omitempty"`
	SourceRef     string `json:"source_ref,omitempty"`
	TargetRef     string `json:"target_ref,omitempty"`
	ErrorSummary  string `json:"error_summary,omitempty"`
	ErrorDetails  string `json:"error_details,omitempty"`

	GitRepo            string     `json:"git_repo,omitempty"`
	GitBranch          string     `json:"git_branch,omitempty"`
	GitCommitHash      string     `json:"git_commit_hash,omitempty"`
	GitRunTag          string     `json:"git_run_tag,omitempty"`
	GitCommitSource    string     `json:"git_commit_source,omitempty"`
	GitCommitAuthor    string     `json:"git_commit_author,omitempty"`
	GitCommitTimestamp *time.Time `json:"git_commit_timestamp,omitempty"`

	APIPosted     bool       `json:"api_posted"`
	APIPostedAt   *time.Time `json:"api_posted_at,omitempty"`
	APIRetryCount int        `json:"api_retry_count"`

	MetricsJSON string `json:"metrics_json,omitempty"`
	ContextJSON string `json:"context_json,omitempty"`
}

// toRunWire converts a domain Run to its wire representation for GET/query
// responses.
func toRunWire(r *telemetry.Run) runWire {
	return runWire{
		EventID: r.EventID, RunID: r.RunID, AgentName: r.AgentName, JobType: r.JobType,
		TriggerType: r.TriggerType, Product: r.Product, ProductFamily: r.ProductFamily,
		Platform: r.Platform, Subdomain: r.Subdomain, Website: r.Website,
		WebsiteSection: r.WebsiteSection, ItemName: r.ItemName, Environment: r.Environment,
		Host: r.Host, ParentRunID: r.ParentRunID, InsightID: r.InsightID,

		Status: string(r.Status), StartTime: r.StartTime, EndTime: r.EndTime,
		DurationMs: r.DurationMs, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,

		ItemsDiscovered: r.ItemsDiscovered, ItemsSucceeded: r.ItemsSucceeded,
		ItemsFailed: r.ItemsFailed, ItemsSkipped: r.ItemsSkipped,

		InputSummary: r.InputSummary, OutputSummary: r.OutputSummary,
		SourceRef: r.SourceRef, TargetRef: r.TargetRef,
		ErrorSummary: r.ErrorSummary, ErrorDetails: r.ErrorDetails,

		GitRepo: r.GitRepo, GitBranch: r.GitBranch, GitCommitHash: r.GitCommitHash,
		GitRunTag: r.GitRunTag, GitCommitSource: string(r.GitCommitSource),
		GitCommitAuthor: r.GitCommitAuthor, GitCommitTimestamp: r.GitCommitTimestamp,

		APIPosted: r.APIPosted, APIPostedAt: r.APIPostedAt, APIRetryCount: r.APIRetryCount,

		MetricsJSON: r.MetricsJSON, ContextJSON: r.ContextJSON,
	}
}

// createRunRequest is the POST /api/v1/runs and per-item batch payload shape.
// git_commit_source/author/timestamp are accepted here but deliberately
// never copied into the domain Run (§4.3 POST-accept-but-drop contract).
type createRunRequest struct {
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

	Status    string     `json:"status"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`

	DurationMs *int64 `json:"duration_ms"`

	ItemsDiscovered int64 `json:"items_discovered"`
	ItemsSucceeded  int64 `json:"items_succeeded"`
	ItemsFailed     int64 `json:"items_failed"`
	ItemsSkipped    int64 `json:"items_skipped"`

	InputSummary  string `json:"input_summary"`
	OutputSummary string `json:"output_summary"`
	SourceRef     string `json:"source_ref"`
	TargetRef     string `json:"target_ref"`
	ErrorSummary  string `json:"error_summary"`
	ErrorDetails  string `json:"error_details"`

	GitRepo   string `json:"git_repo"`
	GitBranch string `json:"git_branch"`
	GitRunTag string `json:"git_run_tag"`

	// Accepted syntactically, never persisted (§4.3).
	GitCommitSource    string     `json:"git_commit_source"`
	GitCommitAuthor    string     `json:"git_commit_author"`
	GitCommitTimestamp *time.Time `json:"git_commit_timestamp"`

	MetricsJSON string `json:"metrics_json"`
	ContextJSON string `json:"context_json"`
}

// toDomain validates and converts a createRunRequest into a telemetry.Run,
// normalizing status via telemetry.NormalizeIngressStatus (aliases accepted)
// and running telemetry.ValidateCreate. now is used for created_at/updated_at.
func (req *createRunRequest) toDomain(now time.Time) (*telemetry.Run, error) {
	status, err := telemetry.NormalizeIngressStatus(req.Status)
	if err != nil {
		return nil, err
	}

	durationPresent := req.DurationMs != nil

	var rawDuration int64
	if durationPresent {
		rawDuration = *req.DurationMs
	}

	duration, err := telemetry.NormalizeDurationMs(rawDuration, durationPresent)
	if err != nil {
		return nil, err
	}

	if req.GitCommitSource != "" && !telemetry.GitCommitSource(req.GitCommitSource).IsValid() {
		return nil, telemetry.ErrInvalidGitCommitSource
	}

	r := &telemetry.Run{
		EventID: req.EventID, RunID: req.RunID, AgentName: req.AgentName, JobType: req.JobType,
		TriggerType: req.TriggerType, Product: req.Product, ProductFamily: req.ProductFamily,
		Platform: req.Platform, Subdomain: req.Subdomain, Website: req.Website,
		WebsiteSection: req.WebsiteSection, ItemName: req.ItemName, Environment: req.Environment,
		Host: req.Host, ParentRunID: req.ParentRunID, InsightID: req.InsightID,

		Status: status, StartTime: req.StartTime, EndTime: req.EndTime, DurationMs: duration,
		CreatedAt: now, UpdatedAt: now,

		ItemsDiscovered: req.ItemsDiscovered, ItemsSucceeded: req.ItemsSucceeded,
		ItemsFailed: req.ItemsFailed, ItemsSkipped: req.ItemsSkipped,

		InputSummary: req.InputSummary, OutputSummary: req.OutputSummary,
		SourceRef: req.SourceRef, TargetRef: req.TargetRef,
		ErrorSummary: req.ErrorSummary, ErrorDetails: req.ErrorDetails,

		GitRepo: req.GitRepo, GitBranch: req.GitBranch, GitRunTag: req.GitRunTag,

		MetricsJSON: req.MetricsJSON, ContextJSON: req.ContextJSON,
	}

	if err := telemetry.ValidateCreate(r); err != nil {
		return nil, err
	}

	return r, nil
}

// patchRunRequest is the PATCH /api/v1/runs/{event_id} payload shape. Status
// here is validated strictly (canonical only, no aliases, §4.3).
type patchRunRequest struct {
	Status          *string    `json:"status"`
	EndTime         *time.Time `json:"end_time"`
	DurationMs      *int64     `json:"duration_ms"`
	ItemsDiscovered *int64     `json:"items_discovered"`
	ItemsSucceeded  *int64     `json:"items_succeeded"`
	ItemsFailed     *int64     `json:"items_failed"`
	ItemsSkipped    *int64     `json:"items_skipped"`
	InputSummary    *string    `json:"input_summary"`
	OutputSummary   *string    `json:"output_summary"`
	SourceRef       *string    `json:"source_ref"`
	TargetRef       *string    `json:"target_ref"`
	ErrorSummary    *string    `json:"error_summary"`
	ErrorDetails    *string    `json:"error_details"`
	GitRepo         *string    `json:"git_repo"`
	GitBranch       *string    `json:"git_branch"`
	GitRunTag       *string    `json:"git_run_tag"`
	MetricsJSON     *string    `json:"metrics_json"`
	ContextJSON     *string    `json:"context_json"`
}

// toDomain converts a patchRunRequest into a telemetry.RunPatch, validating
// the status (canonical only) along the way. EndTime is reformatted to the
// RFC3339Nano string the store column expects.
func (req *patchRunRequest) toDomain() (*telemetry.RunPatch, error) {
	patch := &telemetry.RunPatch{
		DurationMs: req.DurationMs, ItemsDiscovered: req.ItemsDiscovered,
		ItemsSucceeded: req.ItemsSucceeded, ItemsFailed: req.ItemsFailed,
		ItemsSkipped: req.ItemsSkipped, InputSummary: req.InputSummary,
		OutputSummary: req.OutputSummary, SourceRef: req.SourceRef, TargetRef: req.TargetRef,
		ErrorSummary: req.ErrorSummary, ErrorDetails: req.ErrorDetails,
		GitRepo: req.GitRepo, GitBranch: req.GitBranch, GitRunTag: req.GitRunTag,
		MetricsJSON: req.MetricsJSON, ContextJSON: req.ContextJSON,
	}

	if req.Status != nil {
		status, err := telemetry.ParseCanonicalStatus(*req.Status)
		if err != nil {
			return nil, err
		}

		patch.Status = &status
	}

	if req.EndTime != nil {
		formatted := req.EndTime.Format(time.RFC3339Nano)
		patch.EndTime = &formatted
	}

	if err := telemetry.ValidatePatch(patch); err != nil {
		return nil, err
	}

	return patch, nil
}

// associateCommitRequest is the POST .../associate-commit payload shape.
type associateCommitRequest struct {
	CommitHash      string     `json:"commit_hash"`
	CommitSource    string     `json:"commit_source"`
	CommitAuthor    string     `json:"commit_author"`
	CommitTimestamp *time.Time `json:"commit_timestamp"`
}
