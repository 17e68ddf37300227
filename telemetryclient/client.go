// Package telemetryclient is the library facade agents use to record their
// own run lifecycle against the telemetry ingestion service (§4.6).
package telemetryclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/telemetry-run/telemetryd/internal/bufferfile"
	"github.com/telemetry-run/telemetryd/internal/exporter"
	"github.com/telemetry-run/telemetryd/internal/syncworker"
	"github.com/telemetry-run/telemetryd/internal/telemetry"
	"github.com/telemetry-run/telemetryd/internal/transport"
)

const runIDTimeLayout = "20060102T150405Z"

// Client is the public entry point: one instance per agent process.
// startRun/logEvent/endRun/trackRun/associateCommit give the lifecycle API
// described in §4.6. Per the client-side control flow (§2), the Client owns
// its own SyncWorker: the periodic BufferFile drain runs inside the agent's
// own process, not the ingestion service's.
type Client struct {
	transport *transport.HTTPTransport
	buffer    *bufferfile.BufferFile
	exporter  *exporter.ExternalExporter
	logger    *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Client and starts its background SyncWorker. t and buffer are
// required; exp may be nil when ExternalExporter is not configured.
// syncInterval <= 0 uses SyncWorker's default ~60s schedule (§4.8).
func New(t *transport.HTTPTransport, buffer *bufferfile.BufferFile, exp *exporter.ExternalExporter, logger *slog.Logger, syncInterval time.Duration) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Client{
		transport: t, buffer: buffer, exporter: exp, logger: logger,
		cancel: cancel, done: make(chan struct{}),
	}

	worker := syncworker.New(buffer, t, logger, syncInterval)

	go func() {
		defer close(c.done)
		worker.Run(ctx)
	}()

	return c
}

// Close stops the background SyncWorker and, if configured, the
// ExternalExporter, waiting for both to finish their current work.
func (c *Client) Close() {
	c.cancel()
	<-c.done

	if c.exporter != nil {
		c.exporter.Close()
	}
}

// StartOptions carries the optional fields startRun accepts beyond the
// required agent_name/job_type.
type StartOptions struct {
	RunID         string // auto-generated when empty (§4.6 run-id policy)
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
	GitRepo       string
	GitBranch     string
	GitRunTag     string
	ContextJSON   string
}

// Run identifies an in-flight run returned by StartRun; callers thread it
// through LogEvent/EndRun/AssociateCommit.
type Run struct {
	EventID string
	RunID   string
}

// StartRun begins a run: mints event_id/run_id, submits the creation payload
// per the dual-write ordering in §4.6, and returns identifiers for the
// caller to track.
func (c *Client) StartRun(ctx context.Context, agentName, jobType string, opts StartOptions) (*Run, error) {
	runID := opts.RunID
	if runID == "" {
		runID = generateRunID(agentName)
	} else if err := telemetry.ValidateRunID(runID); err != nil {
		return nil, err
	}

	eventID := uuid.NewString()

	payload := createRunPayload{
		EventID: eventID, RunID: runID, AgentName: agentName, JobType: jobType,
		TriggerType: opts.TriggerType, Product: opts.Product, ProductFamily: opts.ProductFamily,
		Platform: opts.Platform, Subdomain: opts.Subdomain, Website: opts.Website,
		WebsiteSection: opts.WebsiteSection, ItemName: opts.ItemName, Environment: opts.Environment,
		Host: opts.Host, ParentRunID: opts.ParentRunID, InsightID: opts.InsightID,
		GitRepo: opts.GitRepo, GitBranch: opts.GitBranch, GitRunTag: opts.GitRunTag,
		ContextJSON: opts.ContextJSON,
		Status:      string(telemetry.StatusRunning),
		StartTime:   time.Now().UTC(),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode run payload: %w", err)
	}

	c.dualWrite(ctx, telemetry.BufferEntryRunCreate, "POST", "/api/v1/runs", body)

	return &Run{EventID: eventID, RunID: runID}, nil
}

// LogEvent records a checkpoint. Per §3.2/§4.5 ("Events not persisted"),
// events never reach the relational store: they exist only as BufferFile
// entries, kept for forensic replay.
func (c *Client) LogEvent(_ context.Context, run *Run, eventType string, payload any) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode event payload: %w", err)
	}

	event := telemetry.Event{
		RunID:       run.RunID,
		EventType:   eventType,
		Timestamp:   time.Now().UTC(),
		PayloadJSON: string(payloadJSON),
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	if err := c.buffer.Append(telemetry.BufferEntry{Tag: telemetry.BufferEntryEventLog, Body: body}); err != nil {
		c.logger.Warn("failed to buffer event", slog.String("error", err.Error()))
	}

	return nil
}

// EndMetrics carries the optional outcome fields endRun accepts.
type EndMetrics struct {
	DurationMs      *int64
	ItemsDiscovered *int64
	ItemsSucceeded  *int64
	ItemsFailed     *int64
	ItemsSkipped    *int64
	ErrorSummary    *string
	ErrorDetails    *string
	OutputSummary   *string
}

// EndRun closes out a run: normalizes status (accepting the aliases §4.6
// documents), computes duration_ms from start time when the caller didn't
// supply one, and PATCHes per the dual-write ordering.
func (c *Client) EndRun(ctx context.Context, run *Run, startTime time.Time, status string, metrics EndMetrics) error {
	canonical, err := telemetry.NormalizeIngressStatus(status)
	if err != nil {
		return err
	}

	now := time.Now().UTC()

	durationMs := metrics.DurationMs
	if durationMs == nil {
		computed := now.Sub(startTime).Milliseconds()
		durationMs = &computed
	}

	statusStr := string(canonical)
	payload := patchRunPayload{
		Status: &statusStr, EndTime: &now, DurationMs: durationMs,
		ItemsDiscovered: metrics.ItemsDiscovered, ItemsSucceeded: metrics.ItemsSucceeded,
		ItemsFailed: metrics.ItemsFailed, ItemsSkipped: metrics.ItemsSkipped,
		ErrorSummary: metrics.ErrorSummary, ErrorDetails: metrics.ErrorDetails,
		OutputSummary: metrics.OutputSummary,
	}

	envelope := struct {
		EventID string `json:"event_id"`
		patchRunPayload
	}{EventID: run.EventID, patchRunPayload: payload}

	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to encode end-run payload: %w", err)
	}

	c.dualWrite(ctx, telemetry.BufferEntryRunUpdate, "PATCH", "/api/v1/runs/"+run.EventID, body)

	return nil
}

// TrackRun scopes a run's lifecycle to fn: starts the run, runs fn, ends
// with "success" on a normal return or "failure" (with the error's message
// as error_summary) on panic or error return. The original panic/error is
// re-raised/returned to the caller after EndRun completes (§4.6).
func (c *Client) TrackRun(ctx context.Context, agentName, jobType string, opts StartOptions, fn func(ctx context.Context, run *Run) error) (err error) {
	run, err := c.StartRun(ctx, agentName, jobType, opts)
	if err != nil {
		return err
	}

	startTime := time.Now().UTC()

	defer func() {
		status := "success"

		var summary *string

		if r := recover(); r != nil {
			status = "failure"
			msg := fmt.Sprintf("panic: %v", r)
			summary = &msg

			if endErr := c.EndRun(ctx, run, startTime, status, EndMetrics{ErrorSummary: summary}); endErr != nil {
				c.logger.Warn("failed to end run after panic", slog.String("error", endErr.Error()))
			}

			panic(r)
		}

		if err != nil {
			status = "failure"
			msg := err.Error()
			summary = &msg
		}

		if endErr := c.EndRun(ctx, run, startTime, status, EndMetrics{ErrorSummary: summary}); endErr != nil {
			c.logger.Warn("failed to end run", slog.String("error", endErr.Error()))
		}
	}()

	err = fn(ctx, run)

	return err
}

// CommitOptions carries the associate-commit payload fields.
type CommitOptions struct {
	CommitSource    string
	CommitAuthor    string
	CommitTimestamp *time.Time
}

// AssociateCommit attaches git commit metadata to an already-started run.
func (c *Client) AssociateCommit(ctx context.Context, run *Run, commitHash string, opts CommitOptions) error {
	if err := telemetry.ValidateCommitHash(commitHash); err != nil {
		return err
	}

	payload := associateCommitPayload{
		CommitHash: commitHash, CommitSource: opts.CommitSource,
		CommitAuthor: opts.CommitAuthor, CommitTimestamp: opts.CommitTimestamp,
	}

	envelope := struct {
		EventID string `json:"event_id"`
		associateCommitPayload
	}{EventID: run.EventID, associateCommitPayload: payload}

	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to encode associate-commit payload: %w", err)
	}

	c.dualWrite(ctx, telemetry.BufferEntryCommitAssociate, "POST", "/api/v1/runs/"+run.EventID+"/associate-commit", body)

	return nil
}

// dualWrite implements §4.6's fixed ordering: primary HTTP call first
// (failure not surfaced -- the buffer guarantees eventual delivery), then an
// unconditional buffer append (failure logged at WARN, never aborts the
// caller), then an optional fire-and-forget export.
func (c *Client) dualWrite(ctx context.Context, tag telemetry.BufferEntryTag, method, path string, body []byte) {
	if _, err := c.transport.Do(ctx, method, path, body); err != nil {
		c.logger.Warn("primary telemetry write failed, relying on buffer",
			slog.String("path", path), slog.String("error", err.Error()))
	}

	if err := c.buffer.Append(telemetry.BufferEntry{Tag: tag, Body: body}); err != nil {
		c.logger.Warn("failed to buffer telemetry write",
			slog.String("path", path), slog.String("error", err.Error()))
	}

	if c.exporter != nil {
		c.exporter.Post(method, path, body)
	}
}

// generateRunID implements §4.6's auto-generation policy:
// {UTC YYYYMMDDTHHMMSSZ}-{agent_name}-{8-hex-of-uuid}.
func generateRunID(agentName string) string {
	timestamp := time.Now().UTC().Format(runIDTimeLayout)
	suffix := uuid.NewString()[:8]

	return fmt.Sprintf("%s-%s-%s", timestamp, agentName, suffix)
}
