// Package syncworker provides SyncWorker: the background loop that drains
// BufferFile entries back to the ingestion service once it is reachable
// again (§4.8).
package syncworker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/telemetry-run/telemetryd/internal/bufferfile"
	"github.com/telemetry-run/telemetryd/internal/telemetry"
	"github.com/telemetry-run/telemetryd/internal/transport"
)

const defaultInterval = 60 * time.Second

// replayRoutes maps a buffered entry's tag to the HTTP call that replays it.
// event_id is embedded in the buffered body itself, so PATCH/associate-commit
// targets are recovered by decoding the body rather than carrying a separate
// path field.
var replayRoutes = map[telemetry.BufferEntryTag]func(eventID string) (method, path string){
	telemetry.BufferEntryRunCreate: func(string) (string, string) {
		return http.MethodPost, "/api/v1/runs"
	},
	telemetry.BufferEntryRunUpdate: func(eventID string) (string, string) {
		return http.MethodPatch, "/api/v1/runs/" + eventID
	},
	telemetry.BufferEntryCommitAssociate: func(eventID string) (string, string) {
		return http.MethodPost, "/api/v1/runs/" + eventID + "/associate-commit"
	},
}

// envelope recovers the event_id carried inside every buffered body, needed
// to build the PATCH/associate-commit URL (the NDJSON line itself has no
// separate "path" field, per §6's buffer file layout).
type envelope struct {
	EventID string `json:"event_id"`
}

// SyncWorker periodically drains BufferFile, replaying each entry through
// HTTPTransport (§4.8). Designed to be resumable: a crash at any point
// leaves the buffer intact, and replay is safe to repeat because the
// server is idempotent on event_id.
type SyncWorker struct {
	buffer    *bufferfile.BufferFile
	transport *transport.HTTPTransport
	logger    *slog.Logger
	interval  time.Duration
}

// New creates a SyncWorker. interval <= 0 uses the default ~60s schedule
// (§4.8).
func New(buffer *bufferfile.BufferFile, t *transport.HTTPTransport, logger *slog.Logger, interval time.Duration) *SyncWorker {
	if logger == nil {
		logger = slog.Default()
	}

	if interval <= 0 {
		interval = defaultInterval
	}

	return &SyncWorker{buffer: buffer, transport: t, logger: logger, interval: interval}
}

// Run blocks, draining the buffer on every tick until ctx is cancelled.
func (w *SyncWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.DrainOnce(ctx); err != nil {
				w.logger.Error("buffer drain failed", slog.String("error", err.Error()))
			}
		}
	}
}

// DrainOnce runs a single drain pass over every spool file.
func (w *SyncWorker) DrainOnce(ctx context.Context) error {
	return w.buffer.Drain(func(entry telemetry.BufferEntry) (bool, error) {
		return w.replay(ctx, entry)
	})
}

// replay dispatches a single buffered entry. Terminal 4xx responses are
// logged and dropped (BufferFile has no finer-grained "quarantine one
// entry, keep draining the rest" primitive than its own .rejected path for
// unparseable JSON, so a permanently-rejected entry is removed here rather
// than retried forever); transient failures (network, timeout, 5xx) return
// false so the entry survives for the next drain pass.
func (w *SyncWorker) replay(ctx context.Context, entry telemetry.BufferEntry) (bool, error) {
	var env envelope
	if err := json.Unmarshal(entry.Body, &env); err != nil {
		w.logger.Warn("buffered entry missing event_id, dropping",
			slog.String("tag", string(entry.Tag)))

		return true, nil
	}

	if entry.Tag == telemetry.BufferEntryEventLog {
		return true, nil
	}

	route, ok := replayRoutes[entry.Tag]
	if !ok {
		w.logger.Warn("unknown buffer entry tag, dropping", slog.String("tag", string(entry.Tag)))

		return true, nil
	}

	method, path := route(env.EventID)

	_, err := w.transport.Do(ctx, method, path, entry.Body)
	if err == nil {
		return true, nil
	}

	var rejected *transport.ErrClientRejected
	if errors.As(err, &rejected) {
		w.logger.Warn("buffered entry permanently rejected, dropping",
			slog.String("event_id", env.EventID),
			slog.Int("status", rejected.StatusCode),
		)

		return true, nil
	}

	w.logger.Warn("buffered entry replay failed, will retry next drain",
		slog.String("event_id", env.EventID),
		slog.String("error", err.Error()),
	)

	return false, nil
}
