// Package api provides the HTTP surface of the telemetry ingestion service.
package api

import (
	"net/http"
	"time"
)

// setupRoutes wires the full HTTP surface (§4.3). Every route passes through
// the same middleware chain built in NewServer -- correlation id, panic
// recovery, bearer auth, rate limiting, request logging, CORS.
func (s *Server) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ping", s.handlePing)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", s.metricsHandler())

	mux.HandleFunc("POST /api/v1/runs", instrumented("/api/v1/runs", s.metrics, s.handleCreateRun))
	mux.HandleFunc("POST /api/v1/runs/batch", instrumented("/api/v1/runs/batch", s.metrics, s.handleCreateRunsBatch))
	mux.HandleFunc("GET /api/v1/runs", instrumented("/api/v1/runs", s.metrics, s.handleQueryRuns))
	mux.HandleFunc(
		"GET /api/v1/runs/{event_id}",
		instrumented("/api/v1/runs/{event_id}", s.metrics, s.handleGetRun),
	)
	mux.HandleFunc(
		"PATCH /api/v1/runs/{event_id}",
		instrumented("/api/v1/runs/{event_id}", s.metrics, s.handleUpdateRun),
	)
	mux.HandleFunc(
		"POST /api/v1/runs/{event_id}/associate-commit",
		instrumented("/api/v1/runs/{event_id}/associate-commit", s.metrics, s.handleAssociateCommit),
	)
	mux.HandleFunc(
		"GET /api/v1/runs/{event_id}/commit-url",
		instrumented("/api/v1/runs/{event_id}/commit-url", s.metrics, s.handleCommitURL),
	)
	mux.HandleFunc(
		"GET /api/v1/runs/{event_id}/repo-url",
		instrumented("/api/v1/runs/{event_id}/repo-url", s.metrics, s.handleRepoURL),
	)
	mux.HandleFunc("GET /api/v1/metadata", instrumented("/api/v1/metadata", s.metrics, s.handleMetadata))

	mux.HandleFunc("/", s.handleNotFound)
}

// handlePing responds to basic liveness checks: a trivial probe alongside
// the richer /health endpoint.
func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("pong"))
}

// handleNotFound returns the simple `{"detail": ...}` error shape for
// unknown routes.
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	NotFound(w, r, s.logger, "the requested resource was not found")
}

// handleHealth reports the store integrity check and the process uptime: 200
// with status "healthy", or 503 with status "degraded" and a store_error
// message when the integrity check fails. Pragma values and counters are not
// included in the response.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var uptime string
	if !s.startTime.IsZero() {
		uptime = time.Since(s.startTime).Round(time.Second).String()
	}

	health := map[string]interface{}{
		"status": "healthy",
		"uptime": uptime,
	}

	if err := s.store.IntegrityCheck(r.Context()); err != nil {
		health["status"] = "degraded"
		health["store_error"] = err.Error()

		writeJSON(w, r, s.logger, http.StatusServiceUnavailable, health)

		return
	}

	writeJSON(w, r, s.logger, http.StatusOK, health)
}
