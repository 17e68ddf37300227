// Package api provides the HTTP surface of the telemetry ingestion service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/telemetry-run/telemetryd/internal/store"
	"github.com/telemetry-run/telemetryd/internal/telemetry"
)

const (
	defaultQueryLimit = 100
	maxQueryLimit     = 1000

	maxBatchSize = 500
)

// Sentinel errors for GET /api/v1/runs query-parameter parsing.
var (
	errInvalidLimit      = errors.New("limit must be between 1 and 1000")
	errInvalidOffset     = errors.New("offset must be non-negative")
	errInvalidTimeFilter = errors.New("time filter must be RFC3339")
)

// handleCreateRun implements POST /api/v1/runs (§4.3).
func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, r, s.logger, "request body is not valid JSON")

		return
	}

	status, _, err := s.createRun(r, &req)
	if err != nil {
		s.writeCreateRunError(w, r, err)

		return
	}

	writeJSON(w, r, s.logger, http.StatusCreated, map[string]string{"status": status})
}

// handleCreateRunsBatch implements POST /api/v1/runs/batch (§4.3): per-item
// dedupe, never failing the whole batch for one bad item.
func (s *Server) handleCreateRunsBatch(w http.ResponseWriter, r *http.Request) {
	var reqs []createRunRequest

	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		BadRequest(w, r, s.logger, "request body is not valid JSON")

		return
	}

	if len(reqs) > maxBatchSize {
		BadRequest(w, r, s.logger, "batch exceeds maximum size")

		return
	}

	var (
		inserted  int
		duplicate int
		batchErrs []string
	)

	for i := range reqs {
		status, _, err := s.createRun(r, &reqs[i])
		if err != nil {
			batchErrs = append(batchErrs, err.Error())

			continue
		}

		if status == "duplicate" {
			duplicate++
		} else {
			inserted++
		}
	}

	writeJSON(w, r, s.logger, http.StatusOK, map[string]interface{}{
		"inserted":   inserted,
		"duplicates": duplicate,
		"errors":     batchErrs,
		"total":      len(reqs),
	})
}

// createRun validates req, inserts it, and invalidates the metadata cache on
// success. Returns "created" or "duplicate".
func (s *Server) createRun(r *http.Request, req *createRunRequest) (string, *telemetry.Run, error) {
	run, err := req.toDomain(time.Now().UTC())
	if err != nil {
		return "", nil, err
	}

	if err := s.store.InsertRun(r.Context(), run); err != nil {
		if errors.Is(err, store.ErrDuplicateEventID) {
			s.metrics.runsDuplicate.Inc()

			return "duplicate", run, nil
		}

		return "", nil, err
	}

	s.metrics.runsIngested.Inc()
	s.metadata.Invalidate()

	return "created", run, nil
}

// writeCreateRunError maps a createRun error to the status codes §4.3
// documents: 422 for domain validation, 500 for anything else (a failure
// inside the store).
func (s *Server) writeCreateRunError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, telemetry.ErrMissingEventID),
		errors.Is(err, telemetry.ErrMissingRunID),
		errors.Is(err, telemetry.ErrMissingAgentName),
		errors.Is(err, telemetry.ErrMissingJobType),
		errors.Is(err, telemetry.ErrMissingStartTime),
		errors.Is(err, telemetry.ErrRunIDTooLong),
		errors.Is(err, telemetry.ErrRunIDPathSeparator),
		errors.Is(err, telemetry.ErrInvalidStatus),
		errors.Is(err, telemetry.ErrNegativeCounter),
		errors.Is(err, telemetry.ErrNegativeDuration),
		errors.Is(err, telemetry.ErrInvalidGitCommitSource):
		WriteValidationError(w, r, s.logger, []ValidationError{
			{Loc: []string{"body"}, Msg: err.Error(), Type: "value_error"},
		})
	default:
		InternalServerError(w, r, s.logger, "failed to ingest run")
	}
}

// handleGetRun implements GET /api/v1/runs/{event_id} (§4.3).
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("event_id")

	run, err := s.store.GetRun(r.Context(), eventID)
	if err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			NotFound(w, r, s.logger, "run not found")

			return
		}

		InternalServerError(w, r, s.logger, "failed to load run")

		return
	}

	writeJSON(w, r, s.logger, http.StatusOK, toRunWire(run))
}

// handleQueryRuns implements GET /api/v1/runs (§4.3).
func (s *Server) handleQueryRuns(w http.ResponseWriter, r *http.Request) {
	filter, err := parseRunFilter(r)
	if err != nil {
		BadRequest(w, r, s.logger, err.Error())

		return
	}

	runs, err := s.store.QueryRuns(r.Context(), filter)
	if err != nil {
		InternalServerError(w, r, s.logger, "failed to query runs")

		return
	}

	wire := make([]runWire, 0, len(runs))
	for _, run := range runs {
		wire = append(wire, toRunWire(run))
	}

	writeJSON(w, r, s.logger, http.StatusOK, wire)
}

// parseRunFilter parses GET /api/v1/runs query parameters (§4.3: "status
// accepts canonical only", limit 1-1000 default 100, offset >= 0).
func parseRunFilter(r *http.Request) (store.RunFilter, error) {
	q := r.URL.Query()

	filter := store.RunFilter{
		AgentName: q.Get("agent_name"),
		JobType:   q.Get("job_type"),
		Limit:     defaultQueryLimit,
	}

	if raw := q.Get("status"); raw != "" {
		status, err := telemetry.ParseCanonicalStatus(raw)
		if err != nil {
			return store.RunFilter{}, err
		}

		filter.Status = status
	}

	var err error

	if filter.CreatedBefore, err = parseOptionalTimeParam(q, "created_before"); err != nil {
		return store.RunFilter{}, err
	}

	if filter.CreatedAfter, err = parseOptionalTimeParam(q, "created_after"); err != nil {
		return store.RunFilter{}, err
	}

	if filter.StartTimeFrom, err = parseOptionalTimeParam(q, "start_time_from"); err != nil {
		return store.RunFilter{}, err
	}

	if filter.StartTimeTo, err = parseOptionalTimeParam(q, "start_time_to"); err != nil {
		return store.RunFilter{}, err
	}

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxQueryLimit {
			return store.RunFilter{}, errInvalidLimit
		}

		filter.Limit = limit
	}

	if raw := q.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return store.RunFilter{}, errInvalidOffset
		}

		filter.Offset = offset
	}

	return filter, nil
}

func parseOptionalTimeParam(q map[string][]string, key string) (*time.Time, error) {
	values, ok := q[key]
	if !ok || len(values) == 0 || values[0] == "" {
		return nil, nil
	}

	t, err := time.Parse(time.RFC3339, values[0])
	if err != nil {
		return nil, errInvalidTimeFilter
	}

	return &t, nil
}

// handleUpdateRun implements PATCH /api/v1/runs/{event_id} (§4.3).
func (s *Server) handleUpdateRun(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("event_id")

	var req patchRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, r, s.logger, "request body is not valid JSON")

		return
	}

	patch, err := req.toDomain()
	if err != nil {
		if errors.Is(err, telemetry.ErrEmptyPatch) {
			BadRequest(w, r, s.logger, err.Error())
		} else {
			WriteValidationError(w, r, s.logger, []ValidationError{
				{Loc: []string{"body"}, Msg: err.Error(), Type: "value_error"},
			})
		}

		return
	}

	if err := s.store.UpdateRun(r.Context(), eventID, patch); err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			NotFound(w, r, s.logger, "run not found")
		} else {
			InternalServerError(w, r, s.logger, "failed to update run")
		}

		return
	}

	s.metadata.Invalidate()

	writeJSON(w, r, s.logger, http.StatusOK, map[string]interface{}{
		"updated":        true,
		"fields_updated": patch.FieldsUpdated(),
	})
}

// handleAssociateCommit implements POST /api/v1/runs/{event_id}/associate-commit
// (§4.3, scenario S5).
func (s *Server) handleAssociateCommit(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("event_id")

	var req associateCommitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, r, s.logger, "request body is not valid JSON")

		return
	}

	if req.CommitHash == "" {
		WriteValidationError(w, r, s.logger, []ValidationError{
			{Loc: []string{"body", "commit_hash"}, Msg: telemetry.ErrMissingCommitHash.Error(), Type: "missing"},
		})

		return
	}

	if req.CommitSource == "" {
		WriteValidationError(w, r, s.logger, []ValidationError{
			{Loc: []string{"body", "commit_source"}, Msg: telemetry.ErrMissingGitCommitSource.Error(), Type: "missing"},
		})

		return
	}

	association, err := s.store.AssociateCommit(
		r.Context(), eventID, req.CommitHash, req.CommitAuthor,
		telemetry.GitCommitSource(req.CommitSource), req.CommitTimestamp,
	)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrRunNotFound):
			NotFound(w, r, s.logger, "run not found")
		case errors.Is(err, telemetry.ErrInvalidCommitHash),
			errors.Is(err, telemetry.ErrInvalidGitCommitSource),
			errors.Is(err, telemetry.ErrMissingGitCommitSource):
			WriteValidationError(w, r, s.logger, []ValidationError{
				{Loc: []string{"body"}, Msg: err.Error(), Type: "value_error"},
			})
		default:
			InternalServerError(w, r, s.logger, "failed to associate commit")
		}

		return
	}

	s.metadata.Invalidate()

	writeJSON(w, r, s.logger, http.StatusOK, map[string]interface{}{
		"acknowledged": true,
		"changed":      association.Changed,
		"commit_hash":  association.Hash,
	})
}

// handleCommitURL implements GET /api/v1/runs/{event_id}/commit-url (§4.3).
func (s *Server) handleCommitURL(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("event_id")

	run, err := s.store.GetRun(r.Context(), eventID)
	if err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			NotFound(w, r, s.logger, "run not found")

			return
		}

		InternalServerError(w, r, s.logger, "failed to load run")

		return
	}

	url, ok := telemetry.CommitURL(run.GitRepo, run.GitCommitHash)
	if !ok {
		writeJSON(w, r, s.logger, http.StatusOK, map[string]interface{}{"commit_url": nil})

		return
	}

	writeJSON(w, r, s.logger, http.StatusOK, map[string]interface{}{"commit_url": url})
}

// handleRepoURL implements GET /api/v1/runs/{event_id}/repo-url (§4.3).
func (s *Server) handleRepoURL(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("event_id")

	run, err := s.store.GetRun(r.Context(), eventID)
	if err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			NotFound(w, r, s.logger, "run not found")

			return
		}

		InternalServerError(w, r, s.logger, "failed to load run")

		return
	}

	url, ok := telemetry.RepoURL(run.GitRepo)
	if !ok {
		writeJSON(w, r, s.logger, http.StatusOK, map[string]interface{}{"repo_url": nil})

		return
	}

	writeJSON(w, r, s.logger, http.StatusOK, map[string]interface{}{"repo_url": url})
}

// handleMetadata implements GET /api/v1/metadata (§4.4).
func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	snapshot, cacheHit, err := s.metadata.Get(r.Context())
	if err != nil {
		InternalServerError(w, r, s.logger, "failed to load metadata")

		return
	}

	writeJSON(w, r, s.logger, http.StatusOK, map[string]interface{}{
		"agents":    snapshot.Agents,
		"job_types": snapshot.JobTypes,
		"cache_hit": cacheHit,
	})
}
