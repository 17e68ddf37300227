package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telemetry-run/telemetryd/internal/cache"
	"github.com/telemetry-run/telemetryd/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	st, err := store.Open(&store.Config{
		DatabasePath:   filepath.Join(t.TempDir(), "test.db"),
		MigrationTable: "schema_migrations",
	}, nil)
	require.NoError(t, err)

	t.Cleanup(func() { _ = st.Close() })

	cfg := LoadServerConfig()
	metadata := cache.New(st)

	return NewServer(&cfg, st, metadata)
}

func newRunPayload(eventID string) map[string]interface{} {
	return map[string]interface{}{
		"event_id":   eventID,
		"run_id":     "run-" + eventID,
		"agent_name": "doc-sync",
		"job_type":   "sync",
		"status":     "running",
		"start_time": time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC).Format(time.RFC3339),
	}
}

func postJSON(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()

	mux := http.NewServeMux()
	s.setupRoutes(mux)
	mux.ServeHTTP(rec, req)

	return rec
}

func TestHandleCreateRun_NewEventIDReturns201Created(t *testing.T) {
	s := newTestServer(t)

	rec := postJSON(t, s, http.MethodPost, "/api/v1/runs", newRunPayload("evt-1"))

	assert.Equal(t, http.StatusCreated, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "created", body["status"])
}

func TestHandleCreateRun_DuplicateEventIDIsIdempotent201(t *testing.T) {
	s := newTestServer(t)

	payload := newRunPayload("evt-dup")
	first := postJSON(t, s, http.MethodPost, "/api/v1/runs", payload)
	require.Equal(t, http.StatusCreated, first.Code)

	second := postJSON(t, s, http.MethodPost, "/api/v1/runs", payload)
	assert.Equal(t, http.StatusCreated, second.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &body))
	assert.Equal(t, "duplicate", body["status"])
}

func TestHandleCreateRun_AliasedStatusAccepted(t *testing.T) {
	s := newTestServer(t)

	payload := newRunPayload("evt-alias")
	payload["status"] = "failed"

	rec := postJSON(t, s, http.MethodPost, "/api/v1/runs", payload)
	require.Equal(t, http.StatusCreated, rec.Code)

	getRec := postJSON(t, s, http.MethodGet, "/api/v1/runs/evt-alias", nil)
	require.Equal(t, http.StatusOK, getRec.Code)

	var run runWire
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &run))
	assert.Equal(t, "failure", run.Status)
}

func TestHandleCreateRun_MissingRequiredFieldReturns422(t *testing.T) {
	s := newTestServer(t)

	payload := newRunPayload("evt-bad")
	delete(payload, "agent_name")

	rec := postJSON(t, s, http.MethodPost, "/api/v1/runs", payload)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandleGetRun_UnknownEventIDReturns404(t *testing.T) {
	s := newTestServer(t)

	rec := postJSON(t, s, http.MethodGet, "/api/v1/runs/does-not-exist", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleCreateRunsBatch_MixedResults(t *testing.T) {
	s := newTestServer(t)

	batch := []map[string]interface{}{
		newRunPayload("evt-b1"),
		newRunPayload("evt-b2"),
	}

	rec := postJSON(t, s, http.MethodPost, "/api/v1/runs/batch", batch)
	require.Equal(t, http.StatusOK, rec.Code)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.InDelta(t, float64(2), result["inserted"], 0)
	assert.InDelta(t, float64(2), result["total"], 0)
}

func TestHandleUpdateRun_StrictStatusRejectsAlias(t *testing.T) {
	s := newTestServer(t)

	postJSON(t, s, http.MethodPost, "/api/v1/runs", newRunPayload("evt-patch"))

	rec := postJSON(t, s, http.MethodPatch, "/api/v1/runs/evt-patch", map[string]interface{}{
		"status": "failed",
	})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandleUpdateRun_CanonicalStatusSucceeds(t *testing.T) {
	s := newTestServer(t)

	postJSON(t, s, http.MethodPost, "/api/v1/runs", newRunPayload("evt-patch2"))

	rec := postJSON(t, s, http.MethodPatch, "/api/v1/runs/evt-patch2", map[string]interface{}{
		"status": "success",
	})

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["updated"])
}

func TestHandleUpdateRun_EmptyPatchReturns400(t *testing.T) {
	s := newTestServer(t)

	postJSON(t, s, http.MethodPost, "/api/v1/runs", newRunPayload("evt-patch3"))

	rec := postJSON(t, s, http.MethodPatch, "/api/v1/runs/evt-patch3", map[string]interface{}{})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleAssociateCommit_FirstAssociationAcks(t *testing.T) {
	s := newTestServer(t)

	postJSON(t, s, http.MethodPost, "/api/v1/runs", newRunPayload("evt-commit"))

	rec := postJSON(t, s, http.MethodPost, "/api/v1/runs/evt-commit/associate-commit", map[string]interface{}{
		"commit_hash":   "abc1234",
		"commit_source": "llm",
	})

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["changed"])
}

func TestHandleAssociateCommit_MissingSourceReturns422(t *testing.T) {
	s := newTestServer(t)

	postJSON(t, s, http.MethodPost, "/api/v1/runs", newRunPayload("evt-nosource"))

	rec := postJSON(t, s, http.MethodPost, "/api/v1/runs/evt-nosource/associate-commit", map[string]interface{}{
		"commit_hash": "abc1234",
	})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandleCommitURL_KnownHostDerivesURL(t *testing.T) {
	s := newTestServer(t)

	payload := newRunPayload("evt-url")
	payload["git_repo"] = "https://github.com/correlator-io/correlator"

	postJSON(t, s, http.MethodPost, "/api/v1/runs", payload)
	postJSON(t, s, http.MethodPost, "/api/v1/runs/evt-url/associate-commit", map[string]interface{}{
		"commit_hash":   "deadbeef",
		"commit_source": "ci",
	})

	rec := postJSON(t, s, http.MethodGet, "/api/v1/runs/evt-url/commit-url", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "https://github.com/correlator-io/correlator/commit/deadbeef", body["commit_url"])
}

func TestHandleMetadata_ReturnsDistinctAgentsAndJobTypes(t *testing.T) {
	s := newTestServer(t)

	postJSON(t, s, http.MethodPost, "/api/v1/runs", newRunPayload("evt-meta"))

	rec := postJSON(t, s, http.MethodGet, "/api/v1/metadata", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["agents"], "doc-sync")
}

func TestHandleHealth_ReportsHealthy(t *testing.T) {
	s := newTestServer(t)

	rec := postJSON(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
