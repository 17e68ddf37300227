package syncworker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telemetry-run/telemetryd/internal/bufferfile"
	"github.com/telemetry-run/telemetryd/internal/telemetry"
	"github.com/telemetry-run/telemetryd/internal/transport"
)

func newTestBuffer(t *testing.T) *bufferfile.BufferFile {
	t.Helper()

	b, err := bufferfile.Open(t.TempDir())
	require.NoError(t, err)

	return b
}

func TestDrainOnce_ReplaysEntryAndCompactsOnSuccess(t *testing.T) {
	var requests int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		assert.Equal(t, "/api/v1/runs", r.URL.Path)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	buffer := newTestBuffer(t)
	require.NoError(t, buffer.Append(telemetry.BufferEntry{
		Tag:  telemetry.BufferEntryRunCreate,
		Body: []byte(`{"event_id":"abc"}`),
	}))

	w := New(buffer, transport.New(server.URL, ""), nil, 0)
	require.NoError(t, w.DrainOnce(context.Background()))
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))

	var remaining int
	require.NoError(t, w.DrainOnce(context.Background()))
	require.NoError(t, buffer.Drain(func(telemetry.BufferEntry) (bool, error) {
		remaining++

		return false, nil
	}))
	assert.Equal(t, 0, remaining)
}

func TestDrainOnce_KeepsEntryOnTransientFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	buffer := newTestBuffer(t)
	require.NoError(t, buffer.Append(telemetry.BufferEntry{
		Tag:  telemetry.BufferEntryRunCreate,
		Body: []byte(`{"event_id":"retry-me"}`),
	}))

	w := New(buffer, transport.New(server.URL, ""), nil, 0)
	require.NoError(t, w.DrainOnce(context.Background()))

	var remaining int
	require.NoError(t, buffer.Drain(func(telemetry.BufferEntry) (bool, error) {
		remaining++

		return false, nil
	}))
	assert.Equal(t, 1, remaining)
}

func TestDrainOnce_DropsEntryOnTerminal4xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	buffer := newTestBuffer(t)
	require.NoError(t, buffer.Append(telemetry.BufferEntry{
		Tag:  telemetry.BufferEntryRunCreate,
		Body: []byte(`{"event_id":"bad-payload"}`),
	}))

	w := New(buffer, transport.New(server.URL, ""), nil, 0)
	require.NoError(t, w.DrainOnce(context.Background()))

	var remaining int
	require.NoError(t, buffer.Drain(func(telemetry.BufferEntry) (bool, error) {
		remaining++

		return false, nil
	}))
	assert.Equal(t, 0, remaining)
}

func TestDrainOnce_BuildsPatchPathFromEventID(t *testing.T) {
	var gotPath, gotMethod string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	buffer := newTestBuffer(t)
	require.NoError(t, buffer.Append(telemetry.BufferEntry{
		Tag:  telemetry.BufferEntryRunUpdate,
		Body: []byte(`{"event_id":"xyz","status":"success"}`),
	}))

	w := New(buffer, transport.New(server.URL, ""), nil, 0)
	require.NoError(t, w.DrainOnce(context.Background()))
	assert.Equal(t, http.MethodPatch, gotMethod)
	assert.Equal(t, "/api/v1/runs/xyz", gotPath)
}
