package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_SucceedsOnFirstAttempt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"status":"created"}`))
	}))
	defer server.Close()

	tr := New(server.URL, "")

	body, err := tr.Do(context.Background(), http.MethodPost, "/api/v1/runs", []byte(`{}`))
	require.NoError(t, err)
	assert.Contains(t, string(body), "created")
}

func TestDo_RetriesOn5xxThenSucceeds(t *testing.T) {
	var attempts int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 2 {
			w.WriteHeader(http.StatusInternalServerError)

			return
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	tr := New(server.URL, "")

	_, err := tr.Do(context.Background(), http.MethodPost, "/api/v1/runs", []byte(`{}`))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&attempts), int32(2))
}

func TestDo_DoesNotRetryOn4xx(t *testing.T) {
	var attempts int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail":"bad"}`))
	}))
	defer server.Close()

	tr := New(server.URL, "")

	_, err := tr.Do(context.Background(), http.MethodPost, "/api/v1/runs", []byte(`{}`))
	require.Error(t, err)

	var rejected *ErrClientRejected
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, http.StatusUnprocessableEntity, rejected.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestDo_SendsBearerTokenWhenConfigured(t *testing.T) {
	var gotAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	tr := New(server.URL, "secret-token")

	_, err := tr.Do(context.Background(), http.MethodPost, "/api/v1/runs", []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret-token", gotAuth)
}
