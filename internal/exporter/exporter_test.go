package exporter

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DisabledWhenFlagOff(t *testing.T) {
	e := New(false, "http://example.invalid", "http://localhost:8080", "", nil)
	assert.False(t, e.Enabled())

	e.Post(http.MethodPost, "/api/v1/runs", []byte(`{}`))
}

func TestNew_DisabledWhenURLMissing(t *testing.T) {
	e := New(true, "", "http://localhost:8080", "", nil)
	assert.False(t, e.Enabled())
}

func TestNew_DisabledWhenURLMatchesIngestionHost(t *testing.T) {
	e := New(true, "http://localhost:8080/", "http://localhost:8080", "", nil)
	assert.False(t, e.Enabled())
}

func TestPost_DeliversPayloadInBackground(t *testing.T) {
	var received int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&received, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	e := New(true, server.URL, "http://localhost:8080", "", nil)
	require.True(t, e.Enabled())

	e.Post(http.MethodPost, "/external/runs", []byte(`{"event_id":"abc"}`))

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&received) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	e.Close()
	assert.Equal(t, int32(1), atomic.LoadInt32(&received))
}

func TestPost_DropsPayloadWhenQueueFull(t *testing.T) {
	block := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	e := New(true, server.URL, "http://localhost:8080", "", nil)
	require.True(t, e.Enabled())

	for i := 0; i < queueSize+10; i++ {
		e.Post(http.MethodPost, "/external/runs", []byte(`{}`))
	}

	close(block)
	e.Close()
}
