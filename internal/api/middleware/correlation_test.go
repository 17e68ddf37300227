package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCorrelationID_GeneratesWhenAbsent(t *testing.T) {
	var seen string

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetCorrelationID(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	handler := CorrelationID(nil)(next)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(DefaultCorrelationIDHeader))
}

func TestCorrelationID_ReusesIncomingHeader(t *testing.T) {
	next := okHandler()
	handler := CorrelationID(nil)(next)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil)
	req.Header.Set(DefaultCorrelationIDHeader, "caller-supplied-id")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "caller-supplied-id", rec.Header().Get(DefaultCorrelationIDHeader))
}

func TestCorrelationID_HonorsConfiguredHeaderName(t *testing.T) {
	cfg := &CorrelationIDConfig{HeaderName: "X-Request-ID"}
	handler := CorrelationID(cfg)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Empty(t, rec.Header().Get(DefaultCorrelationIDHeader))
}

func TestGetCorrelationID_DefaultsToUnknown(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "unknown", GetCorrelationID(req.Context()))
}
