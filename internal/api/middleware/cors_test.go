package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type testCORSConfig struct {
	origins []string
	methods []string
	headers []string
	maxAge  int
}

func (c testCORSConfig) GetAllowedOrigins() []string { return c.origins }
func (c testCORSConfig) GetAllowedMethods() []string { return c.methods }
func (c testCORSConfig) GetAllowedHeaders() []string { return c.headers }
func (c testCORSConfig) GetMaxAge() int              { return c.maxAge }

func TestCORS_ExposesCorrelationIDHeader(t *testing.T) {
	cfg := testCORSConfig{origins: []string{"*"}}
	handler := CORS(cfg)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, DefaultCorrelationIDHeader, rec.Header().Get("Access-Control-Expose-Headers"))
}

func TestCORS_PreflightShortCircuitsWithNoContent(t *testing.T) {
	cfg := testCORSConfig{origins: []string{"*"}, methods: []string{"GET", "POST"}}
	handler := CORS(cfg)(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/runs", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "GET, POST", rec.Header().Get("Access-Control-Allow-Methods"))
}

func TestCORS_EchoesAllowedOrigin(t *testing.T) {
	cfg := testCORSConfig{origins: []string{"https://dashboard.example.com"}}
	handler := CORS(cfg)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "https://dashboard.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}
