// Package transport provides HTTPTransport: the retrying HTTP client the
// TelemetryClient and SyncWorker use to reach the ingestion service (§4.7).
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	maxAttempts      = 3
	baseDelay        = 1 * time.Second
	perAttemptTimeout = 10 * time.Second
)

// ErrClientRejected wraps a non-retryable 4xx response: a client contract
// violation, not a transient failure, so the caller should not retry.
type ErrClientRejected struct {
	StatusCode int
	Body       []byte
}

func (e *ErrClientRejected) Error() string {
	return fmt.Sprintf("server rejected request: %d: %s", e.StatusCode, string(e.Body))
}

// ErrExhausted wraps the last error seen after all retry attempts fail.
type ErrExhausted struct {
	Cause error
}

func (e *ErrExhausted) Error() string {
	return "retries exhausted: " + e.Cause.Error()
}

func (e *ErrExhausted) Unwrap() error {
	return e.Cause
}

// HTTPTransport posts JSON payloads to the ingestion service with the
// spec's fixed retry policy: up to 3 retries after the first attempt, delays
// 1s/2s/4s, no retry on 4xx, 10s per-attempt timeout (§4.7). Idempotent by construction -- every
// payload carries the caller's event_id, so the server safely absorbs a
// retried duplicate as a no-op success (§4.7: "idempotency guarantee").
type HTTPTransport struct {
	baseURL string
	token   string
	client  *http.Client
}

// New creates an HTTPTransport targeting baseURL (e.g. TELEMETRY_API_URL).
// token is sent as a bearer token when non-empty.
func New(baseURL, token string) *HTTPTransport {
	return &HTTPTransport{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: perAttemptTimeout},
	}
}

// Do sends method/path/body, retrying per §4.7. body may be nil.
func (t *HTTPTransport) Do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	backoff := retry.WithMaxRetries(maxAttempts, retry.NewExponential(baseDelay))

	var (
		lastErr      error
		responseBody []byte
	)

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		resp, respBody, err := t.attempt(ctx, method, path, body)
		if err != nil {
			lastErr = err

			return retry.RetryableError(err)
		}

		if resp >= http.StatusInternalServerError {
			lastErr = fmt.Errorf("server error: %d: %s", resp, string(respBody))

			return retry.RetryableError(lastErr)
		}

		if resp >= http.StatusBadRequest {
			return &ErrClientRejected{StatusCode: resp, Body: respBody}
		}

		responseBody = respBody

		return nil
	})
	if err != nil {
		var rejected *ErrClientRejected
		if errors.As(err, &rejected) {
			return nil, rejected
		}

		return nil, &ErrExhausted{Cause: lastErr}
	}

	return responseBody, nil
}

// attempt performs a single HTTP round trip, returning the status code and
// response body (read fully so it can be inspected after the connection is
// released back to the pool).
func (t *HTTPTransport) attempt(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, perAttemptTimeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(attemptCtx, method, t.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}

	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return resp.StatusCode, respBody, nil
}
