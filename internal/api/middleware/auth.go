// Package middleware provides HTTP middleware components for the telemetry ingestion API.
package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

// Authentication error types for granular error handling.
var (
	// ErrMissingBearerToken is returned when no Authorization header is present.
	ErrMissingBearerToken = errors.New("missing bearer token")

	// ErrInvalidBearerToken is returned when the supplied token does not match the
	// configured value. Generic error prevents enumeration of the expected token.
	ErrInvalidBearerToken = errors.New("invalid bearer token")
)

// AuthError wraps one of the sentinel errors above with request-specific context.
type AuthError struct {
	Type    error
	Message string
}

func (e *AuthError) Error() string {
	if e.Message != "" {
		return "authentication failed: " + e.Type.Error() + ": " + e.Message
	}

	return "authentication failed: " + e.Type.Error()
}

func (e *AuthError) Unwrap() error {
	return e.Type
}

// extractBearerToken extracts the token from the Authorization: Bearer header.
// Rejects tokens containing newlines (header injection prevention) and trims
// surrounding whitespace, matching the defensive parsing the rest of the API uses.
func extractBearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}

	token := strings.TrimPrefix(authHeader, "Bearer ")
	if strings.ContainsAny(token, "\r\n") {
		return "", false
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}

	return token, true
}

// secureCompare performs a constant-time comparison of two strings, preventing
// timing attacks that could otherwise leak the configured token byte-by-byte.
func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Authenticate creates a middleware that enforces a single configured bearer
// token (§6: "Optional bearer token matched against a configured value").
// When expectedToken is empty, authentication is disabled and every request
// passes through unmodified.
func Authenticate(expectedToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if expectedToken == "" {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, found := extractBearerToken(r)
			if !found {
				writeAuthError(w, r, logger, &AuthError{Type: ErrMissingBearerToken})

				return
			}

			if !secureCompare(token, expectedToken) {
				writeAuthError(w, r, logger, &AuthError{Type: ErrInvalidBearerToken})

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// writeAuthError writes the simple `{"detail": ...}` error shape and sets
// the WWW-Authenticate challenge header required by §6.
func writeAuthError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	correlationID := GetCorrelationID(r.Context())

	logger.Warn("authentication failed",
		slog.String("reason", err.Error()),
		slog.String("correlation_id", correlationID),
		slog.String("path", r.URL.Path),
		slog.String("remote_addr", r.RemoteAddr),
	)

	w.Header().Set("WWW-Authenticate", "Bearer")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)

	if encErr := json.NewEncoder(w).Encode(map[string]string{"detail": "Not authenticated"}); encErr != nil {
		logger.Error("failed to encode authentication error response",
			slog.String("correlation_id", correlationID),
			slog.Any("encode_error", encErr),
		)
	}
}
