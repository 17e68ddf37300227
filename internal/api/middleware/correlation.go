// Package middleware provides HTTP middleware components for the telemetry ingestion API.
package middleware

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"
	"unsafe"

	"github.com/telemetry-run/telemetryd/internal/config"
)

const (
	correlationIDSize = 8
	// correlationIDLength is the expected output length in hex characters (8 bytes = 16 hex chars).
	correlationIDLength = 16
	// DefaultCorrelationIDHeader is the header name used when
	// TELEMETRY_CORRELATION_HEADER is unset.
	DefaultCorrelationIDHeader = "X-Correlation-ID"
)

// correlationIDKey is the context key for correlation ID.
type correlationIDKey struct{}

// CorrelationIDConfig holds the correlation-id header name, read from the
// environment alongside every other middleware config in this package.
type CorrelationIDConfig struct {
	HeaderName string
}

// LoadCorrelationIDConfig loads correlation-id middleware config from
// environment variables.
func LoadCorrelationIDConfig() *CorrelationIDConfig {
	return &CorrelationIDConfig{
		HeaderName: config.GetEnvStr("TELEMETRY_CORRELATION_HEADER", DefaultCorrelationIDHeader),
	}
}

// CorrelationID creates a middleware that adds a correlation ID to each request.
// If the request already has cfg.HeaderName set, it uses that value.
// Otherwise, it generates a new correlation ID.
func CorrelationID(cfg *CorrelationIDConfig) func(http.Handler) http.Handler {
	if cfg == nil {
		cfg = &CorrelationIDConfig{HeaderName: DefaultCorrelationIDHeader}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			correlationID := r.Header.Get(cfg.HeaderName)

			// Generate new correlation ID if not provided
			if correlationID == "" {
				correlationID = generateCorrelationID()
			}

			// Add correlation ID to response headers
			w.Header().Set(cfg.HeaderName, correlationID)

			// Add correlation ID to request context
			ctx := context.WithValue(r.Context(), correlationIDKey{}, correlationID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetCorrelationID extracts the correlation ID from the request context.
func GetCorrelationID(ctx context.Context) string {
	if correlationID, ok := ctx.Value(correlationIDKey{}).(string); ok {
		return correlationID
	}

	return "unknown"
}

// generateCorrelationID generates a new correlation ID with proper fallback.
// Uses crypto/rand for primary generation, time+process-based entropy for fallback.
func generateCorrelationID() string {
	bytes := make([]byte, correlationIDSize)
	if _, err := rand.Read(bytes); err != nil {
		// Enhanced fallback: timestamp + process-based entropy
		timestamp := time.Now().UnixNano()
		// Add entropy from the address of the timestamp variable
		ptr := &timestamp
		//nolint:gosec // G103: Using pointer address for entropy in fallback case only
		entropy := uintptr(unsafe.Pointer(ptr))

		// Combine timestamp and memory address for better uniqueness
		combined := fmt.Sprintf("%x%x", timestamp, entropy)

		// Ensure we return exactly correlationIDLength characters (same as crypto version)
		if len(combined) > correlationIDLength {
			return combined[:correlationIDLength]
		}

		// Pad with trailing spaces if needed
		return fmt.Sprintf("%-*s", correlationIDLength, combined)
	}

	return hex.EncodeToString(bytes)
}
