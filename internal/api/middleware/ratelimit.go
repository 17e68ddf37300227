// Package middleware provides HTTP middleware components for the telemetry ingestion API.
package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	rateLimiterCleanupInterval = 5 * time.Minute
	rateLimiterIdleTimeout     = 1 * time.Hour
	minutesPerSecond           = 60.0
)

type (
	// RateLimiter provides rate limiting for incoming requests, keyed by a
	// per-client identifier (§5: "Optional rate limiting per client
	// identifier, configurable per minute").
	RateLimiter interface {
		// Allow checks if a request from clientID should be allowed.
		Allow(clientID string) bool
	}

	// InMemoryRateLimiter implements RateLimiter using golang.org/x/time/rate,
	// one token bucket per client identifier. Suitable for the single-node
	// deployment model this spec targets; memory is bounded by periodic
	// cleanup of idle clients.
	InMemoryRateLimiter struct {
		mu            sync.RWMutex
		clients       map[string]*clientLimiter
		rps           float64
		burst         int
		cleanupTicker *time.Ticker
		done          chan struct{}
		idleTimeout   time.Duration
	}

	clientLimiter struct {
		limiter    *rate.Limiter
		lastAccess time.Time
		mu         sync.Mutex
	}
)

// NewInMemoryRateLimiter creates a rate limiter allowing rpm requests per
// minute per client identifier, with burst capacity equal to rpm/60 truncated
// to an integer, with a minimum of 1 (a one-second burst at the sustained rate).
func NewInMemoryRateLimiter(rpm int) *InMemoryRateLimiter {
	rps := float64(rpm) / minutesPerSecond

	burst := int(rps)
	if burst < 1 {
		burst = 1
	}

	rl := &InMemoryRateLimiter{
		clients:     make(map[string]*clientLimiter),
		rps:         rps,
		burst:       burst,
		done:        make(chan struct{}),
		idleTimeout: rateLimiterIdleTimeout,
	}

	rl.startCleanup()

	return rl
}

// Allow implements RateLimiter.
func (rl *InMemoryRateLimiter) Allow(clientID string) bool {
	rl.mu.RLock()
	cl, ok := rl.clients[clientID]
	rl.mu.RUnlock()

	if !ok {
		rl.mu.Lock()
		if cl, ok = rl.clients[clientID]; !ok {
			cl = &clientLimiter{
				limiter:    rate.NewLimiter(rate.Limit(rl.rps), rl.burst),
				lastAccess: time.Now(),
			}
			rl.clients[clientID] = cl
		}
		rl.mu.Unlock()
	}

	cl.mu.Lock()
	cl.lastAccess = time.Now()
	cl.mu.Unlock()

	return cl.limiter.Allow()
}

// Close stops the cleanup goroutine. Must be called when the limiter is no
// longer needed.
func (rl *InMemoryRateLimiter) Close() {
	if rl.cleanupTicker != nil {
		rl.cleanupTicker.Stop()
	}

	close(rl.done)
}

func (rl *InMemoryRateLimiter) startCleanup() {
	rl.cleanupTicker = time.NewTicker(rateLimiterCleanupInterval)

	go func() {
		for {
			select {
			case <-rl.cleanupTicker.C:
				rl.cleanup()
			case <-rl.done:
				return
			}
		}
	}()
}

func (rl *InMemoryRateLimiter) cleanup() {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for id, cl := range rl.clients {
		cl.mu.Lock()
		lastAccess := cl.lastAccess
		cl.mu.Unlock()

		if now.Sub(lastAccess) > rl.idleTimeout {
			delete(rl.clients, id)
		}
	}
}

// clientIdentifier derives the per-client rate-limit key. Requests carrying a
// bearer token are keyed by that token (stable across a client's IP churn);
// unauthenticated requests fall back to the remote address.
func clientIdentifier(r *http.Request) string {
	if token, ok := extractBearerToken(r); ok {
		return "token:" + token
	}

	return "addr:" + r.RemoteAddr
}

// RateLimit returns a middleware enforcing the configured per-client limit.
// On rejection it returns 429 with Retry-After and X-RateLimit-Remaining
// headers per §5, with the simple `{"detail": ...}` error body shape.
func RateLimit(limiter RateLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(clientIdentifier(r)) {
				correlationID := GetCorrelationID(r.Context())

				logger.Warn("rate limit exceeded",
					slog.String("correlation_id", correlationID),
					slog.String("path", r.URL.Path),
				)

				w.Header().Set("Retry-After", "60")
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)

				body := map[string]string{"detail": "Rate limit exceeded. Please retry after some time."}
				if err := json.NewEncoder(w).Encode(body); err != nil {
					logger.Error("failed to write rate limit response",
						slog.String("correlation_id", correlationID),
						slog.String("error", err.Error()),
					)
				}

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
