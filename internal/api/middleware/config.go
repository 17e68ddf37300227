// Package middleware provides HTTP middleware components for the telemetry ingestion API.
package middleware

import (
	"github.com/telemetry-run/telemetryd/internal/config"
)

const defaultRateLimitRPM = 600

// RateLimitConfig holds rate limiter configuration: a single per-client
// requests-per-minute budget (§5: "Optional rate limiting per client
// identifier, configurable per minute").
type RateLimitConfig struct {
	Enabled bool
	RPM     int
}

// LoadRateLimitConfig loads middleware config from environment variables.
func LoadRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		Enabled: config.GetEnvBool("TELEMETRY_RATE_LIMIT_ENABLED", false),
		RPM:     config.GetEnvInt("TELEMETRY_RATE_LIMIT_RPM", defaultRateLimitRPM),
	}
}
