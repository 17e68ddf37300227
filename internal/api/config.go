// Package api provides the HTTP surface of the telemetry ingestion service.
package api

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/telemetry-run/telemetryd/internal/api/middleware"
	"github.com/telemetry-run/telemetryd/internal/config"
)

const (
	// DefaultPort is the default HTTP server port (§6: "default 0.0.0.0:8765").
	DefaultPort = 8765
	// MaxPort is the maximum valid port number.
	MaxPort = 65535
	// DefaultHost is the default server host.
	DefaultHost = "0.0.0.0"
	// DefaultReadTimeout, DefaultWriteTimeout are the ambient HTTP tuning
	// defaults (§6: absent from the distilled spec, required by any real
	// http.Server).
	DefaultReadTimeout  = 15 * time.Second
	DefaultWriteTimeout = 15 * time.Second
	// DefaultShutdownTimeout is the drain deadline on signal shutdown (§5).
	DefaultShutdownTimeout = 30 * time.Second
	// DefaultCORSMaxAge is the default CORS preflight cache duration.
	DefaultCORSMaxAge = 86400
	// onlyValidWorkerCount is the single legal value of TELEMETRY_API_WORKERS
	// (§4.3: "Workers count is pinned to 1 ... any value > 1 is a fatal
	// misconfiguration").
	onlyValidWorkerCount = 1
)

// Static validation errors.
var (
	ErrInvalidPort            = errors.New("invalid port")
	ErrEmptyHost              = errors.New("host cannot be empty")
	ErrInvalidReadTimeout     = errors.New("read timeout must be positive")
	ErrInvalidWriteTimeout    = errors.New("write timeout must be positive")
	ErrInvalidShutdownTimeout = errors.New("shutdown timeout must be positive")
	ErrInvalidWorkerCount     = errors.New("workers must be exactly 1")
)

// ServerConfig holds HTTP server configuration (§6).
type ServerConfig struct {
	Host               string
	Port               int
	Workers            int
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	ShutdownTimeout    time.Duration
	LogLevel           slog.Level
	CORSAllowedOrigins []string
	CORSAllowedMethods []string
	CORSAllowedHeaders []string
	CORSMaxAge         int
	AuthEnabled        bool
	AuthToken          string
	RateLimit          *middleware.RateLimitConfig
}

// LoadServerConfig loads server configuration from environment variables
// with sensible defaults.
func LoadServerConfig() ServerConfig {
	return ServerConfig{
		Host:               config.GetEnvStr("TELEMETRY_API_HOST", DefaultHost),
		Port:               config.GetEnvInt("TELEMETRY_API_PORT", DefaultPort),
		Workers:            config.GetEnvInt("TELEMETRY_API_WORKERS", onlyValidWorkerCount),
		ReadTimeout:        config.GetEnvDuration("TELEMETRY_READ_TIMEOUT", DefaultReadTimeout),
		WriteTimeout:       config.GetEnvDuration("TELEMETRY_WRITE_TIMEOUT", DefaultWriteTimeout),
		ShutdownTimeout:    config.GetEnvDuration("TELEMETRY_SHUTDOWN_TIMEOUT", DefaultShutdownTimeout),
		LogLevel:           config.GetEnvLogLevel("TELEMETRY_LOG_LEVEL", slog.LevelInfo),
		CORSAllowedOrigins: config.ParseCommaSeparatedList(config.GetEnvStr("TELEMETRY_CORS_ALLOWED_ORIGINS", "*")),
		CORSAllowedMethods: config.ParseCommaSeparatedList(
			config.GetEnvStr("TELEMETRY_CORS_ALLOWED_METHODS", "GET,POST,PATCH,OPTIONS"),
		),
		CORSAllowedHeaders: []string{"Content-Type", "Authorization", "X-Correlation-ID"},
		CORSMaxAge:         DefaultCORSMaxAge,
		AuthEnabled:        config.GetEnvBool("TELEMETRY_API_AUTH_ENABLED", false),
		AuthToken:          config.GetEnvStr("TELEMETRY_API_AUTH_TOKEN", ""),
		RateLimit:          middleware.LoadRateLimitConfig(),
	}
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ToCORSConfig converts ServerConfig CORS fields to middleware.CORSConfig.
func (c ServerConfig) ToCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins: c.CORSAllowedOrigins,
		AllowedMethods: c.CORSAllowedMethods,
		AllowedHeaders: c.CORSAllowedHeaders,
		MaxAge:         c.CORSMaxAge,
	}
}

// Token returns the configured bearer token, or "" when auth is disabled --
// the value middleware.Authenticate treats as "no authentication required".
func (c ServerConfig) Token() string {
	if !c.AuthEnabled {
		return ""
	}

	return c.AuthToken
}

// CORSConfig holds CORS configuration options.
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	MaxAge         int
}

func (c CORSConfig) GetAllowedOrigins() []string { return c.AllowedOrigins }
func (c CORSConfig) GetAllowedMethods() []string { return c.AllowedMethods }
func (c CORSConfig) GetAllowedHeaders() []string { return c.AllowedHeaders }
func (c CORSConfig) GetMaxAge() int              { return c.MaxAge }

// Validate validates the server configuration. Workers != 1 is a fatal
// misconfiguration per §4.3/§5, not a recoverable default.
func (c ServerConfig) Validate() error {
	if c.Port <= 0 || c.Port > MaxPort {
		return fmt.Errorf("%w: %d, must be between 1 and %d", ErrInvalidPort, c.Port, MaxPort)
	}

	if c.Host == "" {
		return ErrEmptyHost
	}

	if c.Workers != onlyValidWorkerCount {
		return fmt.Errorf("%w: got %d", ErrInvalidWorkerCount, c.Workers)
	}

	if c.ReadTimeout <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidReadTimeout, c.ReadTimeout)
	}

	if c.WriteTimeout <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidWriteTimeout, c.WriteTimeout)
	}

	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidShutdownTimeout, c.ShutdownTimeout)
	}

	return nil
}
