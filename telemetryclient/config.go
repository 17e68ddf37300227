package telemetryclient

import (
	"log/slog"
	"path/filepath"
	"time"

	"github.com/telemetry-run/telemetryd/internal/bufferfile"
	"github.com/telemetry-run/telemetryd/internal/config"
	"github.com/telemetry-run/telemetryd/internal/exporter"
	"github.com/telemetry-run/telemetryd/internal/transport"
)

const defaultBaseDir = "."

// Config holds the environment-driven settings for constructing a Client
// (§6 "Configuration (environment)").
type Config struct {
	// APIURL is the client's primary ingestion endpoint (TELEMETRY_API_URL).
	APIURL string
	// AuthToken is sent as a bearer token when non-empty.
	AuthToken string
	// BufferDir is the BufferFile spool directory (TELEMETRY_NDJSON_DIR,
	// default {TELEMETRY_BASE_DIR}/raw).
	BufferDir string
	// SyncInterval overrides SyncWorker's default ~60s drain schedule.
	SyncInterval time.Duration

	// ExportEnabled/ExportURL configure the optional secondary sink
	// (GOOGLE_SHEETS_API_ENABLED/GOOGLE_SHEETS_API_URL -- named for the
	// reference secondary sink §1 calls out as an external collaborator).
	ExportEnabled bool
	ExportURL     string
}

// LoadConfig loads Config from environment variables with sensible
// defaults.
func LoadConfig() Config {
	baseDir := config.GetEnvStr("TELEMETRY_BASE_DIR", defaultBaseDir)

	return Config{
		APIURL:        config.GetEnvStr("TELEMETRY_API_URL", "http://localhost:8765"),
		AuthToken:     config.GetEnvStr("TELEMETRY_API_AUTH_TOKEN", ""),
		BufferDir:     config.GetEnvStr("TELEMETRY_NDJSON_DIR", filepath.Join(baseDir, "raw")),
		SyncInterval:  config.GetEnvDuration("TELEMETRY_SYNC_INTERVAL", 0),
		ExportEnabled: config.GetEnvBool("GOOGLE_SHEETS_API_ENABLED", false),
		ExportURL:     config.GetEnvStr("GOOGLE_SHEETS_API_URL", ""),
	}
}

// NewFromEnv wires together HTTPTransport, BufferFile, and (if enabled)
// ExternalExporter per cfg, and returns a running Client.
func NewFromEnv(cfg Config, logger *slog.Logger) (*Client, error) {
	buffer, err := bufferfile.Open(cfg.BufferDir)
	if err != nil {
		return nil, err
	}

	t := transport.New(cfg.APIURL, cfg.AuthToken)
	exp := exporter.New(cfg.ExportEnabled, cfg.ExportURL, cfg.APIURL, cfg.AuthToken, logger)

	return New(t, buffer, exp, logger, cfg.SyncInterval), nil
}
