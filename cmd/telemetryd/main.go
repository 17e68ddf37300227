// Package main provides the telemetry ingestion service: the single-writer
// HTTP daemon that accepts agent-run telemetry and persists it to the
// embedded store (§4 core components).
package main

import (
	"flag"
	"log"
	"log/slog"
	"os"

	"github.com/telemetry-run/telemetryd/internal/api"
	"github.com/telemetry-run/telemetryd/internal/cache"
	"github.com/telemetry-run/telemetryd/internal/store"
	"github.com/telemetry-run/telemetryd/internal/writerguard"
)

// Version information.
const (
	version = "1.0.0-dev"
	name    = "telemetryd"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	serverConfig := api.LoadServerConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: serverConfig.LogLevel,
	}))

	logger.Info("starting telemetry ingestion service",
		slog.String("service", name),
		slog.String("version", version),
	)

	storeConfig, err := store.LoadConfig()
	if err != nil {
		logger.Error("invalid store configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Acquire the single-writer lock before opening the store (§4.2): a
	// second process racing to start must fail distinctly, not corrupt the
	// database by both holding it open.
	guard, err := writerguard.Acquire(storeConfig.DatabasePath + ".lock")
	if err != nil {
		logger.Error("failed to acquire writer lock",
			slog.String("error", err.Error()),
			slog.String("lock_path", storeConfig.DatabasePath+".lock"),
		)
		os.Exit(1)
	}

	defer func() {
		if err := guard.Release(); err != nil {
			logger.Error("failed to release writer lock", slog.String("error", err.Error()))
		}
	}()

	st, err := store.Open(storeConfig, logger)
	if err != nil {
		logger.Error("failed to open store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("failed to close store", slog.String("error", err.Error()))
		}
	}()

	metadata := cache.New(st)

	logger.Info("loaded server configuration",
		slog.String("host", serverConfig.Host),
		slog.Int("port", serverConfig.Port),
		slog.Duration("read_timeout", serverConfig.ReadTimeout),
		slog.Duration("write_timeout", serverConfig.WriteTimeout),
		slog.Duration("shutdown_timeout", serverConfig.ShutdownTimeout),
		slog.String("log_level", serverConfig.LogLevel.String()),
		slog.String("database_path", storeConfig.DatabasePath),
	)

	server := api.NewServer(&serverConfig, st, metadata)

	if err := server.Start(); err != nil {
		logger.Error("server failed to start", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("telemetry ingestion service stopped")
}
