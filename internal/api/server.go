// Package api provides the HTTP surface of the telemetry ingestion service.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/telemetry-run/telemetryd/internal/api/middleware"
	"github.com/telemetry-run/telemetryd/internal/cache"
	"github.com/telemetry-run/telemetryd/internal/store"
)

// Server represents the telemetry ingestion HTTP server (§4.3).
type Server struct {
	httpServer  *http.Server
	logger      *slog.Logger
	config      *ServerConfig
	startTime   time.Time
	store       *store.Store
	metadata    *cache.MetadataCache
	rateLimiter middleware.RateLimiter
	metrics     *metrics
}

// NewServer creates the HTTP server, wiring the store and metadata cache and
// applying the middleware chain (§6): correlation id, panic recovery, bearer
// auth, rate limiting, request logging, CORS.
func NewServer(cfg *ServerConfig, st *store.Store, metadata *cache.MetadataCache) *Server {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))

	if st == nil {
		panic("telemetryd: store cannot be nil - this indicates a configuration error")
	}

	var rateLimiter middleware.RateLimiter
	if cfg.RateLimit != nil && cfg.RateLimit.Enabled {
		rateLimiter = middleware.NewInMemoryRateLimiter(cfg.RateLimit.RPM)
	}

	mux := http.NewServeMux()

	server := &Server{
		logger:      logger,
		config:      cfg,
		store:       st,
		metadata:    metadata,
		rateLimiter: rateLimiter,
		metrics:     newMetrics(),
	}

	server.setupRoutes(mux)

	if cfg.AuthEnabled {
		logger.Info("bearer token authentication enabled")
	} else {
		logger.Warn("bearer token authentication disabled")
	}

	if rateLimiter != nil {
		logger.Info("rate limiting enabled", slog.Int("rpm", cfg.RateLimit.RPM))
	}

	handler := middleware.Apply(mux,
		middleware.WithCorrelationID(middleware.LoadCorrelationIDConfig()),
		middleware.WithRecovery(logger),
		middleware.WithAuth(cfg.Token(), logger),
		middleware.WithRateLimit(rateLimiter, logger),
		middleware.WithRequestLogger(logger),
		middleware.WithCORS(cfg.ToCORSConfig()),
	)

	server.httpServer = &http.Server{
		Addr:         cfg.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return server
}

// Start starts the HTTP server and blocks until shutdown. Handles graceful
// shutdown on SIGINT/SIGTERM (§5: "drains in-flight handlers up to a 30s
// deadline, then terminates").
func (s *Server) Start() error {
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid server configuration: %w", err)
	}

	s.startTime = time.Now()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("starting telemetry ingestion API server",
			slog.String("address", s.config.Address()),
			slog.Duration("read_timeout", s.config.ReadTimeout),
			slog.Duration("write_timeout", s.config.WriteTimeout),
			slog.Duration("shutdown_timeout", s.config.ShutdownTimeout),
		)

		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server failed to start",
				slog.String("address", s.config.Address()),
				slog.String("error", err.Error()),
			)

			serverErrors <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	select {
	case err := <-serverErrors:
		return err
	case sig := <-stop:
		s.logger.Info("received shutdown signal", slog.String("signal", sig.String()))

		return s.Shutdown()
	}
}

// Shutdown gracefully shuts down the HTTP server and closes dependencies.
// Exported so cmd/telemetryd can call it directly under a context deadline
// as well as from the signal path above.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("initiating server shutdown", slog.Duration("shutdown_timeout", s.config.ShutdownTimeout))

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("server shutdown failed", slog.String("error", err.Error()))

		return fmt.Errorf("server shutdown failed: %w", err)
	}

	if limiter, ok := s.rateLimiter.(*middleware.InMemoryRateLimiter); ok && limiter != nil {
		limiter.Close()
	}

	s.logger.Info("server shutdown completed successfully")

	return nil
}
