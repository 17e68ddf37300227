// Package exporter provides ExternalExporter: the optional fire-and-forget
// secondary sink TelemetryClient hands a copy of every payload to (§4.9).
package exporter

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/telemetry-run/telemetryd/internal/transport"
)

const queueSize = 256

// job is a single payload queued for export.
type job struct {
	method string
	path   string
	body   []byte
}

// ExternalExporter accepts payloads and posts them to a secondary endpoint in
// the background, never blocking the caller and never surfacing a failure
// (§4.9: "drops the payload [on exhaustion], logged at INFO").
type ExternalExporter struct {
	enabled   bool
	transport *transport.HTTPTransport
	logger    *slog.Logger
	queue     chan job
	wg        sync.WaitGroup
	stop      chan struct{}
}

// New builds an ExternalExporter targeting exportURL with the given bearer
// token. It is enabled only when enable is true and exportURL is both
// non-empty and distinct from ingestionURL -- a URL pointing back at the
// local ingestion host is a startup misconfiguration (it would durably loop
// every ingested event back into itself), so it is detected here and the
// exporter is forcibly disabled with a WARN rather than started (§4.9).
func New(enable bool, exportURL, ingestionURL, token string, logger *slog.Logger) *ExternalExporter {
	if logger == nil {
		logger = slog.Default()
	}

	e := &ExternalExporter{logger: logger, stop: make(chan struct{})}

	if !enable {
		return e
	}

	if exportURL == "" {
		logger.Warn("external exporter enabled but no export URL configured, disabling")

		return e
	}

	if sameHost(exportURL, ingestionURL) {
		logger.Warn("external exporter URL points at the local ingestion host, disabling",
			slog.String("export_url", exportURL))

		return e
	}

	e.enabled = true
	e.transport = transport.New(exportURL, token)
	e.queue = make(chan job, queueSize)

	e.wg.Add(1)

	go e.run()

	return e
}

// sameHost reports whether a and b name the same host and port. URLs that do
// not parse to a host are compared whole.
func sameHost(a, b string) bool {
	if b == "" {
		return false
	}

	ua, errA := url.Parse(a)
	ub, errB := url.Parse(b)

	if errA != nil || errB != nil || ua.Host == "" || ub.Host == "" {
		return strings.EqualFold(strings.TrimRight(a, "/"), strings.TrimRight(b, "/"))
	}

	return strings.EqualFold(ua.Host, ub.Host)
}

// Enabled reports whether the exporter is actively posting.
func (e *ExternalExporter) Enabled() bool {
	return e.enabled
}

// Post enqueues a payload for background export and returns immediately. A
// full queue silently drops the payload (logged at INFO) rather than
// blocking the caller's primary write path.
func (e *ExternalExporter) Post(method, path string, body []byte) {
	if !e.enabled {
		return
	}

	select {
	case e.queue <- job{method: method, path: path, body: body}:
	default:
		e.logger.Info("external exporter queue full, dropping payload", slog.String("path", path))
	}
}

// Close waits for the background worker to drain whatever is already queued
// and then stops it. Payloads posted after Close are not sent.
func (e *ExternalExporter) Close() {
	if !e.enabled {
		return
	}

	close(e.stop)
	e.wg.Wait()
}

func (e *ExternalExporter) run() {
	defer e.wg.Done()

	for {
		select {
		case <-e.stop:
			for {
				select {
				case j := <-e.queue:
					e.send(j)
				default:
					return
				}
			}
		case j := <-e.queue:
			e.send(j)
		}
	}
}

func (e *ExternalExporter) send(j job) {
	ctx := context.Background()

	_, err := e.transport.Do(ctx, j.method, j.path, j.body)
	if err == nil {
		return
	}

	e.logger.Info("external export failed, dropping payload",
		slog.String("path", j.path),
		slog.String("error", err.Error()),
	)
}
