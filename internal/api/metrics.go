// Package api provides the HTTP surface of the telemetry ingestion service.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metrics holds the Prometheus collectors exposed at GET /metrics (§4.3, §11:
// "Metrics -- github.com/prometheus/client_golang").
type metrics struct {
	registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	runsIngested    prometheus.Counter
	runsDuplicate   prometheus.Counter
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()

	m := &metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "telemetryd_http_requests_total",
			Help: "Total HTTP requests processed, labeled by route and status code.",
		}, []string{"route", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "telemetryd_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds, labeled by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		runsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telemetryd_runs_ingested_total",
			Help: "Total run events accepted via POST /api/v1/runs and /api/v1/runs/batch.",
		}),
		runsDuplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telemetryd_runs_duplicate_total",
			Help: "Total run creations short-circuited by the event_id idempotency check.",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.runsIngested,
		m.runsDuplicate,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// observe records one completed request against the histogram/counter pair.
// route is the mux pattern (e.g. "/api/v1/runs/{event_id}"), not the raw
// path, so cardinality stays bounded regardless of how many distinct
// event_ids are requested.
func (m *metrics) observe(route, method string, status int, duration time.Duration) {
	m.requestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// metricsHandler returns the promhttp handler bound to this server's
// registry, for mounting at GET /metrics.
func (s *Server) metricsHandler() http.Handler {
	return promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{})
}

// instrumented wraps a handler so every request updates the metrics
// registry, mirroring middleware.RequestLogger's status-capturing
// responseWriter wrapper.
func instrumented(route string, m *metrics, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusCapture{ResponseWriter: w, statusCode: http.StatusOK}

		next(rw, r)

		m.observe(route, r.Method, rw.statusCode, time.Since(start))
	}
}

// statusCapture wraps http.ResponseWriter to capture the status code written,
// the same shape middleware.RequestLogger uses internally.
type statusCapture struct {
	http.ResponseWriter

	statusCode int
}

func (rw *statusCapture) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
