package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors used by the API and verification flows.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	itemsProcessedTotal *prometheus.CounterVec
	verifyDuration      *prometheus.HistogramVec
	verifierInflight    *prometheus.GaugeVec
	jobsTotal           *prometheus.CounterVec
	jobsActive          *prometheus.GaugeVec
	resultsPersisted    *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "verify_engine",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "verify_engine",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		itemsProcessedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "verify_engine",
				Name:      "items_processed_total",
				Help:      "Total number of identifiers processed by kind and outcome category.",
			},
			[]string{"kind", "outcome"},
		),
		verifyDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "verify_engine",
				Name:      "verify_duration_seconds",
				Help:      "Network verification duration in seconds grouped by kind.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"kind"},
		),
		verifierInflight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "verify_engine",
				Name:      "verifier_inflight",
				Help:      "Current number of in-flight network verifications grouped by kind.",
			},
			[]string{"kind"},
		),
		jobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "verify_engine",
				Name:      "jobs_total",
				Help:      "Total number of verification jobs reaching a terminal status.",
			},
			[]string{"kind", "status"},
		),
		jobsActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "verify_engine",
				Name:      "jobs_active",
				Help:      "Current number of running verification jobs grouped by kind.",
			},
			[]string{"kind"},
		),
		resultsPersisted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "verify_engine",
				Name:      "results_persisted_total",
				Help:      "Total number of result messages written to the store by kind.",
			},
			[]string{"kind"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.itemsProcessedTotal,
		m.verifyDuration,
		m.verifierInflight,
		m.jobsTotal,
		m.jobsActive,
		m.resultsPersisted,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncItemProcessed(kind string, outcome string) {
	if m == nil {
		return
	}
	outcomeLabel := strings.TrimSpace(strings.ToLower(outcome))
	if outcomeLabel == "" {
		outcomeLabel = "accepted"
	}
	m.itemsProcessedTotal.WithLabelValues(normalizeKind(kind), outcomeLabel).Inc()
}

func (m *Metrics) ObserveVerifyDuration(kind string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.verifyDuration.WithLabelValues(normalizeKind(kind)).Observe(seconds)
}

func (m *Metrics) IncVerifierInFlight(kind string) {
	if m == nil {
		return
	}
	m.verifierInflight.WithLabelValues(normalizeKind(kind)).Inc()
}

func (m *Metrics) DecVerifierInFlight(kind string) {
	if m == nil {
		return
	}
	m.verifierInflight.WithLabelValues(normalizeKind(kind)).Dec()
}

func (m *Metrics) IncJobStarted(kind string) {
	if m == nil {
		return
	}
	m.jobsActive.WithLabelValues(normalizeKind(kind)).Inc()
}

func (m *Metrics) IncJobFinished(kind string, status string) {
	if m == nil {
		return
	}
	statusLabel := strings.TrimSpace(strings.ToLower(status))
	if statusLabel == "" {
		statusLabel = "unknown"
	}
	m.jobsActive.WithLabelValues(normalizeKind(kind)).Dec()
	m.jobsTotal.WithLabelValues(normalizeKind(kind), statusLabel).Inc()
}

func (m *Metrics) IncResultPersisted(kind string) {
	if m == nil {
		return
	}
	m.resultsPersisted.WithLabelValues(normalizeKind(kind)).Inc()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeKind(kind string) string {
	normalized := strings.ToLower(strings.TrimSpace(kind))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
