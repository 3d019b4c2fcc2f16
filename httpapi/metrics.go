package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/repowatch/repowatch/core"
)

// Metric names the ingestion pipeline reports through core.MetricsRecorder.
const (
	MetricDeliveriesTotal  = "ingest.deliveries.total"
	MetricIngestDurationMS = "ingest.duration_ms"
)

// Metrics owns a private Prometheus registry holding the HTTP surface
// instruments plus the pipeline counters. It doubles as the
// core.MetricsRecorder handed to the webhook processor.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	deliveriesTotal *prometheus.CounterVec
	ingestDuration  *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"handler", "method"},
		),
		deliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webhook_deliveries_total",
				Help: "Total number of webhook deliveries by terminal status",
			},
			[]string{"event_type", "status", "action"},
		),
		ingestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "webhook_ingest_duration_seconds",
				Help:    "Duration of webhook delivery processing",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"event_type", "status"},
		),
	}

	m.registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.deliveriesTotal,
		m.ingestDuration,
	)

	return m
}

// ScrapeHandler serves this registry in the Prometheus exposition format.
func (m *Metrics) ScrapeHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	switch name {
	case MetricDeliveriesTotal:
		m.deliveriesTotal.
			WithLabelValues(tags["event_type"], tags["status"], tags["action"]).
			Add(float64(value))
	}
}

func (m *Metrics) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	switch name {
	case MetricIngestDurationMS:
		m.ingestDuration.
			WithLabelValues(tags["event_type"], tags["status"]).
			Observe(value / 1000)
	}
}

var _ core.MetricsRecorder = (*Metrics)(nil)

// instrument wraps a handler with request count and duration instruments.
func (m *Metrics) instrument(handlerName string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		handler(wrapped, r)

		m.requestDuration.
			WithLabelValues(handlerName, r.Method).
			Observe(time.Since(started).Seconds())
		m.requestsTotal.
			WithLabelValues(handlerName, r.Method, strconv.Itoa(wrapped.statusCode)).
			Inc()
	}
}

// statusRecorder captures the status code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.statusCode = code
	rec.ResponseWriter.WriteHeader(code)
}
