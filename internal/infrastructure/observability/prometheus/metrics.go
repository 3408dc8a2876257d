package prometheus

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dreschagin/cloudsink/internal/application/port"
)

const namespace = "cloudsink"

// Metrics bundles prometheus collectors used by the sink service.
type Metrics struct {
	RequestsTotal      *prometheus.CounterVec
	RequestDurationSec *prometheus.HistogramVec
	AuthFailures       prometheus.Counter
	RateLimitDropped   prometheus.Counter

	DeliveriesTotal     *prometheus.CounterVec
	EventsTotal         *prometheus.CounterVec
	BytesTotal          *prometheus.CounterVec
	DeliveryDurationSec *prometheus.HistogramVec

	registry *prometheus.Registry
}

func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"route", "method", "status"}),
		RequestDurationSec: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
		AuthFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Total number of auth failures.",
		}),
		RateLimitDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_dropped_total",
			Help:      "Total number of requests dropped by rate limiter.",
		}),
		DeliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Total number of remote writes by sink and result.",
		}, []string{"sink", "result"}),
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Total number of log events by sink and result.",
		}, []string{"sink", "result"}),
		BytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivered_bytes_total",
			Help:      "Total number of payload bytes delivered.",
		}, []string{"sink"}),
		DeliveryDurationSec: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delivery_duration_seconds",
			Help:      "Remote write duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"sink"}),
		registry: registry,
	}

	registry.MustRegister(
		m.RequestsTotal,
		m.RequestDurationSec,
		m.AuthFailures,
		m.RateLimitDropped,
		m.DeliveriesTotal,
		m.EventsTotal,
		m.BytesTotal,
		m.DeliveryDurationSec,
	)

	return m
}

// ObserveDelivery implements port.DeliveryObserver.
func (m *Metrics) ObserveDelivery(_ context.Context, stat port.DeliveryStat) {
	sink := string(stat.Sink)
	result := "ok"
	if stat.Err != nil {
		result = "error"
	}

	m.DeliveriesTotal.WithLabelValues(sink, result).Inc()
	m.EventsTotal.WithLabelValues(sink, result).Add(float64(stat.Events))
	if stat.Err == nil {
		m.BytesTotal.WithLabelValues(sink).Add(float64(stat.Bytes))
	}
	m.DeliveryDurationSec.WithLabelValues(sink).Observe(stat.Duration.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startedAt := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		status := strconv.Itoa(wrapped.statusCode)
		route := normalizeRoute(r.URL.Path)
		m.RequestsTotal.WithLabelValues(route, r.Method, status).Inc()
		m.RequestDurationSec.WithLabelValues(route, r.Method, status).Observe(time.Since(startedAt).Seconds())

		switch wrapped.statusCode {
		case http.StatusUnauthorized:
			m.AuthFailures.Inc()
		case http.StatusTooManyRequests:
			m.RateLimitDropped.Inc()
		}
	})
}

func normalizeRoute(path string) string {
	switch {
	case path == "/api/v1/logs":
		return "/api/v1/logs"
	case path == "/healthz" || path == "/readyz" || path == "/metrics":
		return path
	case path == "/api/v1" || strings.HasPrefix(path, "/api/v1/"):
		return "/api/v1/*"
	default:
		return "other"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecorder) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

// Flush keeps streaming behavior for handlers that require it.
func (rw *statusRecorder) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
