package prometheus

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/dreschagin/cloudsink/internal/application/port"
)

func TestObserveDelivery(t *testing.T) {
	m := New(prometheus.NewRegistry())
	ctx := context.Background()

	m.ObserveDelivery(ctx, port.DeliveryStat{Sink: port.SinkAppend, Events: 3, Bytes: 42, Duration: 10 * time.Millisecond})
	m.ObserveDelivery(ctx, port.DeliveryStat{Sink: port.SinkAppend, Events: 2, Bytes: 10, Err: errors.New("boom")})

	if got := testutil.ToFloat64(m.EventsTotal.WithLabelValues("append", "ok")); got != 3 {
		t.Errorf("ok events = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.EventsTotal.WithLabelValues("append", "error")); got != 2 {
		t.Errorf("error events = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.BytesTotal.WithLabelValues("append")); got != 42 {
		t.Errorf("bytes = %v, want 42 (failed writes are not counted)", got)
	}
	if got := testutil.ToFloat64(m.DeliveriesTotal.WithLabelValues("append", "error")); got != 1 {
		t.Errorf("failed deliveries = %v, want 1", got)
	}
}

func TestMiddleware(t *testing.T) {
	m := New(prometheus.NewRegistry())
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("X-Result") {
		case "unauthorized":
			w.WriteHeader(http.StatusUnauthorized)
		case "limited":
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			w.WriteHeader(http.StatusAccepted)
		}
	}))

	for _, result := range []string{"", "unauthorized", "limited", "limited"} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/logs", nil)
		req.Header.Set("X-Result", result)
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("/api/v1/logs", "POST", "202")); got != 1 {
		t.Errorf("accepted requests = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.AuthFailures); got != 1 {
		t.Errorf("auth failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.RateLimitDropped); got != 2 {
		t.Errorf("rate limited = %v, want 2", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveDelivery(context.Background(), port.DeliveryStat{Sink: port.SinkQueue, Events: 1})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `cloudsink_events_total{result="ok",sink="queue"} 1`) {
		t.Fatalf("metrics output missing events counter:\n%s", rec.Body.String())
	}
}

func TestNormalizeRoute(t *testing.T) {
	tests := map[string]string{
		"/api/v1/logs":  "/api/v1/logs",
		"/api/v1/other": "/api/v1/*",
		"/healthz":      "/healthz",
		"/favicon.ico":  "other",
	}

	for path, want := range tests {
		if got := normalizeRoute(path); got != want {
			t.Errorf("normalizeRoute(%q) = %q, want %q", path, got, want)
		}
	}
}
