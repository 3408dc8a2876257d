package http

import (
	"net/http"

	"github.com/dreschagin/cloudsink/internal/interfaces/http/handler"
	"github.com/dreschagin/cloudsink/internal/interfaces/http/middleware"
	"github.com/dreschagin/cloudsink/pkg/logger"
)

// MetricsExporter - Prometheus endpoint и HTTP middleware
type MetricsExporter interface {
	Handler() http.Handler
	Middleware(next http.Handler) http.Handler
}

// Router настраивает маршруты приложения
type Router struct {
	mux           *http.ServeMux
	ingestHandler *handler.IngestHandler
	healthHandler *handler.HealthHandler
	metrics       MetricsExporter
	limiter       *middleware.IPRateLimiter
	auth          middleware.AuthConfig
	logger        *logger.Logger
}

// NewRouter создает новый router. metrics и limiter могут быть nil.
func NewRouter(
	ingestHandler *handler.IngestHandler,
	healthHandler *handler.HealthHandler,
	metrics MetricsExporter,
	limiter *middleware.IPRateLimiter,
	auth middleware.AuthConfig,
	logger *logger.Logger,
) *Router {
	return &Router{
		mux:           http.NewServeMux(),
		ingestHandler: ingestHandler,
		healthHandler: healthHandler,
		metrics:       metrics,
		limiter:       limiter,
		auth:          auth,
		logger:        logger,
	}
}

// Setup настраивает все маршруты
func (rt *Router) Setup() http.Handler {
	// Probes и /metrics без авторизации
	rt.mux.HandleFunc("/healthz", rt.healthHandler.Healthz)
	rt.mux.HandleFunc("/readyz", rt.healthHandler.Readyz)
	if rt.metrics != nil {
		rt.mux.Handle("/metrics", rt.metrics.Handler())
	}

	var ingest http.Handler = http.HandlerFunc(rt.ingestHandler.ShipLogs)
	ingest = middleware.Decompression(ingest)
	ingest = middleware.Auth(rt.auth, rt.logger)(ingest)
	if rt.limiter != nil {
		ingest = middleware.RateLimit(rt.limiter)(ingest)
	}
	rt.mux.Handle("/api/v1/logs", ingest)

	// Применяем middleware
	var handler http.Handler = rt.mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(handler)
	}
	handler = middleware.Logger(rt.logger)(handler)
	handler = middleware.Recovery(rt.logger)(handler)

	return handler
}
