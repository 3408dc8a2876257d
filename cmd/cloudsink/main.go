package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	// Application
	"github.com/dreschagin/cloudsink/internal/application/port"
	"github.com/dreschagin/cloudsink/internal/application/usecase"

	// Domain
	"github.com/dreschagin/cloudsink/internal/domain/valueobject"

	// Infrastructure
	"github.com/dreschagin/cloudsink/internal/infrastructure/observability/cloudwatch"
	"github.com/dreschagin/cloudsink/internal/infrastructure/observability/prometheus"

	// Interfaces
	httpInterface "github.com/dreschagin/cloudsink/internal/interfaces/http"
	"github.com/dreschagin/cloudsink/internal/interfaces/http/handler"
	"github.com/dreschagin/cloudsink/internal/interfaces/http/middleware"

	// Shared
	"github.com/dreschagin/cloudsink/pkg/config"
	"github.com/dreschagin/cloudsink/pkg/logger"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	// 1. Загружаем конфигурацию
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Инициализируем logger
	log := logger.New(cfg.LogLevel)
	log.Info("Starting CloudSink",
		"sink", cfg.Sink.Kind,
		"backend", cfg.Sink.Backend,
	)

	// 3. Наблюдатели доставки (Prometheus, CloudWatch)
	observers := port.DeliveryObservers{}

	var metricsExporter httpInterface.MetricsExporter
	if cfg.Metrics.PrometheusEnabled {
		registry := promclient.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		promMetrics := prometheus.New(registry)
		observers = append(observers, promMetrics)
		metricsExporter = promMetrics
	}

	var metricsPublisher *cloudwatch.MetricsPublisher
	if cfg.Metrics.CloudWatch.Enabled {
		metricsPublisher, err = cloudwatch.NewMetricsPublisher(context.Background(), cloudwatch.MetricsPublisherConfig{
			Namespace:         cfg.Metrics.CloudWatch.Namespace,
			Region:            cfg.Metrics.CloudWatch.Region,
			Endpoint:          cfg.Metrics.CloudWatch.Endpoint,
			AccessKeyID:       cfg.Metrics.CloudWatch.AccessKeyID,
			SecretAccessKey:   cfg.Metrics.CloudWatch.SecretAccessKey,
			DefaultDimensions: cfg.Metrics.CloudWatch.Dimensions,
			FlushInterval:     cfg.Metrics.CloudWatch.FlushInterval,
		}, log.With("component", "cloudwatch-metrics"))
		if err != nil {
			log.Error("Failed to initialize CloudWatch metrics publisher", err)
			os.Exit(1)
		}
		observers = append(observers, metricsPublisher)
		log.Info("CloudWatch metrics enabled", "namespace", cfg.Metrics.CloudWatch.Namespace)
	}

	// 4. Dependency Injection - Application Layer

	writer, err := buildWriter(cfg.Sink, observers, log)
	if err != nil {
		log.Error("Failed to build sink writer", err)
		os.Exit(1)
	}
	shipLogsUC := usecase.NewShipLogsUseCase(writer, log)

	// 5. Dependency Injection - Interfaces Layer (HTTP Handlers)

	ingestHandler := handler.NewIngestHandler(shipLogsUC, handler.IngestConfig{
		MaxBodyBytes: cfg.Ingest.MaxBodyBytes,
		MaxEvents:    cfg.Ingest.MaxEvents,
		Defaults:     valueobject.NewDestinationKey(cfg.Sink.DefaultResource, cfg.Sink.DefaultObject),
	}, log)
	healthHandler := handler.NewHealthHandler(shipLogsUC)

	var limiter *middleware.IPRateLimiter
	if cfg.Ingest.RateLimitRPS > 0 {
		limiter = middleware.NewIPRateLimiter(cfg.Ingest.RateLimitRPS, cfg.Ingest.RateLimitBurst)
		defer limiter.Stop()
	}

	router := httpInterface.NewRouter(
		ingestHandler,
		healthHandler,
		metricsExporter,
		limiter,
		middleware.AuthConfig{
			Enabled:     cfg.Security.AuthEnabled,
			BearerToken: cfg.Security.AuthToken,
		},
		log,
	)

	// 6. Настраиваем HTTP сервер

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Канал для получения сигналов ОС
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Запускаем сервер в отдельной goroutine
	go func() {
		log.Info("HTTP server starting", "port", cfg.Server.Port)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server failed", err)
			os.Exit(1)
		}
	}()

	// 7. Ожидаем сигнал для graceful shutdown

	<-sigChan
	log.Info("Shutdown signal received, starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", err)
	}

	// Запросы завершены - закрываем клиент хранилища
	if err := shipLogsUC.Close(); err != nil {
		log.Error("Failed to close sink writer", err)
	}

	// Отправляем накопленные метрики
	if metricsPublisher != nil {
		if err := metricsPublisher.Close(shutdownCtx); err != nil {
			log.Error("Failed to flush CloudWatch metrics", err)
		}
	}

	log.Info("Server stopped gracefully")
}
