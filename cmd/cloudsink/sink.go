package main

import (
	"fmt"

	"github.com/dreschagin/cloudsink/internal/application/port"
	"github.com/dreschagin/cloudsink/internal/application/usecase"
	"github.com/dreschagin/cloudsink/internal/domain/service"
	"github.com/dreschagin/cloudsink/internal/infrastructure/messaging/nats"
	"github.com/dreschagin/cloudsink/internal/infrastructure/messaging/redis"
	"github.com/dreschagin/cloudsink/internal/infrastructure/observability/cloudwatch"
	"github.com/dreschagin/cloudsink/internal/infrastructure/persistence/dynamodb"
	"github.com/dreschagin/cloudsink/internal/infrastructure/persistence/postgres"
	s3storage "github.com/dreschagin/cloudsink/internal/infrastructure/storage/s3"
	"github.com/dreschagin/cloudsink/pkg/config"
	"github.com/dreschagin/cloudsink/pkg/logger"
)

// buildWriter выбирает writer и фабрику хранилища по SINK_KIND / SINK_BACKEND.
// Клиент хранилища создается лениво, при первой записи.
func buildWriter(cfg config.SinkConfig, observer port.DeliveryObserver, log *logger.Logger) (usecase.BatchWriter, error) {
	sanitizer := service.NewNameSanitizer()

	switch cfg.Kind {
	case "append":
		var factory port.AppendStoreFactory
		switch cfg.Backend {
		case "s3":
			factory = s3storage.NewAppendStoreFromConnection
		case "cloudwatch":
			factory = cloudwatch.NewLogsStoreFromConnection
		default:
			return nil, fmt.Errorf("unsupported append backend %q", cfg.Backend)
		}
		return usecase.NewAppendWriter(usecase.AppendWriterConfig{
			Connection: cfg.Connection,
			Factory:    factory,
			Observer:   observer,
		}, sanitizer, log), nil

	case "queue":
		var factory port.QueueStoreFactory
		switch cfg.Backend {
		case "nats":
			factory = nats.QueueStoreFactory(log)
		case "redis":
			factory = redis.NewQueueStoreFromConnection
		default:
			return nil, fmt.Errorf("unsupported queue backend %q", cfg.Backend)
		}
		return usecase.NewQueueWriter(usecase.QueueWriterConfig{
			Connection: cfg.Connection,
			Factory:    factory,
			Observer:   observer,
		}, sanitizer, log), nil

	case "table":
		var factory port.TableStoreFactory
		switch cfg.Backend {
		case "dynamodb":
			factory = dynamodb.NewTableStoreFromConnection
		case "postgres":
			factory = postgres.NewTableStoreFromConnection
		default:
			return nil, fmt.Errorf("unsupported table backend %q", cfg.Backend)
		}
		return usecase.NewTableWriter(usecase.TableWriterConfig{
			Connection: cfg.Connection,
			Factory:    factory,
			Observer:   observer,
		}, sanitizer, log), nil
	}

	return nil, fmt.Errorf("unsupported sink kind %q", cfg.Kind)
}
