package usecase

import (
	"context"
	"time"

	"github.com/dreschagin/cloudsink/internal/application/port"
	"github.com/dreschagin/cloudsink/internal/domain/entity"
	"github.com/dreschagin/cloudsink/internal/domain/service"
	"github.com/dreschagin/cloudsink/internal/domain/valueobject"
	"github.com/dreschagin/cloudsink/pkg/logger"
)

// QueueWriterConfig - параметры QueueWriter
type QueueWriterConfig struct {
	Connection string
	Factory    port.QueueStoreFactory
	Observer   port.DeliveryObserver
}

// QueueWriter отправляет события в именованные очереди.
// Батч одной очереди склеивается через перевод строки и уходит одним сообщением.
type QueueWriter struct {
	lifecycle lifecycle[port.QueueStore]
	sanitizer *service.NameSanitizer
	names     *service.NameCache
	queues    ResourceHandle[string, port.Queue]
	buffer    payloadBuffer
	observer  port.DeliveryObserver
	logger    *logger.Logger
}

// NewQueueWriter создает новый QueueWriter
func NewQueueWriter(cfg QueueWriterConfig, sanitizer *service.NameSanitizer, log *logger.Logger) *QueueWriter {
	if sanitizer == nil {
		sanitizer = service.NewNameSanitizer()
	}

	return &QueueWriter{
		lifecycle: lifecycle[port.QueueStore]{
			sink:       port.SinkQueue,
			connection: cfg.Connection,
			factory:    cfg.Factory,
		},
		sanitizer: sanitizer,
		names:     service.NewNameCache(),
		observer:  cfg.Observer,
		logger:    log.With("sink", string(port.SinkQueue)),
	}
}

// State возвращает текущее состояние writer
func (w *QueueWriter) State() WriterState {
	return w.lifecycle.state
}

// Close освобождает соединение с хранилищем
func (w *QueueWriter) Close() error {
	return w.lifecycle.close()
}

// Write отправляет одно событие как одно сообщение
func (w *QueueWriter) Write(ctx context.Context, event entity.LogEvent) error {
	if event.IsEmpty() {
		return nil
	}

	store, err := w.lifecycle.ensure(ctx, w.logger)
	if err != nil {
		return err
	}

	w.buffer.appendLine(event.Message())
	return w.flush(ctx, store, w.resolve(event), 1)
}

// WriteBatch отправляет по одному сообщению на очередь
func (w *QueueWriter) WriteBatch(ctx context.Context, events []entity.LogEvent) (Receipt, error) {
	if len(events) <= 1 {
		return writeSingle(ctx, events, w.Write)
	}

	store, err := w.lifecycle.ensure(ctx, w.logger)
	if err != nil {
		return failAll(len(events)), err
	}

	groups := service.GroupBy(events, w.resolve)
	return deliverGroups(groups, func(group eventGroup) error {
		for _, event := range group.Items {
			if !event.IsEmpty() {
				w.buffer.appendLine(event.Message())
			}
		}
		if w.buffer.len() == 0 {
			return nil
		}
		return w.flush(ctx, store, group.Key, len(group.Items))
	})
}

func (w *QueueWriter) resolve(event entity.LogEvent) valueobject.DestinationKey {
	return valueobject.NewDestinationKey(w.names.Lookup(event.Destination().Resource, w.sanitizer.RepairQueue), "")
}

func (w *QueueWriter) flush(ctx context.Context, store port.QueueStore, key valueobject.DestinationKey, events int) error {
	startedAt := time.Now()
	payload := w.buffer.joined()
	size := len(payload)
	defer w.buffer.release()

	queue, err := w.queues.Ensure(ctx, key.Resource, store.OpenQueue)
	if err == nil {
		if err = queue.Enqueue(ctx, payload); err != nil {
			w.queues.Reset()
		}
	}

	observe(ctx, w.observer, port.DeliveryStat{
		Sink:        port.SinkQueue,
		Destination: key.String(),
		Events:      events,
		Bytes:       size,
		Err:         err,
	}, startedAt)

	if err != nil {
		w.logger.Error("Failed to enqueue log events", err,
			"queue", key.Resource,
			"events", events,
		)
		return &DeliveryError{Sink: port.SinkQueue, Destination: key, Events: events, Err: err}
	}

	w.logger.Debug("Log events enqueued", "queue", key.Resource, "events", events, "bytes", size)
	return nil
}
