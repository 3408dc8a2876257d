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

// AppendWriterConfig - параметры AppendWriter
type AppendWriterConfig struct {
	Connection string                  // уже разрешенная строка подключения
	Factory    port.AppendStoreFactory // создает клиент хранилища
	Observer   port.DeliveryObserver   // может быть nil
}

// AppendWriter дописывает события в append-only объекты (container + blob).
// Экземпляр рассчитан на одного вызывающего: внутренней синхронизации нет.
type AppendWriter struct {
	lifecycle  lifecycle[port.AppendStore]
	sanitizer  *service.NameSanitizer
	names      *service.NameCache
	containers ResourceHandle[string, port.AppendContainer]
	objects    ResourceHandle[valueobject.DestinationKey, port.AppendObject]
	buffer     payloadBuffer
	observer   port.DeliveryObserver
	logger     *logger.Logger
}

// NewAppendWriter создает новый AppendWriter
func NewAppendWriter(cfg AppendWriterConfig, sanitizer *service.NameSanitizer, log *logger.Logger) *AppendWriter {
	if sanitizer == nil {
		sanitizer = service.NewNameSanitizer()
	}

	return &AppendWriter{
		lifecycle: lifecycle[port.AppendStore]{
			sink:       port.SinkAppend,
			connection: cfg.Connection,
			factory:    cfg.Factory,
		},
		sanitizer: sanitizer,
		names:     service.NewNameCache(),
		observer:  cfg.Observer,
		logger:    log.With("sink", string(port.SinkAppend)),
	}
}

// State возвращает текущее состояние writer
func (w *AppendWriter) State() WriterState {
	return w.lifecycle.state
}

// Close освобождает соединение с хранилищем
func (w *AppendWriter) Close() error {
	return w.lifecycle.close()
}

// Write дописывает одно событие. Пустое сообщение - успешный no-op.
func (w *AppendWriter) Write(ctx context.Context, event entity.LogEvent) error {
	if event.IsEmpty() {
		return nil
	}

	store, err := w.lifecycle.ensure(ctx, w.logger)
	if err != nil {
		return err
	}

	key := w.resolve(event)
	w.buffer.appendLine(event.Message())
	return w.flush(ctx, store, key, 1)
}

// WriteBatch группирует события по назначению и делает один append на группу.
// Ошибка группы прерывает батч: она и все последующие группы попадают в Receipt.Failed.
func (w *AppendWriter) WriteBatch(ctx context.Context, events []entity.LogEvent) (Receipt, error) {
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

// resolve исправляет имена назначения события.
// Имя blob зависит от даты, поэтому идет мимо кэша.
func (w *AppendWriter) resolve(event entity.LogEvent) valueobject.DestinationKey {
	raw := event.Destination()
	return valueobject.NewDestinationKey(
		w.names.Lookup(raw.Resource, w.sanitizer.RepairContainer),
		w.sanitizer.RepairBlob(raw.Object),
	)
}

func (w *AppendWriter) open(ctx context.Context, store port.AppendStore, key valueobject.DestinationKey) (port.AppendObject, error) {
	container, err := w.containers.Ensure(ctx, key.Resource, store.OpenContainer)
	if err != nil {
		return nil, err
	}

	return w.objects.Ensure(ctx, key, func(ctx context.Context, key valueobject.DestinationKey) (port.AppendObject, error) {
		return container.OpenObject(ctx, key.Object)
	})
}

// flush отправляет содержимое буфера в key и освобождает буфер
func (w *AppendWriter) flush(ctx context.Context, store port.AppendStore, key valueobject.DestinationKey, events int) error {
	startedAt := time.Now()
	size := w.buffer.len()
	defer w.buffer.release()

	object, err := w.open(ctx, store, key)
	if err == nil {
		if err = object.Append(ctx, w.buffer.lines()); err != nil {
			// объект мог быть удален снаружи: при следующей записи проверим заново
			w.objects.Reset()
		}
	}

	observe(ctx, w.observer, port.DeliveryStat{
		Sink:        port.SinkAppend,
		Destination: key.String(),
		Events:      events,
		Bytes:       size,
		Err:         err,
	}, startedAt)

	if err != nil {
		w.logger.Error("Failed to append log events", err,
			"container", key.Resource,
			"blob", key.Object,
			"events", events,
		)
		return &DeliveryError{Sink: port.SinkAppend, Destination: key, Events: events, Err: err}
	}

	w.logger.Debug("Log events appended",
		"container", key.Resource,
		"blob", key.Object,
		"events", events,
		"bytes", size,
	)
	return nil
}

// writeSingle - короткий путь для батча из 0 или 1 события
func writeSingle(ctx context.Context, events []entity.LogEvent, write func(context.Context, entity.LogEvent) error) (Receipt, error) {
	if len(events) == 0 {
		return Receipt{}, nil
	}
	if err := write(ctx, events[0]); err != nil {
		return Receipt{Failed: []int{0}}, err
	}
	return Receipt{Delivered: []int{0}}, nil
}
