package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dreschagin/cloudsink/internal/application/port"
	"github.com/dreschagin/cloudsink/internal/domain/entity"
	"github.com/dreschagin/cloudsink/internal/domain/service"
	"github.com/dreschagin/cloudsink/internal/domain/valueobject"
	"github.com/dreschagin/cloudsink/pkg/logger"
)

const (
	// DefaultPartitionKey используется, если событие не задает partition key
	DefaultPartitionKey = "log"

	maxRetainedRows = 1024
)

// TableWriterConfig - параметры TableWriter
type TableWriterConfig struct {
	Connection string
	Factory    port.TableStoreFactory
	Observer   port.DeliveryObserver
}

// TableWriter пишет события строками в таблицу.
// Destination().Resource - имя таблицы, Destination().Object - partition key.
type TableWriter struct {
	lifecycle lifecycle[port.TableStore]
	sanitizer *service.NameSanitizer
	names     *service.NameCache
	tables    ResourceHandle[string, port.Table]
	rows      []port.TableRow
	newRowKey func() string
	observer  port.DeliveryObserver
	logger    *logger.Logger
}

// NewTableWriter создает новый TableWriter
func NewTableWriter(cfg TableWriterConfig, sanitizer *service.NameSanitizer, log *logger.Logger) *TableWriter {
	if sanitizer == nil {
		sanitizer = service.NewNameSanitizer()
	}

	return &TableWriter{
		lifecycle: lifecycle[port.TableStore]{
			sink:       port.SinkTable,
			connection: cfg.Connection,
			factory:    cfg.Factory,
		},
		sanitizer: sanitizer,
		names:     service.NewNameCache(),
		newRowKey: newRowKey,
		observer:  cfg.Observer,
		logger:    log.With("sink", string(port.SinkTable)),
	}
}

// State возвращает текущее состояние writer
func (w *TableWriter) State() WriterState {
	return w.lifecycle.state
}

// Close освобождает соединение с хранилищем
func (w *TableWriter) Close() error {
	return w.lifecycle.close()
}

// Write записывает одно событие одной строкой
func (w *TableWriter) Write(ctx context.Context, event entity.LogEvent) error {
	if event.IsEmpty() {
		return nil
	}

	store, err := w.lifecycle.ensure(ctx, w.logger)
	if err != nil {
		return err
	}

	w.rows = append(w.rows, w.toRow(event))
	return w.flush(ctx, store, w.resolve(event))
}

// WriteBatch делает один InsertRows на таблицу
func (w *TableWriter) WriteBatch(ctx context.Context, events []entity.LogEvent) (Receipt, error) {
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
				w.rows = append(w.rows, w.toRow(event))
			}
		}
		if len(w.rows) == 0 {
			return nil
		}
		return w.flush(ctx, store, group.Key)
	})
}

func (w *TableWriter) resolve(event entity.LogEvent) valueobject.DestinationKey {
	return valueobject.NewDestinationKey(w.names.Lookup(event.Destination().Resource, w.sanitizer.RepairTable), "")
}

func (w *TableWriter) toRow(event entity.LogEvent) port.TableRow {
	partitionKey := event.Destination().Object
	if partitionKey == "" {
		partitionKey = DefaultPartitionKey
	}

	return port.TableRow{
		PartitionKey: partitionKey,
		RowKey:       w.newRowKey(),
		Timestamp:    event.Timestamp(),
		Level:        event.Level(),
		Message:      event.Message(),
	}
}

func (w *TableWriter) flush(ctx context.Context, store port.TableStore, key valueobject.DestinationKey) error {
	startedAt := time.Now()
	events := len(w.rows)
	size := 0
	for _, row := range w.rows {
		size += len(row.Message)
	}
	defer w.releaseRows()

	table, err := w.tables.Ensure(ctx, key.Resource, store.OpenTable)
	if err == nil {
		if err = table.InsertRows(ctx, w.rows); err != nil {
			w.tables.Reset()
		}
	}

	observe(ctx, w.observer, port.DeliveryStat{
		Sink:        port.SinkTable,
		Destination: key.String(),
		Events:      events,
		Bytes:       size,
		Err:         err,
	}, startedAt)

	if err != nil {
		w.logger.Error("Failed to insert log rows", err,
			"table", key.Resource,
			"events", events,
		)
		return &DeliveryError{Sink: port.SinkTable, Destination: key, Events: events, Err: err}
	}

	w.logger.Debug("Log rows inserted", "table", key.Resource, "events", events)
	return nil
}

func (w *TableWriter) releaseRows() {
	if cap(w.rows) > maxRetainedRows {
		w.rows = nil
		return
	}
	clear(w.rows)
	w.rows = w.rows[:0]
}

// newRowKey возвращает time-ordered UUIDv7, чтобы строки сортировались по времени записи
func newRowKey() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
