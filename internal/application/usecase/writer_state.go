package usecase

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dreschagin/cloudsink/internal/application/port"
	"github.com/dreschagin/cloudsink/pkg/logger"
)

// WriterState - состояние writer: Uninitialized -> Ready -> (Faulted)
type WriterState int

const (
	StateUninitialized WriterState = iota
	StateReady
	StateFaulted
)

func (s WriterState) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateFaulted:
		return "faulted"
	default:
		return "uninitialized"
	}
}

// lifecycle лениво создает клиент хранилища при первой записи.
// Ошибка инициализации фатальна для экземпляра: повторной попытки нет.
type lifecycle[S any] struct {
	sink       port.SinkKind
	connection string
	factory    func(ctx context.Context, connection string) (S, error)

	state   WriterState
	store   S
	initErr error
}

func (l *lifecycle[S]) ensure(ctx context.Context, log *logger.Logger) (S, error) {
	var zero S

	switch l.state {
	case StateReady:
		return l.store, nil
	case StateFaulted:
		return zero, fmt.Errorf("%w: %w", ErrWriterFaulted, l.initErr)
	}

	if l.factory == nil {
		return zero, l.fault(log, fmt.Errorf("%w: no store factory for %s sink", ErrConfiguration, l.sink))
	}

	store, err := l.factory(ctx, l.connection)
	if err != nil {
		return zero, l.fault(log, fmt.Errorf("%w: %w", ErrConfiguration, err))
	}

	l.store = store
	l.state = StateReady
	log.Info("Sink writer initialized", "sink", string(l.sink))
	return store, nil
}

func (l *lifecycle[S]) fault(log *logger.Logger, err error) error {
	l.state = StateFaulted
	l.initErr = err
	log.Error("Failed to initialize sink writer", err, "sink", string(l.sink))
	return err
}

// close освобождает клиент хранилища, если он реализует io.Closer
func (l *lifecycle[S]) close() error {
	if l.state != StateReady {
		return nil
	}
	if closer, ok := any(l.store).(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// observe передает статистику записи наблюдателю, если он задан
func observe(ctx context.Context, observer port.DeliveryObserver, stat port.DeliveryStat, startedAt time.Time) {
	if observer == nil {
		return
	}
	stat.Duration = time.Since(startedAt)
	observer.ObserveDelivery(ctx, stat)
}
