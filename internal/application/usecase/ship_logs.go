package usecase

import (
	"context"
	"sync"

	"github.com/dreschagin/cloudsink/internal/domain/entity"
	"github.com/dreschagin/cloudsink/pkg/logger"
)

// BatchWriter - общий интерфейс AppendWriter, QueueWriter и TableWriter
type BatchWriter interface {
	Write(ctx context.Context, event entity.LogEvent) error
	WriteBatch(ctx context.Context, events []entity.LogEvent) (Receipt, error)
	State() WriterState
	Close() error
}

// ShipLogsUseCase сериализует конкурентные вызовы к одному writer.
// Writer не потокобезопасен, поэтому все записи идут под мьютексом.
type ShipLogsUseCase struct {
	mu     sync.Mutex
	writer BatchWriter
	logger *logger.Logger
}

// NewShipLogsUseCase создает новый use case
func NewShipLogsUseCase(writer BatchWriter, logger *logger.Logger) *ShipLogsUseCase {
	return &ShipLogsUseCase{
		writer: writer,
		logger: logger,
	}
}

// Execute отправляет батч событий и возвращает судьбу каждого события
func (uc *ShipLogsUseCase) Execute(ctx context.Context, events []entity.LogEvent) (Receipt, error) {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	receipt, err := uc.writer.WriteBatch(ctx, events)
	if err != nil {
		uc.logger.Warn("Log batch not fully delivered",
			"events", len(events),
			"delivered", len(receipt.Delivered),
			"failed", len(receipt.Failed),
		)
		return receipt, err
	}

	uc.logger.Debug("Log batch delivered", "events", len(events))
	return receipt, nil
}

// State возвращает состояние writer
func (uc *ShipLogsUseCase) State() WriterState {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return uc.writer.State()
}

// Close закрывает writer при остановке сервиса
func (uc *ShipLogsUseCase) Close() error {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return uc.writer.Close()
}
