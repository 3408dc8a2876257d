package usecase

import (
	"errors"
	"fmt"

	"github.com/dreschagin/cloudsink/internal/application/port"
	"github.com/dreschagin/cloudsink/internal/domain/valueobject"
)

var (
	// ErrConfiguration - не удалось разобрать строку подключения или создать клиент
	ErrConfiguration = errors.New("sink configuration error")
	// ErrWriterFaulted - writer не инициализировался и больше не принимает записи
	ErrWriterFaulted = errors.New("sink writer is faulted")
	// ErrRemoteCall - ошибка create/exists/append/enqueue вызова
	ErrRemoteCall = errors.New("remote call failed")
)

// DeliveryError описывает неудачную запись в конкретное назначение.
// errors.Is(err, ErrRemoteCall) выполняется всегда, исходная ошибка доступна через errors.As.
type DeliveryError struct {
	Sink        port.SinkKind
	Destination valueobject.DestinationKey
	Events      int
	Err         error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s write to %q failed (%d events): %v", e.Sink, e.Destination.String(), e.Events, e.Err)
}

func (e *DeliveryError) Unwrap() []error {
	return []error{ErrRemoteCall, e.Err}
}
