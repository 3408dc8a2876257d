package entity

import (
	"time"

	"github.com/dreschagin/cloudsink/internal/domain/valueobject"
)

// LogEvent представляет одно событие лога, которое нужно доставить в удаленное хранилище.
// Событие неизменяемо: все поля задаются при создании и доступны только на чтение.
type LogEvent struct {
	message     string
	level       string
	timestamp   time.Time
	destination valueobject.DestinationKey
}

// NewLogEvent создает новое событие (Factory Method).
// destination содержит уже отрендеренные, но еще не исправленные имена ресурсов.
func NewLogEvent(message, level string, timestamp time.Time, destination valueobject.DestinationKey) LogEvent {
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	return LogEvent{
		message:     message,
		level:       level,
		timestamp:   timestamp.UTC(),
		destination: destination,
	}
}

// Message возвращает отрендеренное сообщение
func (e LogEvent) Message() string {
	return e.message
}

// Level возвращает уровень события
func (e LogEvent) Level() string {
	return e.level
}

// Timestamp возвращает время события (UTC)
func (e LogEvent) Timestamp() time.Time {
	return e.timestamp
}

// Destination возвращает сырые имена назначения
func (e LogEvent) Destination() valueobject.DestinationKey {
	return e.destination
}

// IsEmpty возвращает true, если писать нечего
func (e LogEvent) IsEmpty() bool {
	return e.message == ""
}
