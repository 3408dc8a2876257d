package dto

import (
	"time"

	"github.com/dreschagin/cloudsink/internal/domain/entity"
	"github.com/dreschagin/cloudsink/internal/domain/valueobject"
)

// LogEventDTO представляет событие лога, принятое через HTTP
type LogEventDTO struct {
	Message   string    `json:"message"`
	Level     string    `json:"level,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
	Resource  string    `json:"resource"`         // контейнер, очередь или таблица
	Object    string    `json:"object,omitempty"` // blob или partition key
}

// ToEntity конвертирует DTO в Domain Entity.
// Пустые Resource/Object заменяются значениями по умолчанию из defaults.
func (d LogEventDTO) ToEntity(defaults valueobject.DestinationKey) entity.LogEvent {
	destination := valueobject.NewDestinationKey(d.Resource, d.Object)
	if destination.Resource == "" {
		destination.Resource = defaults.Resource
	}
	if destination.Object == "" {
		destination.Object = defaults.Object
	}

	return entity.NewLogEvent(d.Message, d.Level, d.Timestamp, destination)
}

// ToLogEvents конвертирует слайс DTO в слайс Entity
func ToLogEvents(dtos []LogEventDTO, defaults valueobject.DestinationKey) []entity.LogEvent {
	events := make([]entity.LogEvent, len(dtos))
	for i, d := range dtos {
		events[i] = d.ToEntity(defaults)
	}
	return events
}

// ShipResultDTO - ответ на прием батча
type ShipResultDTO struct {
	Accepted  int    `json:"accepted"`
	Delivered []int  `json:"delivered"`
	Failed    []int  `json:"failed,omitempty"`
	Error     string `json:"error,omitempty"`
}
