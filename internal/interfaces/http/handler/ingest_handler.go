package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dreschagin/cloudsink/internal/application/dto"
	"github.com/dreschagin/cloudsink/internal/application/usecase"
	"github.com/dreschagin/cloudsink/internal/domain/entity"
	"github.com/dreschagin/cloudsink/internal/domain/valueobject"
	"github.com/dreschagin/cloudsink/internal/interfaces/http/middleware"
	"github.com/dreschagin/cloudsink/pkg/logger"
)

const (
	defaultMaxBodyBytes = 5 * 1024 * 1024
	defaultMaxEvents    = 10000
)

// LogShipper - то, что нужно handler от ShipLogsUseCase
type LogShipper interface {
	Execute(ctx context.Context, events []entity.LogEvent) (usecase.Receipt, error)
	State() usecase.WriterState
}

// IngestConfig - ограничения приема батчей
type IngestConfig struct {
	MaxBodyBytes int64
	MaxEvents    int
	Defaults     valueobject.DestinationKey // назначение для событий без resource/object
}

// IngestHandler принимает батчи событий по HTTP
type IngestHandler struct {
	shipper LogShipper
	cfg     IngestConfig
	logger  *logger.Logger
}

// NewIngestHandler создает новый handler
func NewIngestHandler(shipper LogShipper, cfg IngestConfig, logger *logger.Logger) *IngestHandler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = defaultMaxEvents
	}

	return &IngestHandler{
		shipper: shipper,
		cfg:     cfg,
		logger:  logger,
	}
}

// ShipLogs обрабатывает POST /api/v1/logs.
// Тело - JSON массив событий или одно событие.
func (h *IngestHandler) ShipLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		middleware.WriteJSON(w, http.StatusMethodNotAllowed, dto.ShipResultDTO{Error: "method not allowed"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes)
	defer r.Body.Close()

	payload, err := decodeEvents(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteJSON(w, http.StatusRequestEntityTooLarge, dto.ShipResultDTO{Error: "request body too large"})
			return
		}
		middleware.WriteJSON(w, http.StatusBadRequest, dto.ShipResultDTO{Error: err.Error()})
		return
	}

	if len(payload) > h.cfg.MaxEvents {
		middleware.WriteJSON(w, http.StatusRequestEntityTooLarge, dto.ShipResultDTO{
			Error: fmt.Sprintf("too many events: %d > %d", len(payload), h.cfg.MaxEvents),
		})
		return
	}

	events := dto.ToLogEvents(payload, h.cfg.Defaults)
	receipt, err := h.shipper.Execute(r.Context(), events)

	result := dto.ShipResultDTO{
		Accepted:  len(events),
		Delivered: nonNil(receipt.Delivered),
		Failed:    receipt.Failed,
	}
	if err == nil {
		middleware.WriteJSON(w, http.StatusOK, result)
		return
	}

	result.Error = err.Error()
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Failed to ship logs", err, "events", len(events))
	}
	middleware.WriteJSON(w, status, result)
}

// decodeEvents принимает массив событий или одиночный объект
func decodeEvents(body io.Reader) ([]dto.LogEventDTO, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, errors.New("empty request body")
	}

	if trimmed[0] == '{' {
		var single dto.LogEventDTO
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return nil, fmt.Errorf("invalid event: %w", err)
		}
		return []dto.LogEventDTO{single}, nil
	}

	var batch []dto.LogEventDTO
	if err := json.Unmarshal(trimmed, &batch); err != nil {
		return nil, fmt.Errorf("invalid event batch: %w", err)
	}
	return batch, nil
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, usecase.ErrConfiguration), errors.Is(err, usecase.ErrWriterFaulted):
		return http.StatusServiceUnavailable
	case errors.Is(err, usecase.ErrRemoteCall):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func nonNil(indexes []int) []int {
	if indexes == nil {
		return []int{}
	}
	return indexes
}
