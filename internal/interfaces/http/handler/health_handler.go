package handler

import (
	"net/http"

	"github.com/dreschagin/cloudsink/internal/application/usecase"
	"github.com/dreschagin/cloudsink/internal/interfaces/http/middleware"
)

// StateReporter сообщает состояние writer
type StateReporter interface {
	State() usecase.WriterState
}

// HealthHandler обслуживает probes.
type HealthHandler struct {
	writer StateReporter
}

func NewHealthHandler(writer StateReporter) *HealthHandler {
	return &HealthHandler{writer: writer}
}

// Healthz - процесс жив
func (h *HealthHandler) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Readyz - writer может принимать записи. Faulted writer не восстанавливается,
// поэтому под такой probe должен быть перезапущен.
func (h *HealthHandler) Readyz(w http.ResponseWriter, _ *http.Request) {
	state := h.writer.State()
	status := http.StatusOK
	if state == usecase.StateFaulted {
		status = http.StatusServiceUnavailable
	}

	middleware.WriteJSON(w, status, map[string]string{"writer": state.String()})
}
