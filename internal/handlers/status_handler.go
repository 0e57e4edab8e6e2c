package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pactum/internal/services/dispatch"
)

// StatusHandler exposes aggregate dispatch counters for dashboards.
type StatusHandler struct {
	dispatch *dispatch.Service
	logger   arbor.ILogger
}

func NewStatusHandler(dispatchService *dispatch.Service, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		dispatch: dispatchService,
		logger:   logger,
	}
}

// GetStatusHandler serves GET /api/status with per-outcome job counts.
func (h *StatusHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	stats, err := h.dispatch.Stats(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to collect dispatch stats")
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, stats)
}
