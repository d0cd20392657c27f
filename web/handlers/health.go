package handlers

import (
	"net/http"

	"go.uber.org/zap"
)

func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	if h.Deps.Health != nil {
		if err := h.Deps.Health(r.Context()); err != nil {
			h.Deps.Logger.Warn("health check failed", zap.Error(err))
			renderJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})

			return
		}
	}

	renderJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
