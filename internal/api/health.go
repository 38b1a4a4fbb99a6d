package api

import (
	"encoding/json"
	"net/http"
)

type HealthHandler struct {
	Store Store
	Queue Queue
}

type healthDTO struct {
	Status      string           `json:"status"`
	QueueDepths map[string]int64 `json:"queue_depths,omitempty"`
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if err := h.Store.Ping(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(healthDTO{Status: "postgres unreachable"})
		return
	}

	depths, err := h.Queue.Depths(r.Context())
	if err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(healthDTO{Status: "redis unreachable"})
		return
	}

	_ = json.NewEncoder(w).Encode(healthDTO{Status: "ok", QueueDepths: depths})
}
