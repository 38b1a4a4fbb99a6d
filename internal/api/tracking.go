package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"shipwatch/internal/domain"
	"shipwatch/internal/storage"
)

// TrackingHandler ingests carrier status callbacks. Delivery reported here
// short-circuits polling the same way a worker poll result does.
type TrackingHandler struct {
	Store Store
}

type trackingEventReq struct {
	CarrierCode    string `json:"carrier_code"`
	TrackingNumber string `json:"tracking_number"`
	Status         string `json:"status"`
	OccurredAt     string `json:"occurred_at"` // RFC3339 optional
}

func (h *TrackingHandler) Event(w http.ResponseWriter, r *http.Request) {
	var req trackingEventReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	req.CarrierCode = strings.TrimSpace(req.CarrierCode)
	req.TrackingNumber = strings.TrimSpace(req.TrackingNumber)
	if req.CarrierCode == "" || req.TrackingNumber == "" {
		http.Error(w, "carrier_code and tracking_number required", http.StatusBadRequest)
		return
	}

	status := domain.Status(strings.ToLower(strings.TrimSpace(req.Status)))
	if !domain.ValidStatus(status) {
		http.Error(w, "unknown status", http.StatusBadRequest)
		return
	}

	occurredAt := time.Now().UTC()
	if s := strings.TrimSpace(req.OccurredAt); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			http.Error(w, "invalid occurred_at (RFC3339)", http.StatusBadRequest)
			return
		}
		occurredAt = t
	}

	id, err := h.Store.ApplyTrackingEvent(r.Context(), req.CarrierCode, req.TrackingNumber, status, occurredAt)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "no shipment matches", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"shipment_id": id})
}
