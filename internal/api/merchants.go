package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"shipwatch/internal/calendar"
	"shipwatch/internal/domain"
	"shipwatch/internal/storage"
)

type MerchantHandler struct {
	Store Store
}

type createMerchantReq struct {
	Name               string `json:"name"`
	DefaultTransitDays int    `json:"default_transit_days"`
	GraceHours         *int   `json:"grace_hours"`
}

type merchantDTO struct {
	ID                 string                `json:"id"`
	Name               string                `json:"name"`
	Status             domain.MerchantStatus `json:"status"`
	DefaultTransitDays int                   `json:"default_transit_days"`
	GraceHours         int                   `json:"grace_hours"`
	CreatedAt          time.Time             `json:"created_at"`
	UpdatedAt          time.Time             `json:"updated_at"`
}

func toMerchantDTO(m *domain.Merchant) merchantDTO {
	return merchantDTO{
		ID:                 m.ID,
		Name:               m.Name,
		Status:             m.Status,
		DefaultTransitDays: m.DefaultTransitDays,
		GraceHours:         m.GraceHours,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

func (h *MerchantHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createMerchantReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		http.Error(w, "name required", http.StatusBadRequest)
		return
	}
	if req.DefaultTransitDays < 0 {
		http.Error(w, "default_transit_days must not be negative", http.StatusBadRequest)
		return
	}

	grace := calendar.DefaultGraceHours
	if req.GraceHours != nil {
		if *req.GraceHours < 0 {
			http.Error(w, "grace_hours must not be negative", http.StatusBadRequest)
			return
		}
		grace = *req.GraceHours
	}

	id, err := h.Store.CreateMerchant(r.Context(), storage.CreateMerchantParams{
		Name:               req.Name,
		DefaultTransitDays: req.DefaultTransitDays,
		GraceHours:         grace,
	})
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]any{"id": id})
}

func (h *MerchantHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	m, err := h.Store.GetMerchant(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(toMerchantDTO(m))
}

type updateSettingsReq struct {
	DefaultTransitDays *int    `json:"default_transit_days"`
	GraceHours         *int    `json:"grace_hours"`
	Status             *string `json:"status"`
}

func (h *MerchantHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateSettingsReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.DefaultTransitDays != nil && *req.DefaultTransitDays < 0 {
		http.Error(w, "default_transit_days must not be negative", http.StatusBadRequest)
		return
	}
	if req.GraceHours != nil && *req.GraceHours < 0 {
		http.Error(w, "grace_hours must not be negative", http.StatusBadRequest)
		return
	}

	var status *domain.MerchantStatus
	if req.Status != nil {
		s := domain.MerchantStatus(strings.ToLower(strings.TrimSpace(*req.Status)))
		if !domain.ValidMerchantStatus(s) {
			http.Error(w, "unknown status", http.StatusBadRequest)
			return
		}
		status = &s
	}

	err := h.Store.UpdateMerchantSettings(r.Context(), id, storage.MerchantSettingsParams{
		DefaultTransitDays: req.DefaultTransitDays,
		GraceHours:         req.GraceHours,
		Status:             status,
	})
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	m, err := h.Store.GetMerchant(r.Context(), id)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(toMerchantDTO(m))
}
