package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"shipwatch/internal/calendar"
	"shipwatch/internal/domain"
	"shipwatch/internal/storage"
)

type ShipmentHandler struct {
	Store Store
}

type createShipmentReq struct {
	MerchantID     string  `json:"merchant_id"`
	OrderRef       string  `json:"order_ref"`
	CarrierCode    *string `json:"carrier_code"`
	TrackingNumber *string `json:"tracking_number"`
	ShippedAt      string  `json:"shipped_at"`    // RFC3339
	TransitDays    *int    `json:"transit_days"`  // business days; merchant default when absent
}

type shipmentDTO struct {
	ID                   string        `json:"id"`
	MerchantID           string        `json:"merchant_id"`
	OrderRef             string        `json:"order_ref"`
	CarrierCode          *string       `json:"carrier_code"`
	TrackingNumber       *string       `json:"tracking_number"`
	Status               domain.Status `json:"status"`
	ShippedAt            time.Time     `json:"shipped_at"`
	ExpectedDeliveryDate *time.Time    `json:"expected_delivery_date"`
	Delayed              bool          `json:"delayed"`
	DaysDelayed          int           `json:"days_delayed"`
	DeliveredAt          *time.Time    `json:"delivered_at,omitempty"`
	LastPolledAt         *time.Time    `json:"last_polled_at,omitempty"`
	LastError            *string       `json:"last_error,omitempty"`
	CreatedAt            time.Time     `json:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at"`
}

func toShipmentDTO(sh domain.Shipment, now time.Time) shipmentDTO {
	dto := shipmentDTO{
		ID:                   sh.ID,
		MerchantID:           sh.MerchantID,
		OrderRef:             sh.OrderRef,
		CarrierCode:          sh.CarrierCode,
		TrackingNumber:       sh.TrackingNumber,
		Status:               sh.Status,
		ShippedAt:            sh.ShippedAt,
		ExpectedDeliveryDate: sh.ExpectedDeliveryDate,
		Delayed:              sh.Delayed,
		DeliveredAt:          sh.DeliveredAt,
		LastPolledAt:         sh.LastPolledAt,
		LastError:            sh.LastError,
		CreatedAt:            sh.CreatedAt,
		UpdatedAt:            sh.UpdatedAt,
	}
	if sh.Delayed && sh.DeliveredAt == nil && sh.ExpectedDeliveryDate != nil {
		dto.DaysDelayed = calendar.DaysDelayed(*sh.ExpectedDeliveryDate, now)
	}
	return dto
}

func (h *ShipmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createShipmentReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	req.MerchantID = strings.TrimSpace(req.MerchantID)
	req.OrderRef = strings.TrimSpace(req.OrderRef)
	if req.MerchantID == "" || req.OrderRef == "" {
		http.Error(w, "merchant_id and order_ref required", http.StatusBadRequest)
		return
	}

	shippedAt, err := time.Parse(time.RFC3339, strings.TrimSpace(req.ShippedAt))
	if err != nil {
		http.Error(w, "invalid shipped_at (RFC3339)", http.StatusBadRequest)
		return
	}

	m, err := h.Store.GetMerchant(r.Context(), req.MerchantID)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "merchant not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	transit := m.DefaultTransitDays
	if req.TransitDays != nil {
		transit = *req.TransitDays
	}
	if transit < 0 {
		http.Error(w, "transit_days must not be negative", http.StatusBadRequest)
		return
	}

	// No transit estimate means no ETA; the shipment still gets polled, it
	// just never tightens cadence or trips the delay check.
	var eta *time.Time
	if transit > 0 {
		d, err := calendar.ExpectedDeliveryDate(shippedAt, transit)
		if err != nil {
			http.Error(w, "invalid transit_days", http.StatusBadRequest)
			return
		}
		eta = &d
	}

	id, err := h.Store.CreateShipment(r.Context(), storage.CreateShipmentParams{
		MerchantID:           req.MerchantID,
		OrderRef:             req.OrderRef,
		CarrierCode:          req.CarrierCode,
		TrackingNumber:       req.TrackingNumber,
		ShippedAt:            shippedAt,
		ExpectedDeliveryDate: eta,
	})
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":                     id,
		"expected_delivery_date": eta,
	})
}

func (h *ShipmentHandler) List(w http.ResponseWriter, r *http.Request) {
	merchantID := strings.TrimSpace(r.URL.Query().Get("merchant_id"))
	if merchantID == "" {
		http.Error(w, "merchant_id required", http.StatusBadRequest)
		return
	}

	f := storage.ShipmentFilter{MerchantID: merchantID}

	delayed := strings.TrimSpace(strings.ToLower(r.URL.Query().Get("delayed")))
	if delayed == "true" {
		t := true
		f.Delayed = &t
	} else if delayed == "false" {
		fa := false
		f.Delayed = &fa
	}

	if status := strings.TrimSpace(r.URL.Query().Get("status")); status != "" {
		s := domain.Status(status)
		if !domain.ValidStatus(s) {
			http.Error(w, "unknown status", http.StatusBadRequest)
			return
		}
		f.Status = s
	}

	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			f.Limit = n
		}
	}

	rows, err := h.Store.ListShipments(r.Context(), f)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	now := time.Now().UTC()
	out := make([]shipmentDTO, 0, len(rows))
	for _, sh := range rows {
		out = append(out, toShipmentDTO(sh, now))
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func (h *ShipmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	sh, err := h.Store.GetShipment(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(toShipmentDTO(*sh, time.Now().UTC()))
}
