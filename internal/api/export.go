package api

import (
	"encoding/csv"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"shipwatch/internal/calendar"
	"shipwatch/internal/domain"
)

// ExportHandler serves the delayed-shipments CSV merchants pull into
// spreadsheets.
type ExportHandler struct {
	Store Store
}

var csvHeader = []string{
	"shipment_id", "order_ref", "carrier_code", "tracking_number",
	"status", "shipped_at", "expected_delivery_date", "days_delayed", "last_polled_at",
}

func (h *ExportHandler) Delayed(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Store.ListDelayed(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="delayed.csv"`)

	now := time.Now().UTC()
	cw := csv.NewWriter(w)
	_ = cw.Write(csvHeader)
	for _, sh := range rows {
		_ = cw.Write(csvRow(sh, now))
	}
	cw.Flush()
}

func csvRow(sh domain.Shipment, now time.Time) []string {
	days := 0
	eta := ""
	if sh.ExpectedDeliveryDate != nil {
		days = calendar.DaysDelayed(*sh.ExpectedDeliveryDate, now)
		eta = sh.ExpectedDeliveryDate.Format("2006-01-02")
	}
	polled := ""
	if sh.LastPolledAt != nil {
		polled = sh.LastPolledAt.Format(time.RFC3339)
	}
	return []string{
		sh.ID,
		sh.OrderRef,
		strOrEmpty(sh.CarrierCode),
		strOrEmpty(sh.TrackingNumber),
		string(sh.Status),
		sh.ShippedAt.Format(time.RFC3339),
		eta,
		strconv.Itoa(days),
		polled,
	}
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
