// Package api is the merchant-facing HTTP surface: shipment intake, delay
// queries, merchant settings, carrier status callbacks, and the CSV export of
// currently delayed shipments.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"shipwatch/internal/config"
	"shipwatch/internal/domain"
	"shipwatch/internal/storage"
)

// Store is the slice of the Postgres layer the handlers need.
type Store interface {
	CreateMerchant(ctx context.Context, p storage.CreateMerchantParams) (string, error)
	GetMerchant(ctx context.Context, id string) (*domain.Merchant, error)
	UpdateMerchantSettings(ctx context.Context, id string, p storage.MerchantSettingsParams) error
	CreateShipment(ctx context.Context, p storage.CreateShipmentParams) (string, error)
	GetShipment(ctx context.Context, id string) (*domain.Shipment, error)
	ListShipments(ctx context.Context, f storage.ShipmentFilter) ([]domain.Shipment, error)
	ListDelayed(ctx context.Context, merchantID string) ([]domain.Shipment, error)
	ApplyTrackingEvent(ctx context.Context, carrierCode, trackingNumber string, status domain.Status, occurredAt time.Time) (string, error)
	Ping(ctx context.Context) error
}

// Queue is what /healthz reports on.
type Queue interface {
	Depths(ctx context.Context) (map[string]int64, error)
}

func NewRouter(cfg config.Config, store Store, q Queue, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(requestLogger(log))

	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(corsHandler(cfg.CORSAllowedOrigins))
	}

	hh := &HealthHandler{Store: store, Queue: q}
	r.Get("/healthz", hh.Healthz)

	mh := &MerchantHandler{Store: store}
	sh := &ShipmentHandler{Store: store}
	th := &TrackingHandler{Store: store}
	eh := &ExportHandler{Store: store}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/merchants", mh.Create)
		r.Get("/merchants/{id}/settings", mh.GetSettings)
		r.Put("/merchants/{id}/settings", mh.UpdateSettings)
		r.Get("/merchants/{id}/delayed.csv", eh.Delayed)

		r.Post("/shipments", sh.Create)
		r.Get("/shipments", sh.List)
		r.Get("/shipments/{id}", sh.Get)

		r.Post("/tracking/events", th.Event)
	})

	return r
}
