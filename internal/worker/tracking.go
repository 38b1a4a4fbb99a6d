package worker

import (
	"context"
	"time"

	"shipwatch/internal/domain"
)

// TrackingClient fetches the current carrier status for a tracking number.
// Concrete carrier integrations implement this; the worker itself stays
// agnostic about how a poll is performed.
type TrackingClient interface {
	Track(ctx context.Context, carrierCode, trackingNumber string) (TrackingUpdate, error)
}

// TrackingUpdate is what a poll observed. An empty Status means the carrier
// reported nothing new; StatusAt, when known, is the carrier-side timestamp
// of the status change.
type TrackingUpdate struct {
	Status   domain.Status
	StatusAt *time.Time
}

// NoopClient reports no status change on every poll. It keeps the poll loop
// and ETA-based delay flagging running where no carrier integration is
// configured.
type NoopClient struct{}

func (NoopClient) Track(context.Context, string, string) (TrackingUpdate, error) {
	return TrackingUpdate{}, nil
}
