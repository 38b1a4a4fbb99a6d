package domain

import "time"

type Status string

const (
	StatusPending        Status = "pending"
	StatusInTransit      Status = "in_transit"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusException      Status = "exception"
)

func ValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusInTransit, StatusOutForDelivery, StatusDelivered, StatusException:
		return true
	}
	return false
}

type MerchantStatus string

const (
	MerchantActive    MerchantStatus = "active"
	MerchantFrozen    MerchantStatus = "frozen"
	MerchantCancelled MerchantStatus = "cancelled"
)

func ValidMerchantStatus(s MerchantStatus) bool {
	switch s {
	case MerchantActive, MerchantFrozen, MerchantCancelled:
		return true
	}
	return false
}

// Shipment is the persisted record (source of truth). ExpectedDeliveryDate is
// nil while the ETA is unknown; CarrierCode is nil until the carrier has been
// resolved, which keeps the shipment out of the poll rotation.
type Shipment struct {
	ID                   string
	MerchantID           string
	OrderRef             string
	CarrierCode          *string
	TrackingNumber       *string
	Status               Status
	ShippedAt            time.Time
	ExpectedDeliveryDate *time.Time
	Delayed              bool
	DeliveredAt          *time.Time
	Archived             bool
	NextPollAt           time.Time
	LastPolledAt         *time.Time
	PollFailCount        int
	LastError            *string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Merchant carries the per-merchant delay-tracking settings. DefaultTransitDays
// seeds a shipment's ETA when the caller does not supply transit time;
// GraceHours widens the delay deadline past end-of-day.
type Merchant struct {
	ID                 string
	Name               string
	Status             MerchantStatus
	DefaultTransitDays int
	GraceHours         int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
