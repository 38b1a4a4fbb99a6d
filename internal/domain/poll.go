package domain

import "time"

// UrgencyTier orders poll jobs in the queue; lower value = served first.
// TierMedium is reserved: nothing classifies into it today, but the ordering
// keeps a slot for a finer band between "due tomorrow" and "due later".
type UrgencyTier int

const (
	TierUrgent UrgencyTier = iota // expected delivery date already passed
	TierHigh                      // due within the next day
	TierMedium                    // reserved
	TierLow                       // due later, or ETA unknown
)

func (t UrgencyTier) String() string {
	switch t {
	case TierUrgent:
		return "urgent"
	case TierHigh:
		return "high"
	case TierMedium:
		return "medium"
	case TierLow:
		return "low"
	}
	return "unknown"
}

// Tiers lists every tier in priority order, highest urgency first.
func Tiers() []UrgencyTier {
	return []UrgencyTier{TierUrgent, TierHigh, TierMedium, TierLow}
}

// PollCandidate is the projection the scheduler reads per shipment. Every
// candidate returned by the store already satisfies the due-for-poll
// predicate; the scheduler does not re-validate it.
type PollCandidate struct {
	ID                   string
	ExpectedDeliveryDate *time.Time
}

const PollJobName = "poll"

// PollDedupeKey derives the queue dedupe key purely from the shipment id, so
// re-running the scheduler before a prior poll finished is a no-op.
func PollDedupeKey(shipmentID string) string {
	return "poll-" + shipmentID
}

// PollJob is the unit of work submitted to the queue. Created and discarded
// within a single scheduler run; persistence is the queue's concern.
type PollJob struct {
	Name       string
	ShipmentID string
	DedupeKey  string
	Priority   UrgencyTier
}

func NewPollJob(shipmentID string, tier UrgencyTier) PollJob {
	return PollJob{
		Name:       PollJobName,
		ShipmentID: shipmentID,
		DedupeKey:  PollDedupeKey(shipmentID),
		Priority:   tier,
	}
}

// RunResult reports one scheduler invocation back to the trigger. It is never
// persisted; the caller owns logging and alerting.
type RunResult struct {
	ShipmentsFound int
	JobsEnqueued   int
	Truncated      bool
	Errors         []string
	Duration       time.Duration
}
