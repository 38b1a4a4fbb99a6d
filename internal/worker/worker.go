// Package worker consumes poll jobs from the queue and performs the actual
// shipment check: ask the carrier, apply the outcome, flag delays, and book
// the next poll time. This is the only component that advances next_poll_at,
// which keeps interrupted scheduler runs self-healing.
package worker

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"shipwatch/internal/calendar"
	"shipwatch/internal/domain"
	"shipwatch/internal/storage"
)

type JobSource interface {
	Dequeue(ctx context.Context, block time.Duration) (*domain.PollJob, error)
	Complete(ctx context.Context, dedupeKey string) error
}

type ShipmentStore interface {
	GetShipmentForPoll(ctx context.Context, id string) (*storage.PollShipment, error)
	ApplyPollResult(ctx context.Context, shipmentID string, out storage.PollOutcome) error
	RecordPollFailure(ctx context.Context, shipmentID, msg string, nextPollAt time.Time) error
}

type Config struct {
	Concurrency   int
	CarrierRatePS int // polls per second against any one carrier
	DequeueBlock  time.Duration
}

type Worker struct {
	cfg    Config
	queue  JobSource
	store  ShipmentStore
	client TrackingClient
	log    *zap.Logger
	now    func() time.Time

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func New(cfg Config, queue JobSource, store ShipmentStore, client TrackingClient, log *zap.Logger) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.CarrierRatePS <= 0 {
		cfg.CarrierRatePS = 5
	}
	if cfg.DequeueBlock <= 0 {
		cfg.DequeueBlock = 5 * time.Second
	}
	return &Worker{
		cfg:      cfg,
		queue:    queue,
		store:    store,
		client:   client,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
		limiters: map[string]*rate.Limiter{},
	}
}

// Run blocks consuming jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.cfg.Concurrency; i++ {
		g.Go(func() error { return w.consume(ctx) })
	}
	return g.Wait()
}

func (w *Worker) consume(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		job, err := w.queue.Dequeue(ctx, w.cfg.DequeueBlock)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.log.Warn("dequeue failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}
		if job == nil {
			continue
		}
		w.handle(ctx, job)
	}
}

func (w *Worker) handle(ctx context.Context, job *domain.PollJob) {
	defer func() {
		if err := w.queue.Complete(ctx, job.DedupeKey); err != nil {
			w.log.Warn("release dedupe key failed",
				zap.String("shipment_id", job.ShipmentID), zap.Error(err))
		}
	}()

	sh, err := w.store.GetShipmentForPoll(ctx, job.ShipmentID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return
		}
		w.log.Error("load shipment failed",
			zap.String("shipment_id", job.ShipmentID), zap.Error(err))
		return
	}
	// The queue can hold a job for a shipment that stopped being pollable
	// after the scheduler saw it.
	if sh.DeliveredAt != nil || sh.Archived || sh.MerchantStatus != domain.MerchantActive {
		return
	}

	var carrier, trackingNo string
	if sh.CarrierCode != nil {
		carrier = *sh.CarrierCode
	}
	if sh.TrackingNumber != nil {
		trackingNo = *sh.TrackingNumber
	}
	if err := w.limiter(carrier).Wait(ctx); err != nil {
		return
	}

	now := w.now()
	update, err := w.client.Track(ctx, carrier, trackingNo)
	if err != nil {
		next := now.Add(failureBackoff(sh.PollFailCount + 1))
		if serr := w.store.RecordPollFailure(ctx, sh.ID, err.Error(), next); serr != nil {
			w.log.Error("record poll failure failed",
				zap.String("shipment_id", sh.ID), zap.Error(serr))
		}
		return
	}

	out := storage.PollOutcome{Status: sh.Status, Delayed: sh.Delayed, PolledAt: now}
	if update.Status != "" {
		out.Status = update.Status
	}
	if out.Status == domain.StatusDelivered {
		at := now
		if update.StatusAt != nil {
			at = *update.StatusAt
		}
		out.DeliveredAt = &at
		out.Delayed = false
		out.NextPollAt = now
	} else {
		if sh.ExpectedDeliveryDate != nil {
			grace := time.Duration(sh.GraceHours) * time.Hour
			out.Delayed = calendar.IsPastDeadline(*sh.ExpectedDeliveryDate, grace, now)
		}
		out.NextPollAt = now.Add(pollInterval(sh.ExpectedDeliveryDate, now))
	}

	if err := w.store.ApplyPollResult(ctx, sh.ID, out); err != nil {
		w.log.Error("apply poll result failed",
			zap.String("shipment_id", sh.ID), zap.Error(err))
		return
	}
	if out.Delayed && !sh.Delayed {
		w.log.Info("shipment flagged delayed",
			zap.String("shipment_id", sh.ID),
			zap.String("merchant_id", sh.MerchantID))
	}
}

func (w *Worker) limiter(carrier string) *rate.Limiter {
	w.mu.Lock()
	defer w.mu.Unlock()
	lim, ok := w.limiters[carrier]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(w.cfg.CarrierRatePS), w.cfg.CarrierRatePS)
		w.limiters[carrier] = lim
	}
	return lim
}

/// Poll cadence tightens as the deadline nears: overdue every 2h, due within
// a day every 4h, everything else every 8h.
func pollInterval(eta *time.Time, now time.Time) time.Duration {
	switch calendar.ClassifyUrgency(eta, now) {
	case domain.TierUrgent:
		return 2 * time.Hour
	case domain.TierHigh:
		return 4 * time.Hour
	}
	return 8 * time.Hour
}

// failureBackoff doubles per consecutive failure, capped at six hours.
func failureBackoff(failCount int) time.Duration {
	mins := math.Min(math.Pow(2, float64(failCount)), 360)
	return time.Duration(mins) * time.Minute
}
