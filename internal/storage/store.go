// Package storage is the Postgres source of truth for merchants and
// shipments, including the due-for-poll page query the scheduler runs on.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"shipwatch/internal/domain"
)

var ErrNotFound = errors.New("not found")

type Store struct{ db *pgxpool.Pool }

func New(db *pgxpool.Pool) *Store { return &Store{db} }

func (s *Store) Ping(ctx context.Context) error {
	return errors.Wrap(s.db.Ping(ctx), "ping postgres")
}

// FindDueForPoll returns one page of shipments due for a carrier poll:
// undelivered, unarchived, carrier resolved, merchant active, next_poll_at
// reached. Ordered by id so paging is stable across calls within a run.
func (s *Store) FindDueForPoll(ctx context.Context, offset, limit int) ([]domain.PollCandidate, error) {
	rows, err := s.db.Query(ctx, `
select s.id, s.expected_delivery_date
  from shipments s
  join merchants m on m.id = s.merchant_id
 where s.delivered_at is null
   and not s.archived
   and s.carrier_code is not null
   and m.status = 'active'
   and s.next_poll_at <= now()
 order by s.id
offset $1 limit $2`, offset, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query due shipments")
	}
	defer rows.Close()

	var out []domain.PollCandidate
	for rows.Next() {
		var c domain.PollCandidate
		if err := rows.Scan(&c.ID, &c.ExpectedDeliveryDate); err != nil {
			return nil, errors.Wrap(err, "scan candidate")
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "read due shipments")
	}
	return out, nil
}

const shipmentCols = `id, merchant_id, order_ref, carrier_code, tracking_number, status,
shipped_at, expected_delivery_date, delayed, delivered_at, archived,
next_poll_at, last_polled_at, poll_fail_count, last_error, created_at, updated_at`

func scanShipment(row pgx.Row) (*domain.Shipment, error) {
	var sh domain.Shipment
	err := row.Scan(
		&sh.ID, &sh.MerchantID, &sh.OrderRef, &sh.CarrierCode, &sh.TrackingNumber, &sh.Status,
		&sh.ShippedAt, &sh.ExpectedDeliveryDate, &sh.Delayed, &sh.DeliveredAt, &sh.Archived,
		&sh.NextPollAt, &sh.LastPolledAt, &sh.PollFailCount, &sh.LastError, &sh.CreatedAt, &sh.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "scan shipment")
	}
	return &sh, nil
}

type CreateShipmentParams struct {
	MerchantID           string
	OrderRef             string
	CarrierCode          *string
	TrackingNumber       *string
	ShippedAt            time.Time
	ExpectedDeliveryDate *time.Time
}

func (s *Store) CreateShipment(ctx context.Context, p CreateShipmentParams) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(ctx, `insert into shipments(
id, merchant_id, order_ref, carrier_code, tracking_number, status,
shipped_at, expected_delivery_date, next_poll_at
) values ($1,$2,$3,$4,$5,'pending',$6,$7,now())`,
		id, p.MerchantID, p.OrderRef, p.CarrierCode, p.TrackingNumber,
		p.ShippedAt, p.ExpectedDeliveryDate,
	)
	if err != nil {
		return "", errors.Wrap(err, "insert shipment")
	}
	return id, nil
}

func (s *Store) GetShipment(ctx context.Context, id string) (*domain.Shipment, error) {
	return scanShipment(s.db.QueryRow(ctx,
		`select `+shipmentCols+` from shipments where id = $1`, id))
}

// PollShipment joins in the merchant fields the poll-job handler needs, so a
// poll costs a single read.
type PollShipment struct {
	domain.Shipment
	GraceHours     int
	MerchantStatus domain.MerchantStatus
}

func (s *Store) GetShipmentForPoll(ctx context.Context, id string) (*PollShipment, error) {
	var sh PollShipment
	err := s.db.QueryRow(ctx, `
select s.id, s.merchant_id, s.order_ref, s.carrier_code, s.tracking_number, s.status,
       s.shipped_at, s.expected_delivery_date, s.delayed, s.delivered_at, s.archived,
       s.next_poll_at, s.last_polled_at, s.poll_fail_count, s.last_error, s.created_at, s.updated_at,
       m.grace_hours, m.status
  from shipments s
  join merchants m on m.id = s.merchant_id
 where s.id = $1`, id).Scan(
		&sh.ID, &sh.MerchantID, &sh.OrderRef, &sh.CarrierCode, &sh.TrackingNumber, &sh.Status,
		&sh.ShippedAt, &sh.ExpectedDeliveryDate, &sh.Delayed, &sh.DeliveredAt, &sh.Archived,
		&sh.NextPollAt, &sh.LastPolledAt, &sh.PollFailCount, &sh.LastError, &sh.CreatedAt, &sh.UpdatedAt,
		&sh.GraceHours, &sh.MerchantStatus,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get shipment for poll")
	}
	return &sh, nil
}

type ShipmentFilter struct {
	MerchantID string
	Status     domain.Status
	Delayed    *bool
	Limit      int
}

func (s *Store) ListShipments(ctx context.Context, f ShipmentFilter) ([]domain.Shipment, error) {
	q := `select ` + shipmentCols + ` from shipments where merchant_id = $1`
	args := []any{f.MerchantID}
	if f.Status != "" {
		args = append(args, f.Status)
		q += fmt.Sprintf(" and status = $%d", len(args))
	}
	if f.Delayed != nil {
		args = append(args, *f.Delayed)
		q += fmt.Sprintf(" and delayed = $%d", len(args))
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit)
	q += fmt.Sprintf(" order by created_at desc limit $%d", len(args))

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list shipments")
	}
	defer rows.Close()
	return collectShipments(rows)
}

// ListDelayed returns a merchant's currently delayed, still-undelivered
// shipments, oldest deadline first. Feeds the CSV export.
func (s *Store) ListDelayed(ctx context.Context, merchantID string) ([]domain.Shipment, error) {
	rows, err := s.db.Query(ctx, `
select `+shipmentCols+`
  from shipments
 where merchant_id = $1
   and delayed
   and delivered_at is null
   and not archived
 order by expected_delivery_date asc`, merchantID)
	if err != nil {
		return nil, errors.Wrap(err, "list delayed shipments")
	}
	defer rows.Close()
	return collectShipments(rows)
}

func collectShipments(rows pgx.Rows) ([]domain.Shipment, error) {
	var out []domain.Shipment
	for rows.Next() {
		sh, err := scanShipment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sh)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "read shipments")
	}
	return out, nil
}

// PollOutcome is what a completed carrier poll writes back. DeliveredAt nil
// means still in flight; Delayed reflects the deadline check at poll time.
type PollOutcome struct {
	Status      domain.Status
	DeliveredAt *time.Time
	Delayed     bool
	NextPollAt  time.Time
	PolledAt    time.Time
}

// ApplyPollResult records a successful poll. This is the only write path that
// advances next_poll_at forward, which is what makes interrupted scheduler
// runs self-healing.
func (s *Store) ApplyPollResult(ctx context.Context, shipmentID string, out PollOutcome) error {
	tag, err := s.db.Exec(ctx, `
update shipments
   set status = $2,
       delivered_at = $3,
       delayed = $4,
       next_poll_at = $5,
       last_polled_at = $6,
       poll_fail_count = 0,
       last_error = null,
       updated_at = now()
 where id = $1`, shipmentID, out.Status, out.DeliveredAt, out.Delayed, out.NextPollAt, out.PolledAt)
	if err != nil {
		return errors.Wrap(err, "apply poll result")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordPollFailure bumps the failure counter and pushes next_poll_at out so
// a flapping carrier endpoint does not get hammered every tick.
func (s *Store) RecordPollFailure(ctx context.Context, shipmentID, msg string, nextPollAt time.Time) error {
	tag, err := s.db.Exec(ctx, `
update shipments
   set poll_fail_count = poll_fail_count + 1,
       last_error = $2,
       next_poll_at = $3,
       last_polled_at = now(),
       updated_at = now()
 where id = $1`, shipmentID, msg, nextPollAt)
	if err != nil {
		return errors.Wrap(err, "record poll failure")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ApplyTrackingEvent applies a carrier status callback by tracking number.
// Delivery clears the delayed flag; the due-predicate stops further polling
// once delivered_at is set.
func (s *Store) ApplyTrackingEvent(ctx context.Context, carrierCode, trackingNumber string, status domain.Status, occurredAt time.Time) (string, error) {
	var deliveredAt *time.Time
	if status == domain.StatusDelivered {
		deliveredAt = &occurredAt
	}
	var id string
	err := s.db.QueryRow(ctx, `
update shipments
   set status = $3,
       delivered_at = coalesce($4, delivered_at),
       delayed = case when $4 is null then delayed else false end,
       updated_at = now()
 where carrier_code = $1
   and tracking_number = $2
   and not archived
 returning id`, carrierCode, trackingNumber, status, deliveredAt).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", errors.Wrap(err, "apply tracking event")
	}
	return id, nil
}
