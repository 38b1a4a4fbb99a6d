package storage

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"shipwatch/internal/domain"
)

type CreateMerchantParams struct {
	Name               string
	DefaultTransitDays int
	GraceHours         int
}

func (s *Store) CreateMerchant(ctx context.Context, p CreateMerchantParams) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(ctx, `insert into merchants(
id, name, status, default_transit_days, grace_hours
) values ($1,$2,'active',$3,$4)`,
		id, p.Name, p.DefaultTransitDays, p.GraceHours,
	)
	if err != nil {
		return "", errors.Wrap(err, "insert merchant")
	}
	return id, nil
}

func (s *Store) GetMerchant(ctx context.Context, id string) (*domain.Merchant, error) {
	var m domain.Merchant
	err := s.db.QueryRow(ctx, `
select id, name, status, default_transit_days, grace_hours, created_at, updated_at
  from merchants
 where id = $1`, id).Scan(
		&m.ID, &m.Name, &m.Status, &m.DefaultTransitDays, &m.GraceHours, &m.CreatedAt, &m.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get merchant")
	}
	return &m, nil
}

// MerchantSettingsParams updates only the fields that are set; nil leaves the
// stored value alone.
type MerchantSettingsParams struct {
	DefaultTransitDays *int
	GraceHours         *int
	Status             *domain.MerchantStatus
}

func (s *Store) UpdateMerchantSettings(ctx context.Context, id string, p MerchantSettingsParams) error {
	tag, err := s.db.Exec(ctx, `
update merchants
   set default_transit_days = coalesce($2, default_transit_days),
       grace_hours = coalesce($3, grace_hours),
       status = coalesce($4, status),
       updated_at = now()
 where id = $1`, id, p.DefaultTransitDays, p.GraceHours, p.Status)
	if err != nil {
		return errors.Wrap(err, "update merchant settings")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
