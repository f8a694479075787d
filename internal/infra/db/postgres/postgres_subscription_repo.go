package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"venue-membership/internal/domain"
	"venue-membership/internal/domain/model"
	"venue-membership/internal/domain/ports/repository"
)

var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

type subscriptionRepo struct{ pool *pgxpool.Pool }

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

const subscriptionColumns = `id, member_id, validity_days, started_at, ended_at, created_at`

func scanSubscription(row interface{ Scan(dest ...interface{}) error }) (*model.Subscription, error) {
	s := &model.Subscription{}
	if err := row.Scan(&s.ID, &s.MemberID, &s.ValidityDays, &s.StartedAt, &s.EndedAt, &s.CreatedAt); err != nil {
		return nil, mapScanErr(err)
	}
	return s, nil
}

// Save inserts a period. Periods are immutable, so an existing id is left as is.
func (r *subscriptionRepo) Save(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	const q = `
INSERT INTO subscriptions (id, member_id, validity_days, started_at, ended_at, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (id) DO NOTHING;`
	_, err := execSQL(ctx, r.pool, tx, q, s.ID, s.MemberID, s.ValidityDays, s.StartedAt, s.EndedAt, s.CreatedAt)
	return mapExecErr(err)
}

func (r *subscriptionRepo) FindLatestByMember(ctx context.Context, tx repository.Tx, memberID int64) (*model.Subscription, error) {
	const q = `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE member_id=$1 ORDER BY ended_at DESC LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, memberID)
	if err != nil {
		return nil, err
	}
	return scanSubscription(row)
}

func (r *subscriptionRepo) FindCovering(ctx context.Context, tx repository.Tx, memberID int64, at time.Time) (*model.Subscription, error) {
	const q = `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE member_id=$1 AND ended_at > $2 ORDER BY ended_at DESC LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, memberID, at)
	if err != nil {
		return nil, err
	}
	return scanSubscription(row)
}

func (r *subscriptionRepo) ListByMember(ctx context.Context, tx repository.Tx, memberID int64, limit int) ([]*model.Subscription, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE member_id=$1 ORDER BY ended_at DESC LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, memberID, limit)
	if err != nil {
		return nil, mapExecErr(err)
	}
	defer rows.Close()

	var out []*model.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, s)
	}
	return out, mapExecErr(rows.Err())
}
