package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"venue-membership/internal/domain"
	"venue-membership/internal/domain/model"
	"venue-membership/internal/domain/ports/repository"
)

var _ repository.MembershipRepository = (*membershipRepo)(nil)

type membershipRepo struct{ pool *pgxpool.Pool }

func NewMembershipRepo(pool *pgxpool.Pool) *membershipRepo {
	return &membershipRepo{pool: pool}
}

const membershipColumns = `id, member_id, is_active, last_activated_at, last_deactivated_at, last_renewed_at, created_at, updated_at`

func scanMembership(row interface{ Scan(dest ...interface{}) error }) (*model.Membership, error) {
	m := &model.Membership{}
	if err := row.Scan(&m.ID, &m.MemberID, &m.IsActive, &m.LastActivatedAt, &m.LastDeactivatedAt, &m.LastRenewedAt, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, mapScanErr(err)
	}
	return m, nil
}

// LockForMember get-or-creates the membership row and locks it FOR UPDATE.
// The insert never blocks on an existing row, so concurrent callers for the
// same member queue on the row lock.
func (r *membershipRepo) LockForMember(ctx context.Context, tx repository.Tx, memberID int64) (*model.Membership, error) {
	if !isTx(tx) {
		return nil, domain.ErrInvalidExecContext
	}
	const ins = `INSERT INTO memberships (member_id, is_active, created_at, updated_at)
VALUES ($1, FALSE, NOW(), NOW()) ON CONFLICT (member_id) DO NOTHING;`
	if _, err := execSQL(ctx, r.pool, tx, ins, memberID); err != nil {
		return nil, mapExecErr(err)
	}

	const q = `SELECT ` + membershipColumns + ` FROM memberships WHERE member_id=$1 FOR UPDATE;`
	row, err := pickRow(ctx, r.pool, tx, q, memberID)
	if err != nil {
		return nil, err
	}
	return scanMembership(row)
}

func (r *membershipRepo) FindByMember(ctx context.Context, tx repository.Tx, memberID int64) (*model.Membership, error) {
	q := `SELECT ` + membershipColumns + ` FROM memberships WHERE member_id=$1`
	if isTx(tx) {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, memberID)
	if err != nil {
		return nil, err
	}
	return scanMembership(row)
}

func (r *membershipRepo) Save(ctx context.Context, tx repository.Tx, m *model.Membership) error {
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = time.Now()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = m.UpdatedAt
	}
	const q = `
INSERT INTO memberships (member_id, is_active, last_activated_at, last_deactivated_at, last_renewed_at, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (member_id) DO UPDATE SET
  is_active=$2, last_activated_at=$3, last_deactivated_at=$4, last_renewed_at=$5, updated_at=$7
RETURNING id;`
	row, err := pickRow(ctx, r.pool, tx, q, m.MemberID, m.IsActive, m.LastActivatedAt, m.LastDeactivatedAt, m.LastRenewedAt, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return err
	}
	if err := row.Scan(&m.ID); err != nil {
		return mapExecErr(err)
	}
	return nil
}

func (r *membershipRepo) ListActiveDue(ctx context.Context, tx repository.Tx) ([]model.DueMembership, error) {
	const q = `
SELECT ms.member_id, latest.ended_at
FROM memberships ms
JOIN members m ON m.id = ms.member_id
LEFT JOIN LATERAL (
  SELECT s.ended_at FROM subscriptions s
  WHERE s.member_id = ms.member_id
  ORDER BY s.ended_at DESC
  LIMIT 1
) latest ON TRUE
WHERE ms.is_active AND m.is_active
ORDER BY ms.member_id ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, mapExecErr(err)
	}
	defer rows.Close()

	var out []model.DueMembership
	for rows.Next() {
		var d model.DueMembership
		if err := rows.Scan(&d.MemberID, &d.BenefitEndsAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, d)
	}
	return out, mapExecErr(rows.Err())
}

func (r *membershipRepo) CountActive(ctx context.Context, tx repository.Tx) (int, error) {
	const q = `SELECT COUNT(*) FROM memberships ms JOIN members m ON m.id = ms.member_id WHERE ms.is_active AND m.is_active;`
	row, err := pickRow(ctx, r.pool, tx, q)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return n, nil
}
