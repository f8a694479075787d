package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"venue-membership/internal/domain"
	"venue-membership/internal/domain/model"
	"venue-membership/internal/domain/ports/repository"
)

var _ repository.MemberRepository = (*memberRepo)(nil)

type memberRepo struct{ pool *pgxpool.Pool }

func NewMemberRepo(pool *pgxpool.Pool) *memberRepo {
	return &memberRepo{pool: pool}
}

func (r *memberRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.Member, error) {
	const q = `SELECT id, username, is_active, created_at FROM members WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	m := &model.Member{}
	if err := row.Scan(&m.ID, &m.Username, &m.IsActive, &m.CreatedAt); err != nil {
		return nil, mapScanErr(err)
	}
	return m, nil
}

// Insert creates a member row. Members are owned by the account module; only
// the seed tool and tests write them.
func (r *memberRepo) Insert(ctx context.Context, tx repository.Tx, m *model.Member) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	const q = `INSERT INTO members (username, is_active, created_at) VALUES ($1,$2,$3)
ON CONFLICT (username) DO UPDATE SET is_active=EXCLUDED.is_active
RETURNING id;`
	row, err := pickRow(ctx, r.pool, tx, q, m.Username, m.IsActive, m.CreatedAt)
	if err != nil {
		return err
	}
	return mapScanErr(row.Scan(&m.ID))
}

var _ repository.VisitationRepository = (*visitationRepo)(nil)

type visitationRepo struct{ pool *pgxpool.Pool }

func NewVisitationRepo(pool *pgxpool.Pool) *visitationRepo {
	return &visitationRepo{pool: pool}
}

func (r *visitationRepo) ListByMemberBetween(ctx context.Context, tx repository.Tx, memberID int64, from, to time.Time) ([]*model.Visitation, error) {
	const q = `SELECT id, member_id, partner_id, created_at FROM visitations
WHERE member_id=$1 AND created_at >= $2 AND created_at < $3 ORDER BY created_at ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, memberID, from, to)
	if err != nil {
		return nil, mapExecErr(err)
	}
	defer rows.Close()

	var out []*model.Visitation
	for rows.Next() {
		v := &model.Visitation{}
		if err := rows.Scan(&v.ID, &v.MemberID, &v.PartnerID, &v.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, v)
	}
	return out, mapExecErr(rows.Err())
}

func (r *visitationRepo) Insert(ctx context.Context, tx repository.Tx, v *model.Visitation) error {
	const q = `INSERT INTO visitations (member_id, partner_id, created_at) VALUES ($1,$2,$3) RETURNING id;`
	row, err := pickRow(ctx, r.pool, tx, q, v.MemberID, v.PartnerID, v.CreatedAt)
	if err != nil {
		return err
	}
	return mapScanErr(row.Scan(&v.ID))
}
