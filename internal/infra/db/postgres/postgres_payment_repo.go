package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"venue-membership/internal/domain"
	"venue-membership/internal/domain/model"
	"venue-membership/internal/domain/ports/repository"
)

var _ repository.PaymentRepository = (*paymentRepo)(nil)

type paymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

const paymentColumns = `id, subscription_id, member_id, payment_uid, payment_type, gateway_transaction_id, amount, canceled_amount, paid_at, canceled_at, created_at, updated_at`

func scanPayment(row interface{ Scan(dest ...interface{}) error }) (*model.Payment, error) {
	p := &model.Payment{}
	if err := row.Scan(&p.ID, &p.SubscriptionID, &p.MemberID, &p.PaymentUID, &p.PaymentType, &p.GatewayTransactionID, &p.Amount, &p.CanceledAmount, &p.PaidAt, &p.CanceledAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, mapScanErr(err)
	}
	return p, nil
}

// Save inserts a payment or records its cancellation. Only the cancel fields
// change after insert.
func (r *paymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	const q = `
INSERT INTO payments (
  id, subscription_id, member_id, payment_uid, payment_type, gateway_transaction_id, amount, canceled_amount, paid_at, canceled_at, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
) ON CONFLICT (id) DO UPDATE SET
  canceled_amount=$8, canceled_at=$10, updated_at=$12;`

	_, err := execSQL(ctx, r.pool, tx, q, p.ID, p.SubscriptionID, p.MemberID, p.PaymentUID, p.PaymentType, p.GatewayTransactionID, p.Amount, p.CanceledAmount, p.PaidAt, p.CanceledAt, p.CreatedAt, p.UpdatedAt)
	return mapExecErr(err)
}

func (r *paymentRepo) FindByUID(ctx context.Context, tx repository.Tx, paymentUID string) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE payment_uid=$1`
	if isTx(tx) {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, paymentUID)
	if err != nil {
		return nil, err
	}
	return scanPayment(row)
}

func (r *paymentRepo) FindBySubscription(ctx context.Context, tx repository.Tx, subscriptionID string) (*model.Payment, error) {
	const q = `SELECT ` + paymentColumns + ` FROM payments WHERE subscription_id=$1 LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, subscriptionID)
	if err != nil {
		return nil, err
	}
	return scanPayment(row)
}

func (r *paymentRepo) ListByMember(ctx context.Context, tx repository.Tx, memberID int64, limit int) ([]*model.Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + paymentColumns + ` FROM payments WHERE member_id=$1 ORDER BY paid_at DESC LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, memberID, limit)
	if err != nil {
		return nil, mapExecErr(err)
	}
	defer rows.Close()

	var out []*model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, p)
	}
	return out, mapExecErr(rows.Err())
}
