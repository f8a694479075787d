package repository

import (
	"context"

	"venue-membership/internal/domain/model"
)

// PaymentRepository is the port for gateway charges.
type PaymentRepository interface {
	Save(ctx context.Context, tx Tx, p *model.Payment) error
	// FindByUID locks the row when tx is a live transaction.
	FindByUID(ctx context.Context, tx Tx, paymentUID string) (*model.Payment, error)
	FindBySubscription(ctx context.Context, tx Tx, subscriptionID string) (*model.Payment, error)
	ListByMember(ctx context.Context, tx Tx, memberID int64, limit int) ([]*model.Payment, error)
}
