package repository

import (
	"context"
	"time"

	"venue-membership/internal/domain/model"
)

// SubscriptionRepository is the port for benefit periods.
type SubscriptionRepository interface {
	Save(ctx context.Context, tx Tx, s *model.Subscription) error
	// FindLatestByMember returns the period with the greatest ended_at, or
	// domain.ErrNotFound.
	FindLatestByMember(ctx context.Context, tx Tx, memberID int64) (*model.Subscription, error)
	// FindCovering returns the latest period with ended_at > at, or domain.ErrNotFound.
	FindCovering(ctx context.Context, tx Tx, memberID int64, at time.Time) (*model.Subscription, error)
	ListByMember(ctx context.Context, tx Tx, memberID int64, limit int) ([]*model.Subscription, error)
}
