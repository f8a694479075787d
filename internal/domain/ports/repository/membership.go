package repository

import (
	"context"

	"venue-membership/internal/domain/model"
)

// MembershipRepository is the port for the per-member membership row.
type MembershipRepository interface {
	// LockForMember returns the member's membership, creating it if missing,
	// and holds a row lock until tx ends. tx must be a live transaction.
	LockForMember(ctx context.Context, tx Tx, memberID int64) (*model.Membership, error)
	// FindByMember returns domain.ErrNotFound when the member never subscribed.
	FindByMember(ctx context.Context, tx Tx, memberID int64) (*model.Membership, error)
	Save(ctx context.Context, tx Tx, m *model.Membership) error

	// ListActiveDue returns every active membership of an active member with the
	// end of its latest subscription.
	ListActiveDue(ctx context.Context, tx Tx) ([]model.DueMembership, error)
	CountActive(ctx context.Context, tx Tx) (int, error)
}
