package repository

import (
	"context"
	"time"

	"venue-membership/internal/domain/model"
)

// MemberRepository reads members owned by the platform's account module.
type MemberRepository interface {
	FindByID(ctx context.Context, tx Tx, id int64) (*model.Member, error)
}

// VisitationRepository reads venue check-ins.
type VisitationRepository interface {
	// ListByMemberBetween returns visits with from <= created_at < to.
	ListByMemberBetween(ctx context.Context, tx Tx, memberID int64, from, to time.Time) ([]*model.Visitation, error)
}
