package usecase

import (
	"context"
	"time"

	"venue-membership/internal/domain/model"
)

// RenewOutcome describes what a single renewal unit did.
type RenewOutcome struct {
	MemberID     int64
	Skipped      bool
	SkipReason   string
	Subscription *model.Subscription
	Payment      *model.Payment // nil for a free renewal
}

// MembershipStatus is the member-facing read model.
type MembershipStatus struct {
	MemberID           int64
	IsActive           bool
	HasBenefits        bool
	BenefitEndsAt      *time.Time
	NextPaymentAt      *time.Time
	TotalDays          int
	LastActivatedAt    *time.Time
	LastDeactivatedAt  *time.Time
	LatestSubscription *model.Subscription
}

// MembershipUseCase is the membership state machine.
type MembershipUseCase interface {
	Subscribe(ctx context.Context, memberID int64) (*model.Membership, error)
	Unsubscribe(ctx context.Context, memberID int64) (*model.Membership, error)
	Renew(ctx context.Context, memberID int64) (RenewOutcome, error)
	Status(ctx context.Context, memberID int64) (*MembershipStatus, error)
}

// PaymentUseCase charges and cancels membership payments.
type PaymentUseCase interface {
	Cancel(ctx context.Context, paymentUID, reason string) (*model.Payment, error)
}

// SweepReport summarizes one renewal sweep.
type SweepReport struct {
	RunID      string
	Threshold  time.Time
	Total      int
	Dispatched int
	Failed     int
}

// RenewalUseCase runs the daily renewal sweep.
type RenewalUseCase interface {
	// Sweep is the scheduled run; at most one per calendar day across replicas.
	Sweep(ctx context.Context) (SweepReport, error)
	// RunManual sweeps now, outside the daily lock.
	RunManual(ctx context.Context) (SweepReport, error)
}
