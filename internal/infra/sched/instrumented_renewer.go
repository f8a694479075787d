package sched

import (
	"context"

	"venue-membership/internal/domain/ports/usecase"
	"venue-membership/internal/infra/metrics"
)

// InstrumentedRenewer counts renewal outcomes. The other membership
// operations pass through.
type InstrumentedRenewer struct {
	usecase.MembershipUseCase
}

func NewInstrumentedRenewer(inner usecase.MembershipUseCase) *InstrumentedRenewer {
	return &InstrumentedRenewer{MembershipUseCase: inner}
}

func (r *InstrumentedRenewer) Renew(ctx context.Context, memberID int64) (usecase.RenewOutcome, error) {
	out, err := r.MembershipUseCase.Renew(ctx, memberID)
	metrics.IncRenewal(renewalOutcome(out, err))
	return out, err
}

func renewalOutcome(out usecase.RenewOutcome, err error) string {
	switch {
	case err != nil:
		return "failed"
	case out.Skipped:
		return "skipped"
	case out.Payment != nil:
		return "paid"
	default:
		return "free"
	}
}
