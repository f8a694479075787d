package model

import (
	"time"

	"venue-membership/internal/domain"
)

// Membership is the per-member renewal flag. An inactive membership may still
// have benefits left; is_active only decides whether the next period is renewed.
type Membership struct {
	ID                int64
	MemberID          int64
	IsActive          bool
	LastActivatedAt   *time.Time
	LastDeactivatedAt *time.Time
	LastRenewedAt     *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func NewMembership(memberID int64, now time.Time) (*Membership, error) {
	if memberID <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &Membership{
		MemberID:  memberID,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// NeverActivated is true until the first successful subscribe.
func (m *Membership) NeverActivated() bool { return m.LastActivatedAt == nil }

func (m *Membership) Activate(now time.Time) {
	m.IsActive = true
	m.LastActivatedAt = &now
	m.UpdatedAt = now
}

func (m *Membership) Deactivate(now time.Time) {
	m.IsActive = false
	m.LastDeactivatedAt = &now
	m.UpdatedAt = now
}

func (m *Membership) MarkRenewed(now time.Time) {
	m.LastRenewedAt = &now
	m.UpdatedAt = now
}

// TotalDays counts whole days since the last activation of an active membership.
func (m *Membership) TotalDays(now time.Time) int {
	if !m.IsActive || m.LastActivatedAt == nil {
		return 0
	}
	return int(now.Sub(*m.LastActivatedAt) / (24 * time.Hour))
}

// DueMembership is one row of the renewal sweep: an active membership and the
// end of its latest benefit period (nil when it never had one).
type DueMembership struct {
	MemberID      int64
	BenefitEndsAt *time.Time
}

// DueBefore reports whether the latest period lapses before threshold.
func (d DueMembership) DueBefore(threshold time.Time) bool {
	return d.BenefitEndsAt != nil && d.BenefitEndsAt.Before(threshold)
}
