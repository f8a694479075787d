package model

import (
	"time"

	"github.com/google/uuid"

	"venue-membership/internal/domain"
)

const (
	DefaultValidityDays = 31
	RefundValidityDays  = 7
)

// Subscription is one benefit period. EndedAt is the exclusive upper bound of
// the window and always falls on 23:59:59.000 of its calendar day.
type Subscription struct {
	ID           string // UUID
	MemberID     int64
	ValidityDays int
	StartedAt    time.Time
	EndedAt      time.Time
	CreatedAt    time.Time
}

// NewSubscription builds a period starting at startedAt. validityDays <= 0
// falls back to DefaultValidityDays.
func NewSubscription(memberID int64, startedAt time.Time, validityDays int) (*Subscription, error) {
	if memberID <= 0 || startedAt.IsZero() {
		return nil, domain.ErrInvalidArgument
	}
	if validityDays <= 0 {
		validityDays = DefaultValidityDays
	}
	return &Subscription{
		ID:           uuid.NewString(),
		MemberID:     memberID,
		ValidityDays: validityDays,
		StartedAt:    startedAt,
		EndedAt:      PeriodEnd(startedAt, validityDays),
		CreatedAt:    startedAt,
	}, nil
}

// PeriodEnd adds days to start and moves the result to the last second of
// that calendar day in start's location.
func PeriodEnd(start time.Time, days int) time.Time {
	end := start.AddDate(0, 0, days)
	y, mo, d := end.Date()
	return time.Date(y, mo, d, 23, 59, 59, 0, start.Location())
}

// Covers reports whether the benefit window is still open at t.
func (s *Subscription) Covers(t time.Time) bool {
	return s.EndedAt.After(t)
}

func (s *Subscription) IsInRefundWindow(now time.Time) bool {
	return !now.After(s.StartedAt.AddDate(0, 0, RefundValidityDays))
}

// HasRecordedUsage is true when any visitation falls in [StartedAt, EndedAt).
func (s *Subscription) HasRecordedUsage(visits []*Visitation) bool {
	for _, v := range visits {
		if v == nil || v.MemberID != s.MemberID {
			continue
		}
		if !v.CreatedAt.Before(s.StartedAt) && v.CreatedAt.Before(s.EndedAt) {
			return true
		}
	}
	return false
}

// NextThreshold returns 00:00 of the day after now, in now's location.
func NextThreshold(now time.Time) time.Time {
	y, mo, d := now.AddDate(0, 0, 1).Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, now.Location())
}
