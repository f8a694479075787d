package model

import (
	"fmt"
	"time"
)

// Member is the account owned by the platform's auth module. This service only
// reads it.
type Member struct {
	ID        int64
	Username  string
	IsActive  bool
	CreatedAt time.Time
}

func (m *Member) IsZero() bool { return m == nil || m.ID == 0 }

// BillingKey is the stable customer uid registered with the payment gateway.
func (m *Member) BillingKey(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, m.ID)
}

// Visitation is a member's check-in at a partner venue.
type Visitation struct {
	ID        int64
	MemberID  int64
	PartnerID int64
	CreatedAt time.Time
}
