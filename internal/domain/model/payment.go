package model

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"venue-membership/internal/domain"
)

type PaymentType int

const (
	PaymentTypeKakaoPay PaymentType = 1
)

// Payment records one billing-key charge at the gateway.
type Payment struct {
	ID                   string  // UUID
	SubscriptionID       *string // nil when the period was removed
	MemberID             int64
	PaymentUID           string // merchant uid sent to the gateway
	PaymentType          PaymentType
	GatewayTransactionID string
	Amount               int64
	CanceledAmount       int64
	PaidAt               time.Time
	CanceledAt           *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func NewPayment(sub *Subscription, paymentUID, gatewayTxID string, amount int64, paidAt time.Time) (*Payment, error) {
	if sub == nil || paymentUID == "" || gatewayTxID == "" || amount <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	subID := sub.ID
	return &Payment{
		ID:                   uuid.NewString(),
		SubscriptionID:       &subID,
		MemberID:             sub.MemberID,
		PaymentUID:           paymentUID,
		PaymentType:          PaymentTypeKakaoPay,
		GatewayTransactionID: gatewayTxID,
		Amount:               amount,
		PaidAt:               paidAt,
		CreatedAt:            paidAt,
		UpdatedAt:            paidAt,
	}, nil
}

func (p *Payment) IsCanceled() bool { return p.CanceledAt != nil }

// MarkCanceled records a gateway cancellation. It refuses a second cancel and
// amounts above what was paid.
func (p *Payment) MarkCanceled(amount int64, at time.Time) error {
	if p.IsCanceled() {
		return domain.ErrPaymentAlreadyCanceled
	}
	if amount < 0 || amount > p.Amount {
		return domain.ErrInvalidArgument
	}
	p.CanceledAmount = amount
	p.CanceledAt = &at
	p.UpdatedAt = at
	return nil
}

// NewPaymentUID returns "<prefix>-<YYmmddHHMMSS>-<6 hex>".
func NewPaymentUID(prefix string, now time.Time) (string, error) {
	var b [3]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%s", prefix, now.Format("060102150405"), hex.EncodeToString(b[:])), nil
}
