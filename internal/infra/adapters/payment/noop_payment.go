package payment

import (
	"context"
	"sync"

	"venue-membership/internal/domain"
	"venue-membership/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*NoopPaymentGateway)(nil)

// NoopPaymentGateway approves everything in memory. Use it for local runs.
type NoopPaymentGateway struct {
	mu      sync.Mutex
	charges map[string]int64 // transaction id -> amount
}

func NewNoopPaymentGateway() *NoopPaymentGateway {
	return &NoopPaymentGateway{charges: make(map[string]int64)}
}

func (g *NoopPaymentGateway) Name() string { return "noop" }

func (g *NoopPaymentGateway) Charge(ctx context.Context, billingKey, paymentUID string, amount int64, description string) (adapter.ChargeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	txID := "noop_" + paymentUID
	g.charges[txID] = amount
	return adapter.ChargeResult{TransactionID: txID}, nil
}

func (g *NoopPaymentGateway) Cancel(ctx context.Context, transactionID, paymentUID, reason string) (adapter.CancelResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	amount, ok := g.charges[transactionID]
	if !ok {
		return adapter.CancelResult{}, &domain.GatewayError{StatusCode: 200, Code: codeNotFound, Message: "noop: unknown transaction"}
	}
	delete(g.charges, transactionID)
	return adapter.CancelResult{CanceledAmount: amount}, nil
}

func (g *NoopPaymentGateway) HasStoredCredential(ctx context.Context, billingKey string) (bool, error) {
	return billingKey != "", nil
}
