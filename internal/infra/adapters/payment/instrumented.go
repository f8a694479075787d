package payment

import (
	"context"
	"errors"
	"time"

	"venue-membership/internal/domain"
	"venue-membership/internal/domain/ports/adapter"
	"venue-membership/internal/infra/metrics"
)

var _ adapter.PaymentGateway = (*instrumentedGateway)(nil)

// instrumentedGateway records call counts, latency and revenue for the
// wrapped gateway.
type instrumentedGateway struct {
	inner adapter.PaymentGateway
}

func NewInstrumentedGateway(inner adapter.PaymentGateway) adapter.PaymentGateway {
	return &instrumentedGateway{inner: inner}
}

func (g *instrumentedGateway) Name() string { return g.inner.Name() }

func (g *instrumentedGateway) Charge(ctx context.Context, billingKey, paymentUID string, amount int64, description string) (adapter.ChargeResult, error) {
	start := time.Now()
	res, err := g.inner.Charge(ctx, billingKey, paymentUID, amount, description)
	g.observe("charge", start, err)
	if err == nil {
		metrics.AddPaymentRevenue(g.inner.Name(), amount)
	}
	return res, err
}

func (g *instrumentedGateway) Cancel(ctx context.Context, transactionID, paymentUID, reason string) (adapter.CancelResult, error) {
	start := time.Now()
	res, err := g.inner.Cancel(ctx, transactionID, paymentUID, reason)
	g.observe("cancel", start, err)
	if err == nil {
		metrics.AddPaymentRevenue(g.inner.Name(), -res.CanceledAmount)
	}
	return res, err
}

func (g *instrumentedGateway) HasStoredCredential(ctx context.Context, billingKey string) (bool, error) {
	start := time.Now()
	ok, err := g.inner.HasStoredCredential(ctx, billingKey)
	g.observe("lookup", start, err)
	return ok, err
}

func (g *instrumentedGateway) observe(op string, start time.Time, err error) {
	metrics.ObserveGatewayCall(g.inner.Name(), op, callResult(err), time.Since(start).Seconds())
}

func callResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrGatewayTransient), errors.Is(err, context.DeadlineExceeded):
		return "transient"
	default:
		return "rejected"
	}
}
