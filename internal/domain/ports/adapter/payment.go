package adapter

import "context"

// ChargeResult is the provider's answer to a successful billing-key charge.
type ChargeResult struct {
	TransactionID string // provider transaction id (imp_uid)
}

// CancelResult reports what the provider actually canceled.
type CancelResult struct {
	CanceledAmount int64
}

// PaymentGateway is the hex port for billing-key payment providers.
//
// Definite rejections are returned as *domain.GatewayError. Timeouts and
// connection failures wrap domain.ErrGatewayTransient.
type PaymentGateway interface {
	Name() string

	// Charge bills amount against the stored card registered under billingKey.
	// paymentUID is the merchant uid and makes the charge idempotent provider-side.
	Charge(ctx context.Context, billingKey, paymentUID string, amount int64, description string) (ChargeResult, error)
	// Cancel cancels a previous charge in full.
	Cancel(ctx context.Context, transactionID, paymentUID, reason string) (CancelResult, error)
	// HasStoredCredential reports whether a card is registered under billingKey.
	HasStoredCredential(ctx context.Context, billingKey string) (bool, error)
}
