package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrOperationFailed    = errors.New("database operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid execution context")

	// Membership validation errors, surfaced to members as 400s.
	ErrMemberInactive      = errors.New("member account is not active")
	ErrAlreadySubscribed   = errors.New("membership is already subscribed")
	ErrNoBillingCredential = errors.New("no billing credential is registered")
	ErrNotSubscribed       = errors.New("there is no subscribed membership")

	// ErrNoActiveSubscription means a membership is active but no period covers now.
	ErrNoActiveSubscription = errors.New("membership is active but there is no active subscription")

	// Payment errors
	ErrPaymentFailed          = errors.New("payment failed")
	ErrPaymentCancelFailed    = errors.New("payment cancel failed")
	ErrPaymentAlreadyCanceled = errors.New("payment already canceled")

	// ErrGatewayTransient marks timeouts and connection-level failures whose
	// outcome on the provider side is unknown.
	ErrGatewayTransient = errors.New("payment gateway unavailable")

	ErrLockHeld = errors.New("lock is held by another process")
)

// GatewayError is a definite rejection returned by the payment gateway:
// either a non-2xx HTTP status or a business-level error code in the body.
type GatewayError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway error: status=%d code=%d message=%s", e.StatusCode, e.Code, e.Message)
}

// IsValidation reports whether err is a member-facing validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrAlreadySubscribed) ||
		errors.Is(err, ErrNoBillingCredential) ||
		errors.Is(err, ErrNotSubscribed) ||
		errors.Is(err, ErrMemberInactive)
}
