//go:build !integration

package api

import (
	"context"
	"io"
	"sync"
	"time"

	"venue-membership/internal/domain"
	"venue-membership/internal/domain/model"
	"venue-membership/internal/domain/ports/usecase"
	red "venue-membership/internal/infra/redis"

	"github.com/rs/zerolog"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

type MockMembershipUC struct {
	SubscribeFunc   func(ctx context.Context, memberID int64) (*model.Membership, error)
	UnsubscribeFunc func(ctx context.Context, memberID int64) (*model.Membership, error)
	RenewFunc       func(ctx context.Context, memberID int64) (usecase.RenewOutcome, error)
	StatusFunc      func(ctx context.Context, memberID int64) (*usecase.MembershipStatus, error)

	mu    sync.Mutex
	calls int
}

func (m *MockMembershipUC) Subscribe(ctx context.Context, memberID int64) (*model.Membership, error) {
	m.count()
	if m.SubscribeFunc != nil {
		return m.SubscribeFunc(ctx, memberID)
	}
	return &model.Membership{MemberID: memberID, IsActive: true}, nil
}

func (m *MockMembershipUC) Unsubscribe(ctx context.Context, memberID int64) (*model.Membership, error) {
	m.count()
	if m.UnsubscribeFunc != nil {
		return m.UnsubscribeFunc(ctx, memberID)
	}
	return &model.Membership{MemberID: memberID}, nil
}

func (m *MockMembershipUC) Renew(ctx context.Context, memberID int64) (usecase.RenewOutcome, error) {
	m.count()
	if m.RenewFunc != nil {
		return m.RenewFunc(ctx, memberID)
	}
	return usecase.RenewOutcome{MemberID: memberID}, nil
}

func (m *MockMembershipUC) Status(ctx context.Context, memberID int64) (*usecase.MembershipStatus, error) {
	m.count()
	if m.StatusFunc != nil {
		return m.StatusFunc(ctx, memberID)
	}
	return &usecase.MembershipStatus{MemberID: memberID}, nil
}

func (m *MockMembershipUC) count() {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
}

func (m *MockMembershipUC) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type MockPaymentUC struct {
	CancelFunc func(ctx context.Context, paymentUID, reason string) (*model.Payment, error)
}

func (m *MockPaymentUC) Cancel(ctx context.Context, paymentUID, reason string) (*model.Payment, error) {
	if m.CancelFunc != nil {
		return m.CancelFunc(ctx, paymentUID, reason)
	}
	return nil, domain.ErrNotFound
}

type MockRenewalUC struct {
	SweepFunc     func(ctx context.Context) (usecase.SweepReport, error)
	RunManualFunc func(ctx context.Context) (usecase.SweepReport, error)
}

func (m *MockRenewalUC) Sweep(ctx context.Context) (usecase.SweepReport, error) {
	if m.SweepFunc != nil {
		return m.SweepFunc(ctx)
	}
	return usecase.SweepReport{}, nil
}

func (m *MockRenewalUC) RunManual(ctx context.Context) (usecase.SweepReport, error) {
	if m.RunManualFunc != nil {
		return m.RunManualFunc(ctx)
	}
	return usecase.SweepReport{}, nil
}

type MockRateLimiter struct {
	AllowFunc func(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

func (m *MockRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if m.AllowFunc != nil {
		return m.AllowFunc(ctx, key, limit, window)
	}
	return true, nil
}

// memIdempotency is an in-memory IdempotencyStore.
type memIdempotency struct {
	mu       sync.Mutex
	done     map[string]red.CachedResponse
	inflight map[string]bool
}

func newMemIdempotency() *memIdempotency {
	return &memIdempotency{done: map[string]red.CachedResponse{}, inflight: map[string]bool{}}
}

func (m *memIdempotency) Get(ctx context.Context, scope, key string) (*red.CachedResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.done[scope+"|"+key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

func (m *memIdempotency) Begin(ctx context.Context, scope, key string, timeout time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := scope + "|" + key
	if m.inflight[k] {
		return false, nil
	}
	m.inflight[k] = true
	return true, nil
}

func (m *memIdempotency) Finish(ctx context.Context, scope, key string, resp *red.CachedResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := scope + "|" + key
	delete(m.inflight, k)
	if resp != nil {
		m.done[k] = *resp
	}
	return nil
}

func (m *memIdempotency) Stored(scope, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.done[scope+"|"+key]
	return ok
}
