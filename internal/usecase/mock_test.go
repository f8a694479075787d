//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"venue-membership/internal/domain"
	"venue-membership/internal/domain/model"
	"venue-membership/internal/domain/ports/adapter"
	"venue-membership/internal/domain/ports/repository"
	"venue-membership/internal/domain/ports/usecase"
)

// -----------------------------
// Utilities: tiny helpers
// -----------------------------

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// fixedClock returns a clock that can be moved forward by tests.
type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock(t time.Time) *fixedClock { return &fixedClock{t: t} }

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func ptrTime(t time.Time) *time.Time { return &t }

// =============================
// In-memory store
// =============================

// memStore holds every table the use cases touch. MockTxManager snapshots it
// before a transaction and restores it on rollback.
type memStore struct {
	mu          sync.Mutex
	members     map[int64]model.Member
	memberships map[int64]model.Membership
	subs        map[string]model.Subscription
	payments    map[string]model.Payment
	visits      []model.Visitation
	nextID      int64
}

func newMemStore() *memStore {
	return &memStore{
		members:     map[int64]model.Member{},
		memberships: map[int64]model.Membership{},
		subs:        map[string]model.Subscription{},
		payments:    map[string]model.Payment{},
	}
}

type memSnapshot struct {
	memberships map[int64]model.Membership
	subs        map[string]model.Subscription
	payments    map[string]model.Payment
	nextID      int64
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := memSnapshot{
		memberships: make(map[int64]model.Membership, len(s.memberships)),
		subs:        make(map[string]model.Subscription, len(s.subs)),
		payments:    make(map[string]model.Payment, len(s.payments)),
		nextID:      s.nextID,
	}
	for k, v := range s.memberships {
		snap.memberships[k] = v
	}
	for k, v := range s.subs {
		snap.subs[k] = v
	}
	for k, v := range s.payments {
		snap.payments[k] = v
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memberships = snap.memberships
	s.subs = snap.subs
	s.payments = snap.payments
	s.nextID = snap.nextID
}

func (s *memStore) AddMember(id int64, username string, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[id] = model.Member{ID: id, Username: username, IsActive: active}
}

func (s *memStore) AddVisit(memberID int64, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visits = append(s.visits, model.Visitation{ID: int64(len(s.visits) + 1), MemberID: memberID, PartnerID: 1, CreatedAt: at})
}

func (s *memStore) PutMembership(m model.Membership) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == 0 {
		s.nextID++
		m.ID = s.nextID
	}
	s.memberships[m.MemberID] = m
}

func (s *memStore) PutSubscription(sub model.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	s.subs[sub.ID] = sub
}

func (s *memStore) PutPayment(p model.Payment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments[p.PaymentUID] = p
}

func (s *memStore) Membership(memberID int64) (model.Membership, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memberships[memberID]
	return m, ok
}

func (s *memStore) Subscriptions(memberID int64) []model.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Subscription
	for _, sub := range s.subs {
		if sub.MemberID == memberID {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndedAt.After(out[j].EndedAt) })
	return out
}

func (s *memStore) Payments(memberID int64) []model.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Payment
	for _, p := range s.payments {
		if p.MemberID == memberID {
			out = append(out, p)
		}
	}
	return out
}

// =============================
// Repositories
// =============================

// ---- Mock MemberRepository ----

type MockMemberRepo struct {
	store        *memStore
	FindByIDFunc func(ctx context.Context, tx repository.Tx, id int64) (*model.Member, error)
}

var _ repository.MemberRepository = (*MockMemberRepo)(nil)

func (r *MockMemberRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.Member, error) {
	if r.FindByIDFunc != nil {
		return r.FindByIDFunc(ctx, tx, id)
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	m, ok := r.store.members[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &m, nil
}

// ---- Mock VisitationRepository ----

type MockVisitationRepo struct {
	store                   *memStore
	ListByMemberBetweenFunc func(ctx context.Context, tx repository.Tx, memberID int64, from, to time.Time) ([]*model.Visitation, error)
}

var _ repository.VisitationRepository = (*MockVisitationRepo)(nil)

func (r *MockVisitationRepo) ListByMemberBetween(ctx context.Context, tx repository.Tx, memberID int64, from, to time.Time) ([]*model.Visitation, error) {
	if r.ListByMemberBetweenFunc != nil {
		return r.ListByMemberBetweenFunc(ctx, tx, memberID, from, to)
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*model.Visitation
	for i := range r.store.visits {
		v := r.store.visits[i]
		if v.MemberID == memberID && !v.CreatedAt.Before(from) && v.CreatedAt.Before(to) {
			out = append(out, &v)
		}
	}
	return out, nil
}

// ---- Mock MembershipRepository ----

type MockMembershipRepo struct {
	store             *memStore
	LockForMemberFunc func(ctx context.Context, tx repository.Tx, memberID int64) (*model.Membership, error)
	SaveFunc          func(ctx context.Context, tx repository.Tx, m *model.Membership) error
	ListActiveDueFunc func(ctx context.Context, tx repository.Tx) ([]model.DueMembership, error)
}

var _ repository.MembershipRepository = (*MockMembershipRepo)(nil)

func (r *MockMembershipRepo) LockForMember(ctx context.Context, tx repository.Tx, memberID int64) (*model.Membership, error) {
	if r.LockForMemberFunc != nil {
		return r.LockForMemberFunc(ctx, tx, memberID)
	}
	if m, err := r.FindByMember(ctx, tx, memberID); err == nil {
		return m, nil
	}
	m, err := model.NewMembership(memberID, time.Now())
	if err != nil {
		return nil, err
	}
	r.store.PutMembership(*m)
	return r.FindByMember(ctx, tx, memberID)
}

func (r *MockMembershipRepo) FindByMember(ctx context.Context, tx repository.Tx, memberID int64) (*model.Membership, error) {
	m, ok := r.store.Membership(memberID)
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &m, nil
}

func (r *MockMembershipRepo) Save(ctx context.Context, tx repository.Tx, m *model.Membership) error {
	if r.SaveFunc != nil {
		return r.SaveFunc(ctx, tx, m)
	}
	r.store.PutMembership(*m)
	return nil
}

func (r *MockMembershipRepo) ListActiveDue(ctx context.Context, tx repository.Tx) ([]model.DueMembership, error) {
	if r.ListActiveDueFunc != nil {
		return r.ListActiveDueFunc(ctx, tx)
	}
	r.store.mu.Lock()
	ids := make([]int64, 0, len(r.store.memberships))
	for id, m := range r.store.memberships {
		if m.IsActive && r.store.members[id].IsActive {
			ids = append(ids, id)
		}
	}
	r.store.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]model.DueMembership, 0, len(ids))
	for _, id := range ids {
		d := model.DueMembership{MemberID: id}
		if subs := r.store.Subscriptions(id); len(subs) > 0 {
			d.BenefitEndsAt = ptrTime(subs[0].EndedAt)
		}
		out = append(out, d)
	}
	return out, nil
}

func (r *MockMembershipRepo) CountActive(ctx context.Context, tx repository.Tx) (int, error) {
	due, err := r.ListActiveDue(ctx, tx)
	return len(due), err
}

// ---- Mock SubscriptionRepository ----

type MockSubscriptionRepo struct {
	store    *memStore
	SaveFunc func(ctx context.Context, tx repository.Tx, s *model.Subscription) error
}

var _ repository.SubscriptionRepository = (*MockSubscriptionRepo)(nil)

func (r *MockSubscriptionRepo) Save(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	if r.SaveFunc != nil {
		return r.SaveFunc(ctx, tx, s)
	}
	r.store.PutSubscription(*s)
	return nil
}

func (r *MockSubscriptionRepo) FindLatestByMember(ctx context.Context, tx repository.Tx, memberID int64) (*model.Subscription, error) {
	subs := r.store.Subscriptions(memberID)
	if len(subs) == 0 {
		return nil, domain.ErrNotFound
	}
	return &subs[0], nil
}

func (r *MockSubscriptionRepo) FindCovering(ctx context.Context, tx repository.Tx, memberID int64, at time.Time) (*model.Subscription, error) {
	for _, s := range r.store.Subscriptions(memberID) {
		if s.Covers(at) {
			return &s, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockSubscriptionRepo) ListByMember(ctx context.Context, tx repository.Tx, memberID int64, limit int) ([]*model.Subscription, error) {
	subs := r.store.Subscriptions(memberID)
	out := make([]*model.Subscription, 0, len(subs))
	for i := range subs {
		if limit > 0 && i >= limit {
			break
		}
		out = append(out, &subs[i])
	}
	return out, nil
}

// ---- Mock PaymentRepository ----

type MockPaymentRepo struct {
	store    *memStore
	SaveFunc func(ctx context.Context, tx repository.Tx, p *model.Payment) error
}

var _ repository.PaymentRepository = (*MockPaymentRepo)(nil)

func (r *MockPaymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	if r.SaveFunc != nil {
		return r.SaveFunc(ctx, tx, p)
	}
	r.store.PutPayment(*p)
	return nil
}

func (r *MockPaymentRepo) FindByUID(ctx context.Context, tx repository.Tx, paymentUID string) (*model.Payment, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	p, ok := r.store.payments[paymentUID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (r *MockPaymentRepo) FindBySubscription(ctx context.Context, tx repository.Tx, subscriptionID string) (*model.Payment, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, p := range r.store.payments {
		if p.SubscriptionID != nil && *p.SubscriptionID == subscriptionID {
			return &p, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockPaymentRepo) ListByMember(ctx context.Context, tx repository.Tx, memberID int64, limit int) ([]*model.Payment, error) {
	ps := r.store.Payments(memberID)
	out := make([]*model.Payment, 0, len(ps))
	for i := range ps {
		out = append(out, &ps[i])
	}
	return out, nil
}

// ---- Mock TransactionManager ----

type MockTxManager struct {
	store      *memStore
	CommitErr  error
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs fn against the in-memory store and restores the snapshot taken
// before fn when fn fails or CommitErr is set.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	if m.store == nil {
		return fn(ctx, repository.NoTX)
	}
	snap := m.store.snapshot()
	if err := fn(ctx, "mock-tx"); err != nil {
		m.store.restore(snap)
		return err
	}
	if m.CommitErr != nil {
		m.store.restore(snap)
		return m.CommitErr
	}
	return nil
}

// =============================
// Adapters
// =============================

// ---- Mock PaymentGateway ----

type chargeCall struct {
	BillingKey  string
	PaymentUID  string
	Amount      int64
	Description string
}

type cancelCall struct {
	TransactionID string
	PaymentUID    string
	Reason        string
}

type MockPaymentGateway struct {
	mu      sync.Mutex
	Charges []chargeCall
	Cancels []cancelCall

	ChargeFunc              func(ctx context.Context, billingKey, paymentUID string, amount int64, description string) (adapter.ChargeResult, error)
	CancelFunc              func(ctx context.Context, transactionID, paymentUID, reason string) (adapter.CancelResult, error)
	HasStoredCredentialFunc func(ctx context.Context, billingKey string) (bool, error)
}

var _ adapter.PaymentGateway = (*MockPaymentGateway)(nil)

func (g *MockPaymentGateway) Name() string { return "mock" }

func (g *MockPaymentGateway) Charge(ctx context.Context, billingKey, paymentUID string, amount int64, description string) (adapter.ChargeResult, error) {
	g.mu.Lock()
	g.Charges = append(g.Charges, chargeCall{billingKey, paymentUID, amount, description})
	g.mu.Unlock()
	if g.ChargeFunc != nil {
		return g.ChargeFunc(ctx, billingKey, paymentUID, amount, description)
	}
	return adapter.ChargeResult{TransactionID: "imp_" + paymentUID}, nil
}

func (g *MockPaymentGateway) Cancel(ctx context.Context, transactionID, paymentUID, reason string) (adapter.CancelResult, error) {
	g.mu.Lock()
	g.Cancels = append(g.Cancels, cancelCall{transactionID, paymentUID, reason})
	g.mu.Unlock()
	if g.CancelFunc != nil {
		return g.CancelFunc(ctx, transactionID, paymentUID, reason)
	}
	return adapter.CancelResult{CanceledAmount: 4900}, nil
}

func (g *MockPaymentGateway) HasStoredCredential(ctx context.Context, billingKey string) (bool, error) {
	if g.HasStoredCredentialFunc != nil {
		return g.HasStoredCredentialFunc(ctx, billingKey)
	}
	return true, nil
}

func (g *MockPaymentGateway) ChargeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Charges)
}

func (g *MockPaymentGateway) CancelCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Cancels)
}

// ---- Mock Notifier ----

type MockNotifier struct {
	mu         sync.Mutex
	Sent       []adapter.Notification
	NotifyFunc func(ctx context.Context, n adapter.Notification) error
}

var _ adapter.Notifier = (*MockNotifier)(nil)

func (m *MockNotifier) Notify(ctx context.Context, n adapter.Notification) error {
	if m.NotifyFunc != nil {
		return m.NotifyFunc(ctx, n)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, n)
	return nil
}

func (m *MockNotifier) ByLevel(level adapter.NotificationLevel) []adapter.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []adapter.Notification
	for _, n := range m.Sent {
		if n.Level == level {
			out = append(out, n)
		}
	}
	return out
}

// ---- In-memory Locker ----

type MockLocker struct {
	mu    sync.Mutex
	held  map[string]string
	ErrOn map[string]error
}

var _ adapter.Locker = (*MockLocker)(nil)

func NewMockLocker() *MockLocker {
	return &MockLocker{held: map[string]string{}, ErrOn: map[string]error{}}
}

func (l *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err, bad := l.ErrOn[key]; bad {
		return "", err
	}
	if tok, ok := l.held[key]; ok && tok != "" {
		return "", domain.ErrLockHeld
	}
	tok := uuid.NewString()
	l.held[key] = tok
	return tok, nil
}

func (l *MockLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] != token {
		return errors.New("token mismatch")
	}
	delete(l.held, key)
	return nil
}

func (l *MockLocker) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[key]
	return ok
}

// ---- Synchronous pool ----

// MockPool runs each task inline on Submit.
type MockPool struct {
	mu         sync.Mutex
	Submitted  int
	SubmitFunc func(ctx context.Context, task func(ctx context.Context) error) error
}

func (p *MockPool) Submit(ctx context.Context, task func(ctx context.Context) error) error {
	if p.SubmitFunc != nil {
		return p.SubmitFunc(ctx, task)
	}
	p.mu.Lock()
	p.Submitted++
	p.mu.Unlock()
	_ = task(ctx)
	return nil
}

// ---- Mock MembershipUseCase ----

type MockMembershipUC struct {
	mu          sync.Mutex
	Renewed     []int64
	RenewFunc   func(ctx context.Context, memberID int64) (usecase.RenewOutcome, error)
	SubscribeFn func(ctx context.Context, memberID int64) (*model.Membership, error)
}

var _ usecase.MembershipUseCase = (*MockMembershipUC)(nil)

func (m *MockMembershipUC) Subscribe(ctx context.Context, memberID int64) (*model.Membership, error) {
	if m.SubscribeFn != nil {
		return m.SubscribeFn(ctx, memberID)
	}
	return &model.Membership{MemberID: memberID, IsActive: true}, nil
}

func (m *MockMembershipUC) Unsubscribe(ctx context.Context, memberID int64) (*model.Membership, error) {
	return &model.Membership{MemberID: memberID}, nil
}

func (m *MockMembershipUC) Renew(ctx context.Context, memberID int64) (usecase.RenewOutcome, error) {
	m.mu.Lock()
	m.Renewed = append(m.Renewed, memberID)
	m.mu.Unlock()
	if m.RenewFunc != nil {
		return m.RenewFunc(ctx, memberID)
	}
	return usecase.RenewOutcome{MemberID: memberID}, nil
}

func (m *MockMembershipUC) Status(ctx context.Context, memberID int64) (*usecase.MembershipStatus, error) {
	return &usecase.MembershipStatus{MemberID: memberID}, nil
}
