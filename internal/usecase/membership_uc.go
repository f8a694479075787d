package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"venue-membership/internal/domain"
	"venue-membership/internal/domain/model"
	"venue-membership/internal/domain/ports/adapter"
	"venue-membership/internal/domain/ports/repository"
	"venue-membership/internal/domain/ports/usecase"
)

// Compile-time check
var _ usecase.MembershipUseCase = (*membershipUC)(nil)

const compensateTimeout = 30 * time.Second

// MembershipConfig holds the knobs of the membership state machine.
type MembershipConfig struct {
	ValidityDays     int
	BillingKeyPrefix string
	Location         *time.Location
}

type membershipUC struct {
	members     repository.MemberRepository
	memberships repository.MembershipRepository
	subs        repository.SubscriptionRepository
	visits      repository.VisitationRepository
	payments    *PaymentUC
	gateway     adapter.PaymentGateway
	notifier    adapter.Notifier
	tm          repository.TransactionManager
	cfg         MembershipConfig
	log         *zerolog.Logger
	now         func() time.Time
}

func NewMembershipUseCase(
	members repository.MemberRepository,
	memberships repository.MembershipRepository,
	subs repository.SubscriptionRepository,
	visits repository.VisitationRepository,
	payments *PaymentUC,
	gateway adapter.PaymentGateway,
	notifier adapter.Notifier,
	tm repository.TransactionManager,
	cfg MembershipConfig,
	logger *zerolog.Logger,
) *membershipUC {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.ValidityDays <= 0 {
		cfg.ValidityDays = model.DefaultValidityDays
	}
	l := logger.With().Str("component", "MembershipUseCase").Logger()
	return &membershipUC{
		members:     members,
		memberships: memberships,
		subs:        subs,
		visits:      visits,
		payments:    payments,
		gateway:     gateway,
		notifier:    notifier,
		tm:          tm,
		cfg:         cfg,
		log:         &l,
		now:         time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (uc *membershipUC) WithClock(now func() time.Time) *membershipUC {
	uc.now = now
	return uc
}

func (uc *membershipUC) clock() time.Time {
	return uc.now().In(uc.cfg.Location)
}

// Subscribe turns the renewal flag on. A member with an unexpired window keeps
// it without a new period; a first activation gets a free period; everyone
// else pays for a new one.
func (uc *membershipUC) Subscribe(ctx context.Context, memberID int64) (*model.Membership, error) {
	member, err := uc.activeMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if m, err := uc.memberships.FindByMember(ctx, repository.NoTX, memberID); err == nil && m.IsActive {
		return nil, domain.ErrAlreadySubscribed
	} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	billingKey := member.BillingKey(uc.cfg.BillingKeyPrefix)
	ok, err := uc.gateway.HasStoredCredential(ctx, billingKey)
	if err != nil {
		return nil, fmt.Errorf("check billing credential: %w", err)
	}
	if !ok {
		return nil, domain.ErrNoBillingCredential
	}

	var (
		out     *model.Membership
		charged *model.Payment
		sub     *model.Subscription
	)
	err = uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		m, err := uc.memberships.LockForMember(ctx, tx, memberID)
		if err != nil {
			return err
		}
		if m.IsActive {
			return domain.ErrAlreadySubscribed
		}
		now := uc.clock()

		_, err = uc.subs.FindCovering(ctx, tx, memberID, now)
		switch {
		case err == nil:
			// the previous window has not lapsed yet
		case errors.Is(err, domain.ErrNotFound):
			firstActivation := m.NeverActivated()
			sub, err = model.NewSubscription(memberID, now, uc.cfg.ValidityDays)
			if err != nil {
				return err
			}
			if err := uc.subs.Save(ctx, tx, sub); err != nil {
				return err
			}
			if !firstActivation {
				p, err := uc.payments.Charge(ctx, tx, sub, billingKey)
				if p != nil {
					charged = p
				}
				if err != nil {
					return err
				}
			}
		default:
			return err
		}

		m.Activate(now)
		if err := uc.memberships.Save(ctx, tx, m); err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		if charged != nil {
			uc.compensate(ctx, charged, err)
		}
		return nil, err
	}

	ev := uc.log.Info().Int64("member_id", memberID)
	if sub != nil {
		ev = ev.Time("ended_at", sub.EndedAt)
	}
	ev.Bool("paid", charged != nil).Msg("membership subscribed")
	uc.notify(ctx, adapter.Notification{
		Title: "Membership activated",
		Text:  fmt.Sprintf("%s subscribed to the membership.", member.Username),
		Fields: []adapter.NotificationField{
			{Title: "member_id", Value: strconv.FormatInt(memberID, 10), Short: true},
			{Title: "paid", Value: strconv.FormatBool(charged != nil), Short: true},
		},
		Level: adapter.LevelInfo,
	})
	return out, nil
}

// Unsubscribe turns the renewal flag off. The current window is never refunded.
func (uc *membershipUC) Unsubscribe(ctx context.Context, memberID int64) (*model.Membership, error) {
	if _, err := uc.activeMember(ctx, memberID); err != nil {
		return nil, err
	}
	var out *model.Membership
	err := uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		m, err := uc.memberships.FindByMember(ctx, tx, memberID)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNotSubscribed
		}
		if err != nil {
			return err
		}
		if !m.IsActive {
			return domain.ErrNotSubscribed
		}
		m.Deactivate(uc.clock())
		if err := uc.memberships.Save(ctx, tx, m); err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	uc.log.Info().Int64("member_id", memberID).Msg("membership unsubscribed")
	return out, nil
}

// Renew grants the next period to an active membership whose latest period
// lapses before tomorrow 00:00. The member pays only if the lapsing period was
// used at least once.
func (uc *membershipUC) Renew(ctx context.Context, memberID int64) (usecase.RenewOutcome, error) {
	out := usecase.RenewOutcome{MemberID: memberID}
	member, err := uc.members.FindByID(ctx, repository.NoTX, memberID)
	if err != nil {
		return out, err
	}
	if !member.IsActive {
		out.Skipped, out.SkipReason = true, "member inactive"
		return out, nil
	}
	billingKey := member.BillingKey(uc.cfg.BillingKeyPrefix)

	var charged *model.Payment
	err = uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		m, err := uc.memberships.LockForMember(ctx, tx, memberID)
		if err != nil {
			return err
		}
		if !m.IsActive {
			out.Skipped, out.SkipReason = true, "membership inactive"
			return nil
		}
		now := uc.clock()
		latest, err := uc.subs.FindLatestByMember(ctx, tx, memberID)
		if errors.Is(err, domain.ErrNotFound) {
			out.Skipped, out.SkipReason = true, "no subscription"
			return nil
		}
		if err != nil {
			return err
		}
		if !latest.EndedAt.Before(model.NextThreshold(now)) {
			out.Skipped, out.SkipReason = true, "already renewed"
			return nil
		}

		visits, err := uc.visits.ListByMemberBetween(ctx, tx, memberID, latest.StartedAt, latest.EndedAt)
		if err != nil {
			return err
		}
		sub, err := model.NewSubscription(memberID, now, uc.cfg.ValidityDays)
		if err != nil {
			return err
		}
		if err := uc.subs.Save(ctx, tx, sub); err != nil {
			return err
		}
		if latest.HasRecordedUsage(visits) {
			p, err := uc.payments.Charge(ctx, tx, sub, billingKey)
			if p != nil {
				charged = p
			}
			if err != nil {
				return err
			}
		}

		m.MarkRenewed(now)
		if err := uc.memberships.Save(ctx, tx, m); err != nil {
			return err
		}
		out.Subscription = sub
		return nil
	})
	if err != nil {
		if charged != nil {
			uc.compensate(ctx, charged, err)
		}
		return usecase.RenewOutcome{MemberID: memberID}, err
	}
	if out.Skipped {
		lvl := uc.log.Debug()
		if out.SkipReason == "no subscription" {
			lvl = uc.log.Warn()
		}
		lvl.Int64("member_id", memberID).Str("reason", out.SkipReason).Msg("renewal skipped")
		return out, nil
	}

	out.Payment = charged
	uc.log.Info().Int64("member_id", memberID).Time("ended_at", out.Subscription.EndedAt).Bool("paid", charged != nil).Msg("membership renewed")
	return out, nil
}

// Status returns the member-facing view of the membership.
func (uc *membershipUC) Status(ctx context.Context, memberID int64) (*usecase.MembershipStatus, error) {
	if _, err := uc.members.FindByID(ctx, repository.NoTX, memberID); err != nil {
		return nil, err
	}
	now := uc.clock()
	st := &usecase.MembershipStatus{MemberID: memberID}

	m, err := uc.memberships.FindByMember(ctx, repository.NoTX, memberID)
	switch {
	case err == nil:
		st.IsActive = m.IsActive
		st.LastActivatedAt = m.LastActivatedAt
		st.LastDeactivatedAt = m.LastDeactivatedAt
		st.TotalDays = m.TotalDays(now)
	case errors.Is(err, domain.ErrNotFound):
	default:
		return nil, err
	}

	latest, err := uc.subs.FindLatestByMember(ctx, repository.NoTX, memberID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	st.LatestSubscription = latest

	cur, err := uc.subs.FindCovering(ctx, repository.NoTX, memberID, now)
	switch {
	case err == nil:
		st.HasBenefits = true
		end := cur.EndedAt
		st.BenefitEndsAt = &end
		if st.IsActive {
			st.NextPaymentAt = &end
		}
	case errors.Is(err, domain.ErrNotFound):
		if st.IsActive {
			uc.log.Warn().Int64("member_id", memberID).Err(domain.ErrNoActiveSubscription).Msg("inconsistent membership")
		}
	default:
		return nil, err
	}
	return st, nil
}

func (uc *membershipUC) activeMember(ctx context.Context, memberID int64) (*model.Member, error) {
	if memberID <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	member, err := uc.members.FindByID(ctx, repository.NoTX, memberID)
	if err != nil {
		return nil, err
	}
	if !member.IsActive {
		return nil, domain.ErrMemberInactive
	}
	return member, nil
}

// compensate refunds a charge whose transaction rolled back and escalates when
// the refund itself fails.
func (uc *membershipUC) compensate(ctx context.Context, p *model.Payment, cause error) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensateTimeout)
	defer cancel()

	err := uc.payments.refund(cctx, p, cause)
	if err == nil {
		uc.log.Warn().Err(cause).Str("payment_uid", p.PaymentUID).Msg("charge refunded after rollback")
		return
	}
	uc.log.Error().Err(err).AnErr("cause", cause).Str("payment_uid", p.PaymentUID).Msg("charge could not be refunded after rollback")
	uc.notify(cctx, adapter.Notification{
		Title: "Payment compensation failed",
		Text:  "A membership charge succeeded but the membership update rolled back and the refund failed.",
		Fields: []adapter.NotificationField{
			{Title: "payment_uid", Value: p.PaymentUID},
			{Title: "transaction_id", Value: p.GatewayTransactionID},
			{Title: "member_id", Value: strconv.FormatInt(p.MemberID, 10), Short: true},
			{Title: "amount", Value: strconv.FormatInt(p.Amount, 10), Short: true},
		},
		Level: adapter.LevelDanger,
	})
}

func (uc *membershipUC) notify(ctx context.Context, n adapter.Notification) {
	if uc.notifier == nil {
		return
	}
	if n.ID == "" {
		n.ID = ulid.Make().String()
	}
	if err := uc.notifier.Notify(ctx, n); err != nil {
		uc.log.Warn().Err(err).Str("title", n.Title).Msg("notification not queued")
	}
}
