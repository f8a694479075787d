package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"venue-membership/internal/domain"
	"venue-membership/internal/domain/model"
	"venue-membership/internal/domain/ports/adapter"
	"venue-membership/internal/domain/ports/repository"
	"venue-membership/internal/domain/ports/usecase"
)

// Compile-time check
var _ usecase.PaymentUseCase = (*PaymentUC)(nil)

// PaymentConfig carries the billing constants.
type PaymentConfig struct {
	UIDPrefix   string
	Price       int64
	Description string
}

type PaymentUC struct {
	payments repository.PaymentRepository
	gateway  adapter.PaymentGateway
	tm       repository.TransactionManager
	cfg      PaymentConfig
	log      *zerolog.Logger
	now      func() time.Time
}

func NewPaymentUseCase(payments repository.PaymentRepository, gateway adapter.PaymentGateway, tm repository.TransactionManager, cfg PaymentConfig, logger *zerolog.Logger) *PaymentUC {
	l := logger.With().Str("component", "PaymentUseCase").Logger()
	return &PaymentUC{
		payments: payments,
		gateway:  gateway,
		tm:       tm,
		cfg:      cfg,
		log:      &l,
		now:      time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (u *PaymentUC) WithClock(now func() time.Time) *PaymentUC {
	u.now = now
	return u
}

// Charge bills the membership price for sub and records the payment in tx.
// Any gateway failure is returned wrapped in domain.ErrPaymentFailed and
// nothing is persisted.
func (u *PaymentUC) Charge(ctx context.Context, tx repository.Tx, sub *model.Subscription, billingKey string) (*model.Payment, error) {
	if sub == nil || billingKey == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := u.now()
	uid, err := model.NewPaymentUID(u.cfg.UIDPrefix, now)
	if err != nil {
		return nil, fmt.Errorf("generate payment uid: %w", err)
	}

	res, err := u.gateway.Charge(ctx, billingKey, uid, u.cfg.Price, u.cfg.Description)
	if err != nil {
		u.log.Warn().Err(err).Int64("member_id", sub.MemberID).Str("payment_uid", uid).Msg("charge failed")
		return nil, fmt.Errorf("%w: payment %s: %w", domain.ErrPaymentFailed, uid, err)
	}

	p, err := model.NewPayment(sub, uid, res.TransactionID, u.cfg.Price, u.now())
	if err != nil {
		return nil, err
	}
	if err := u.payments.Save(ctx, tx, p); err != nil {
		return p, err
	}
	u.log.Info().Int64("member_id", p.MemberID).Str("payment_uid", p.PaymentUID).Int64("amount", p.Amount).Msg("payment charged")
	return p, nil
}

// Cancel cancels a recorded payment at the gateway. A payment that already
// carries canceled_at is rejected without calling the gateway.
func (u *PaymentUC) Cancel(ctx context.Context, paymentUID, reason string) (*model.Payment, error) {
	if paymentUID == "" {
		return nil, domain.ErrInvalidArgument
	}
	var out *model.Payment
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		p, err := u.payments.FindByUID(ctx, tx, paymentUID)
		if err != nil {
			return err
		}
		if p.IsCanceled() {
			return domain.ErrPaymentAlreadyCanceled
		}

		res, err := u.gateway.Cancel(ctx, p.GatewayTransactionID, p.PaymentUID, reason)
		if err != nil {
			return fmt.Errorf("%w: %w", domain.ErrPaymentCancelFailed, err)
		}
		if err := p.MarkCanceled(res.CanceledAmount, u.now()); err != nil {
			return err
		}
		if err := u.payments.Save(ctx, tx, p); err != nil {
			u.log.Error().Err(err).Str("payment_uid", p.PaymentUID).Msg("payment canceled at gateway but not recorded")
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	u.log.Info().Str("payment_uid", out.PaymentUID).Int64("canceled_amount", out.CanceledAmount).Msg("payment canceled")
	return out, nil
}

// refund cancels a charge whose local transaction did not commit.
func (u *PaymentUC) refund(ctx context.Context, p *model.Payment, cause error) error {
	reason := "membership update rolled back"
	if cause != nil && errors.Is(cause, context.DeadlineExceeded) {
		reason = "membership update timed out"
	}
	_, err := u.gateway.Cancel(ctx, p.GatewayTransactionID, p.PaymentUID, reason)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrPaymentCancelFailed, err)
	}
	return nil
}
