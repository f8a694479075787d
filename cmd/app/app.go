package main

import (
	"context"
	"fmt"
	"strings"

	"venue-membership/internal/config"
	"venue-membership/internal/domain/ports/adapter"
	"venue-membership/internal/domain/ports/repository"
	portuc "venue-membership/internal/domain/ports/usecase"
	notifyAdapters "venue-membership/internal/infra/adapters/notify"
	payAdapters "venue-membership/internal/infra/adapters/payment"
	pg "venue-membership/internal/infra/db/postgres"
	"venue-membership/internal/infra/logging"
	"venue-membership/internal/infra/metrics"
	red "venue-membership/internal/infra/redis"
	"venue-membership/internal/infra/sched"
	"venue-membership/internal/infra/worker"
	"venue-membership/internal/usecase"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"
)

const sweepLockKey = "membership:renewal-sweep"

// app is the object graph shared by the subcommands.
type app struct {
	cfg   *config.Config
	log   *zerolog.Logger
	pool  *pgxpool.Pool
	redis *red.Client
	queue *red.NotificationQueue
	work  *worker.Pool

	memberships repository.MembershipRepository
	membership  portuc.MembershipUseCase
	payments    portuc.PaymentUseCase
	renewal     portuc.RenewalUseCase
}

func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(cfgPath, devMode)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("[DEV MODE] Enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(Version, GitCommit)

	// ---- Postgres ----
	pool, err := pg.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	// ---- Redis ----
	rc, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}

	// ---- Repositories ----
	tm := pg.NewTxManager(pool)
	members := pg.NewMemberRepoCacheDecorator(pg.NewMemberRepo(pool), rc, cfg.Redis.TTL, logger)
	memberships := pg.NewMembershipRepo(pool)
	subs := pg.NewSubscriptionRepo(pool)
	visits := pg.NewVisitationRepo(pool)
	payRepo := pg.NewPaymentRepo(pool)

	// ---- Payment gateway ----
	var gw adapter.PaymentGateway
	switch strings.ToLower(cfg.Payment.Provider) {
	case "noop":
		logger.Warn().Msg("payment provider is noop; no money moves")
		gw = payAdapters.NewNoopPaymentGateway()
	default:
		iamport, err := payAdapters.NewIamportGateway(cfg.Payment.Iamport, cfg.Runtime.Dev, logger)
		if err != nil {
			pool.Close()
			_ = rc.Close()
			return nil, fmt.Errorf("iamport gateway: %w", err)
		}
		gw = iamport
	}
	gw = payAdapters.NewInstrumentedGateway(gw)

	// Use cases enqueue; the drain in serve delivers.
	queue := red.NewNotificationQueue(rc, cfg.Notify.QueueKey)

	// ---- Use cases ----
	loc := cfg.Location()
	paymentUC := usecase.NewPaymentUseCase(payRepo, gw, tm, usecase.PaymentConfig{
		UIDPrefix:   cfg.Membership.UIDPrefix,
		Price:       cfg.Payment.Price,
		Description: cfg.Payment.Description,
	}, logger)
	membershipUC := usecase.NewMembershipUseCase(members, memberships, subs, visits, paymentUC, gw, queue, tm, usecase.MembershipConfig{
		ValidityDays:     cfg.Membership.ValidityDays,
		BillingKeyPrefix: cfg.Membership.UIDPrefix,
		Location:         loc,
	}, logger)

	work := worker.NewPool(cfg.Scheduler.Workers, cfg.Scheduler.Workers*8, logger)
	renewalUC := usecase.NewRenewalUseCase(memberships, sched.NewInstrumentedRenewer(membershipUC), work, red.NewLocker(rc), queue, usecase.RenewalConfig{
		LockKey:  sweepLockKey,
		LockTTL:  cfg.Scheduler.SweepLockTTL,
		Location: loc,
	}, logger)

	return &app{
		cfg:         cfg,
		log:         logger,
		pool:        pool,
		redis:       rc,
		queue:       queue,
		work:        work,
		memberships: memberships,
		membership:  membershipUC,
		payments:    paymentUC,
		renewal:     renewalUC,
	}, nil
}

// deliveryTarget is the channel the notification drain writes to.
func (a *app) deliveryTarget() (adapter.Notifier, error) {
	switch strings.ToLower(a.cfg.Notify.Channel) {
	case "log":
		return notifyAdapters.NewLogNotifier(a.log), nil
	default:
		tg, err := notifyAdapters.NewTelegramNotifier(a.cfg.Notify.Telegram)
		if err != nil {
			return nil, fmt.Errorf("telegram notifier: %w", err)
		}
		return tg, nil
	}
}

func (a *app) Close() {
	a.work.Stop()
	if err := a.redis.Close(); err != nil {
		a.log.Warn().Err(err).Msg("redis close")
	}
	a.pool.Close()
}
