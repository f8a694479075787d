package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"venue-membership/internal/domain/ports/repository"
	"venue-membership/internal/infra/metrics"
)

// PoolStats reports database pool gauges as total, idle and in-use conns.
type PoolStats func() (total, idle, inUse int32)

// QueueDepth reports the notification backlog.
type QueueDepth func(ctx context.Context) (int64, error)

// StatsWorker periodically refreshes gauges that are cheaper to sample than
// to track on every write.
type StatsWorker struct {
	interval    time.Duration
	memberships repository.MembershipRepository
	poolStats   PoolStats
	queueDepth  QueueDepth
	log         *zerolog.Logger
}

func NewStatsWorker(interval time.Duration, memberships repository.MembershipRepository, poolStats PoolStats, queueDepth QueueDepth, logger *zerolog.Logger) *StatsWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	compLog := logger.With().Str("component", "StatsWorker").Logger()
	return &StatsWorker{
		interval:    interval,
		memberships: memberships,
		poolStats:   poolStats,
		queueDepth:  queueDepth,
		log:         &compLog,
	}
}

func (w *StatsWorker) Run(ctx context.Context) error {
	w.log.Info().Msg("Starting stats worker")
	w.sample(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping stats worker")
			return ctx.Err()
		case <-ticker.C:
			w.sample(ctx)
		}
	}
}

func (w *StatsWorker) sample(ctx context.Context) {
	if n, err := w.memberships.CountActive(ctx, repository.NoTX); err != nil {
		w.log.Warn().Err(err).Msg("count active memberships failed")
	} else {
		metrics.SetMembershipsActive(n)
	}
	if w.poolStats != nil {
		metrics.SetDBPoolStats(w.poolStats())
	}
	if w.queueDepth != nil {
		if n, err := w.queueDepth(ctx); err == nil {
			metrics.SetNotificationQueueDepth(n)
		}
	}
}
