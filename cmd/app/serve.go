package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"venue-membership/internal/infra/api"
	"venue-membership/internal/infra/i18n"
	red "venue-membership/internal/infra/redis"
	"venue-membership/internal/infra/sched"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the daily renewal scheduler and the notification drain",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServe(ctx)
	},
}

func runServe(ctx context.Context) error {
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	target, err := a.deliveryTarget()
	if err != nil {
		return err
	}
	scheduler, err := sched.NewRenewalScheduler(a.cfg.Scheduler.RenewalCron, a.cfg.Location(), a.renewal, a.log)
	if err != nil {
		return err
	}
	messages, err := i18n.NewCatalog(i18n.LocalesFS, "ko", "en")
	if err != nil {
		return err
	}
	drain := sched.NewNotificationDrain(a.queue, target, a.cfg.Notify.PollTimeout, a.cfg.Notify.MaxAttempts, a.log)
	stats := sched.NewStatsWorker(time.Minute, a.memberships, func() (int32, int32, int32) {
		st := a.pool.Stat()
		return st.TotalConns(), st.IdleConns(), st.AcquiredConns()
	}, a.queue.Len, a.log)

	server := api.NewServer(api.Deps{
		Membership: a.membership,
		Payments:   a.payments,
		Renewal:    a.renewal,
		Auth:       api.NewAuthManager(a.cfg.HTTP.JWTSecret, a.cfg.HTTP.JWTIssuer),
		Limiter:    red.NewRateLimiter(a.redis),
		Idem:       red.NewIdempotencyStore(a.redis, a.cfg.HTTP.IdempotencyTTL),
		Messages:   messages,
		Health: map[string]api.HealthCheck{
			"postgres": a.pool.Ping,
			"redis":    a.redis.Ping,
		},
	}, a.cfg.HTTP, a.log)

	a.work.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx) })
	g.Go(func() error { return scheduler.Run(gctx) })
	g.Go(func() error { return drain.Run(gctx) })
	g.Go(func() error { return stats.Run(gctx) })

	err = g.Wait()
	a.log.Info().Msg("shutting down")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
