package sched

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"venue-membership/internal/domain"
	"venue-membership/internal/domain/ports/usecase"
	"venue-membership/internal/infra/metrics"
	appuc "venue-membership/internal/usecase"
)

// RenewalScheduler fires the renewal sweep on a cron spec evaluated in the
// service time zone.
type RenewalScheduler struct {
	spec    string
	cron    *cron.Cron
	renewal usecase.RenewalUseCase
	log     *zerolog.Logger
}

func NewRenewalScheduler(spec string, loc *time.Location, renewal usecase.RenewalUseCase, logger *zerolog.Logger) (*RenewalScheduler, error) {
	if loc == nil {
		loc = time.Local
	}
	compLog := logger.With().Str("component", "RenewalScheduler").Logger()
	s := &RenewalScheduler{
		spec:    spec,
		cron:    cron.New(cron.WithLocation(loc), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		renewal: renewal,
		log:     &compLog,
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid renewal cron %q: %w", spec, err)
	}
	return s, nil
}

// Run schedules the sweep and blocks until ctx is done. A sweep in progress
// is allowed to finish before Run returns.
func (s *RenewalScheduler) Run(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() { _, _ = RunSweep(ctx, s.renewal, appuc.TriggerSchedule, s.log) }); err != nil {
		return err
	}
	s.log.Info().Str("spec", s.spec).Msg("Starting renewal scheduler")
	s.cron.Start()

	<-ctx.Done()
	s.log.Info().Msg("Stopping renewal scheduler")
	<-s.cron.Stop().Done()
	return ctx.Err()
}

// RunSweep runs one sweep and records its metrics. trigger selects between
// the daily scheduled sweep and a manual run.
func RunSweep(ctx context.Context, renewal usecase.RenewalUseCase, trigger string, log *zerolog.Logger) (usecase.SweepReport, error) {
	start := time.Now()
	var (
		report usecase.SweepReport
		err    error
	)
	if trigger == appuc.TriggerSchedule {
		report, err = renewal.Sweep(ctx)
	} else {
		report, err = renewal.RunManual(ctx)
	}
	elapsed := time.Since(start)

	result := "ok"
	switch {
	case errors.Is(err, domain.ErrLockHeld):
		result = "locked"
	case err != nil && report.Dispatched == 0:
		result = "error"
	case err != nil, report.Failed > 0:
		result = "partial"
	}
	metrics.ObserveRenewalSweep(trigger, result, elapsed.Seconds(), time.Now().Unix())

	switch result {
	case "locked":
		log.Info().Str("trigger", trigger).Msg("renewal sweep skipped: lock held")
	case "ok":
		log.Info().Str("run_id", report.RunID).Dur("elapsed", elapsed).Msg("renewal sweep done")
	default:
		log.Error().Err(err).Str("run_id", report.RunID).Int("failed", report.Failed).Dur("elapsed", elapsed).Msg("renewal sweep finished with errors")
	}
	return report, err
}
