package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"venue-membership/internal/domain"
	"venue-membership/internal/domain/model"
	"venue-membership/internal/domain/ports/adapter"
	"venue-membership/internal/domain/ports/repository"
	"venue-membership/internal/domain/ports/usecase"
)

// Compile-time check
var _ usecase.RenewalUseCase = (*RenewalUC)(nil)

const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
)

// TaskSubmitter runs units of work on a worker pool. Submit blocks until the
// task is queued or ctx is done.
type TaskSubmitter interface {
	Submit(ctx context.Context, task func(ctx context.Context) error) error
}

// RenewalConfig controls the sweep lock.
type RenewalConfig struct {
	LockKey  string
	LockTTL  time.Duration
	Location *time.Location
}

type RenewalUC struct {
	memberships repository.MembershipRepository
	renewer     usecase.MembershipUseCase
	pool        TaskSubmitter
	locker      adapter.Locker
	notifier    adapter.Notifier
	cfg         RenewalConfig
	log         *zerolog.Logger
	now         func() time.Time
}

func NewRenewalUseCase(
	memberships repository.MembershipRepository,
	renewer usecase.MembershipUseCase,
	pool TaskSubmitter,
	locker adapter.Locker,
	notifier adapter.Notifier,
	cfg RenewalConfig,
	logger *zerolog.Logger,
) *RenewalUC {
	if cfg.LockKey == "" {
		cfg.LockKey = "membership:renewal-sweep"
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 23 * time.Hour
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	l := logger.With().Str("component", "RenewalUseCase").Logger()
	return &RenewalUC{
		memberships: memberships,
		renewer:     renewer,
		pool:        pool,
		locker:      locker,
		notifier:    notifier,
		cfg:         cfg,
		log:         &l,
		now:         time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (u *RenewalUC) WithClock(now func() time.Time) *RenewalUC {
	u.now = now
	return u
}

// Sweep runs the scheduled sweep. The lock is keyed by calendar day and kept
// until it expires so other replicas skip the same day.
func (u *RenewalUC) Sweep(ctx context.Context) (usecase.SweepReport, error) {
	return u.Run(ctx, TriggerSchedule)
}

// RunManual runs an operator-triggered sweep. Only concurrent manual runs
// exclude each other.
func (u *RenewalUC) RunManual(ctx context.Context) (usecase.SweepReport, error) {
	return u.Run(ctx, TriggerManual)
}

// Run dispatches one renewal unit per membership due before tomorrow 00:00,
// waits for them and sends the summary notification.
func (u *RenewalUC) Run(ctx context.Context, trigger string) (usecase.SweepReport, error) {
	now := u.now().In(u.cfg.Location)
	report := usecase.SweepReport{
		RunID:     ulid.Make().String(),
		Threshold: model.NextThreshold(now),
	}
	log := u.log.With().Str("run_id", report.RunID).Str("trigger", trigger).Logger()

	key := u.cfg.LockKey + ":" + now.Format("2006-01-02")
	if trigger != TriggerSchedule {
		key = u.cfg.LockKey + ":" + trigger
	}
	token, err := u.locker.TryLock(ctx, key, u.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			log.Info().Str("key", key).Msg("sweep already running or done elsewhere")
		}
		return report, err
	}
	release := trigger != TriggerSchedule
	defer func() {
		if !release {
			return
		}
		if err := u.locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("failed to release sweep lock")
		}
	}()

	due, err := u.memberships.ListActiveDue(ctx, repository.NoTX)
	if err != nil {
		release = true
		return report, fmt.Errorf("list active memberships: %w", err)
	}
	report.Total = len(due)

	var (
		result *multierror.Error
		wg     sync.WaitGroup
		failed atomic.Int64
	)
	for _, d := range due {
		if !d.DueBefore(report.Threshold) {
			if d.BenefitEndsAt == nil {
				log.Warn().Int64("member_id", d.MemberID).Err(domain.ErrNoActiveSubscription).Msg("active membership without subscription")
			}
			continue
		}
		memberID := d.MemberID
		wg.Add(1)
		err := u.pool.Submit(ctx, func(ctx context.Context) error {
			defer wg.Done()
			_, err := u.renewer.Renew(ctx, memberID)
			if err != nil {
				failed.Add(1)
				u.reportFailure(ctx, report.RunID, memberID, err)
			}
			return err
		})
		if err != nil {
			wg.Done()
			result = multierror.Append(result, fmt.Errorf("dispatch renewal for member %d: %w", memberID, err))
			continue
		}
		report.Dispatched++
	}
	wg.Wait()
	report.Failed = int(failed.Load())

	log.Info().
		Int("total", report.Total).
		Int("dispatched", report.Dispatched).
		Int("failed", report.Failed).
		Time("threshold", report.Threshold).
		Msg("renewal sweep finished")

	u.notify(ctx, adapter.Notification{
		Title: "Membership renewal sweep",
		Text:  "Daily membership renewal check finished.",
		Fields: []adapter.NotificationField{
			{Title: "total membership count", Value: strconv.Itoa(report.Total), Short: true},
			{Title: "renew subscription count", Value: strconv.Itoa(report.Dispatched), Short: true},
			{Title: "failed renewal count", Value: strconv.Itoa(report.Failed), Short: true},
			{Title: "run", Value: report.RunID, Short: true},
		},
		Level: summaryLevel(report, result.ErrorOrNil()),
	})
	return report, result.ErrorOrNil()
}

func summaryLevel(r usecase.SweepReport, dispatchErr error) adapter.NotificationLevel {
	if r.Failed > 0 || dispatchErr != nil {
		return adapter.LevelWarning
	}
	return adapter.LevelInfo
}

func (u *RenewalUC) reportFailure(ctx context.Context, runID string, memberID int64, err error) {
	u.log.Error().Err(err).Str("run_id", runID).Int64("member_id", memberID).Msg("renewal failed")
	u.notify(ctx, adapter.Notification{
		Title: "Membership renewal failed",
		Text:  err.Error(),
		Fields: []adapter.NotificationField{
			{Title: "member_id", Value: strconv.FormatInt(memberID, 10), Short: true},
			{Title: "run", Value: runID, Short: true},
		},
		Level: adapter.LevelDanger,
	})
}

func (u *RenewalUC) notify(ctx context.Context, n adapter.Notification) {
	if u.notifier == nil {
		return
	}
	if n.ID == "" {
		n.ID = ulid.Make().String()
	}
	if err := u.notifier.Notify(context.WithoutCancel(ctx), n); err != nil {
		u.log.Warn().Err(err).Str("title", n.Title).Msg("notification not queued")
	}
}
