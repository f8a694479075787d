package sched

import (
	"context"
	"time"

	"github.com/eapache/go-resiliency/retrier"
	"github.com/rs/zerolog"

	"venue-membership/internal/domain/ports/adapter"
	"venue-membership/internal/infra/metrics"
	red "venue-membership/internal/infra/redis"
)

// NotificationSource is the consumer side of the notification queue.
type NotificationSource interface {
	Receive(ctx context.Context, timeout time.Duration) (*red.Delivery, error)
	Ack(ctx context.Context, d *red.Delivery) error
	Retry(ctx context.Context, d *red.Delivery, maxAttempts int) (dead bool, err error)
	Recover(ctx context.Context) (int, error)
}

// NotificationDrain moves queued notifications to the delivery channel.
// Each item is tried a few times in place, then requeued, and parked on the
// dead list after maxAttempts requeues.
type NotificationDrain struct {
	source      NotificationSource
	target      adapter.Notifier
	pollTimeout time.Duration
	maxAttempts int
	sendTimeout time.Duration
	retry       *retrier.Retrier
	log         *zerolog.Logger
}

func NewNotificationDrain(source NotificationSource, target adapter.Notifier, pollTimeout time.Duration, maxAttempts int, logger *zerolog.Logger) *NotificationDrain {
	if pollTimeout <= 0 {
		pollTimeout = 5 * time.Second
	}
	compLog := logger.With().Str("component", "NotificationDrain").Logger()
	return &NotificationDrain{
		source:      source,
		target:      target,
		pollTimeout: pollTimeout,
		maxAttempts: maxAttempts,
		sendTimeout: 15 * time.Second,
		retry:       retrier.New(retrier.ExponentialBackoff(2, 200*time.Millisecond), nil),
		log:         &compLog,
	}
}

func (w *NotificationDrain) Run(ctx context.Context) error {
	w.log.Info().Msg("Starting notification drain")
	if n, err := w.source.Recover(ctx); err != nil {
		w.log.Warn().Err(err).Msg("could not recover in-flight notifications")
	} else if n > 0 {
		w.log.Info().Int("count", n).Msg("recovered in-flight notifications")
	}

	for {
		if ctx.Err() != nil {
			w.log.Info().Msg("Stopping notification drain")
			return ctx.Err()
		}
		d, err := w.source.Receive(ctx, w.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.log.Error().Err(err).Msg("notification receive failed")
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}
		if d == nil {
			continue
		}
		w.deliver(ctx, d)
	}
}

func (w *NotificationDrain) deliver(ctx context.Context, d *red.Delivery) {
	level := string(d.Notification.Level)
	sendCtx, cancel := context.WithTimeout(ctx, w.sendTimeout)
	err := w.retry.RunCtx(sendCtx, func(ctx context.Context) error {
		return w.target.Notify(ctx, d.Notification)
	})
	cancel()

	// queue bookkeeping must survive shutdown
	bg := context.WithoutCancel(ctx)
	if err == nil {
		if ackErr := w.source.Ack(bg, d); ackErr != nil {
			w.log.Warn().Err(ackErr).Str("notification_id", d.Notification.ID).Msg("ack failed; notification may be sent twice")
		}
		metrics.IncNotification(level, "sent")
		return
	}

	dead, rerr := w.source.Retry(bg, d, w.maxAttempts)
	if rerr != nil {
		metrics.IncNotification(level, "error")
		w.log.Error().Err(rerr).Str("notification_id", d.Notification.ID).Msg("could not requeue notification")
		return
	}
	if dead {
		metrics.IncNotification(level, "dead")
		w.log.Error().Err(err).Str("notification_id", d.Notification.ID).Str("title", d.Notification.Title).Msg("notification dropped to dead list")
		return
	}
	metrics.IncNotification(level, "retried")
	w.log.Warn().Err(err).Str("notification_id", d.Notification.ID).Int("attempts", d.Attempts+1).Msg("notification requeued")
}
