package redis

import (
	"context"
	"encoding/json"
	"time"

	"venue-membership/internal/domain/ports/adapter"

	"github.com/go-redis/redis/v8"
)

var _ adapter.Notifier = (*NotificationQueue)(nil)

// NotificationQueue is a reliable Redis list queue. Consumers move an item to
// the processing list while they deliver it and remove it on Ack, so a crash
// mid-delivery leaves the item recoverable.
type NotificationQueue struct {
	cli        *redis.Client
	key        string
	processing string
	dead       string
}

// Delivery is a notification taken off the queue.
type Delivery struct {
	Notification adapter.Notification
	Attempts     int
	raw          string
}

type envelope struct {
	Notification adapter.Notification `json:"notification"`
	Attempts     int                  `json:"attempts"`
	EnqueuedAt   time.Time            `json:"enqueued_at"`
}

func NewNotificationQueue(c *Client, key string) *NotificationQueue {
	return &NotificationQueue{
		cli:        c.cli,
		key:        key,
		processing: key + ":processing",
		dead:       key + ":dead",
	}
}

// Notify enqueues n.
func (q *NotificationQueue) Notify(ctx context.Context, n adapter.Notification) error {
	b, err := json.Marshal(envelope{Notification: n, EnqueuedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	return q.cli.LPush(ctx, q.key, b).Err()
}

// Receive blocks up to timeout for the next notification. It returns
// (nil, nil) when the queue stayed empty.
func (q *NotificationQueue) Receive(ctx context.Context, timeout time.Duration) (*Delivery, error) {
	raw, err := q.cli.BRPopLPush(ctx, q.key, q.processing, timeout).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		// unreadable payloads go straight to the dead list
		_, _ = q.cli.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.LRem(ctx, q.processing, 1, raw)
			p.LPush(ctx, q.dead, raw)
			return nil
		})
		return nil, err
	}
	return &Delivery{Notification: env.Notification, Attempts: env.Attempts, raw: raw}, nil
}

func (q *NotificationQueue) Ack(ctx context.Context, d *Delivery) error {
	return q.cli.LRem(ctx, q.processing, 1, d.raw).Err()
}

// Retry puts d back on the queue with its attempt count raised. Once
// maxAttempts is reached it is parked on the dead list instead.
func (q *NotificationQueue) Retry(ctx context.Context, d *Delivery, maxAttempts int) (dead bool, err error) {
	attempts := d.Attempts + 1
	b, err := json.Marshal(envelope{Notification: d.Notification, Attempts: attempts, EnqueuedAt: time.Now().UTC()})
	if err != nil {
		return false, err
	}
	dead = maxAttempts > 0 && attempts >= maxAttempts
	target := q.key
	if dead {
		target = q.dead
	}
	_, err = q.cli.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LRem(ctx, q.processing, 1, d.raw)
		p.LPush(ctx, target, b)
		return nil
	})
	return dead, err
}

// Recover moves everything left on the processing list back to the queue.
// Call it once before starting consumers.
func (q *NotificationQueue) Recover(ctx context.Context) (int, error) {
	n := 0
	for {
		err := q.cli.RPopLPush(ctx, q.processing, q.key).Err()
		if err == redis.Nil {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
	}
}

// Len reports the number of queued notifications.
func (q *NotificationQueue) Len(ctx context.Context) (int64, error) {
	return q.cli.LLen(ctx, q.key).Result()
}
