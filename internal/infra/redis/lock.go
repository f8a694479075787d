package redis

import (
	"context"
	"time"

	"venue-membership/internal/domain"
	"venue-membership/internal/domain/ports/adapter"

	"github.com/eapache/go-resiliency/retrier"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

var _ adapter.Locker = (*RedisLocker)(nil)

type RedisLocker struct {
	cli *redis.Client
}

func NewLocker(c *Client) *RedisLocker {
	return &RedisLocker{cli: c.cli}
}

// TryLock takes key for ttl. A key held by someone else yields
// domain.ErrLockHeld right away; transport errors are retried a few times.
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	r := retrier.New(retrier.ConstantBackoff(2, 50*time.Millisecond), retrier.BlacklistClassifier{domain.ErrLockHeld})
	err := r.RunCtx(ctx, func(ctx context.Context) error {
		ok, err := l.cli.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrLockHeld
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

var luaUnlock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

// Unlock releases key only when it still carries token.
func (l *RedisLocker) Unlock(ctx context.Context, key, token string) error {
	_, err := luaUnlock.Run(ctx, l.cli, []string{key}, token).Result()
	return err
}
