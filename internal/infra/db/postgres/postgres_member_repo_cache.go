package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"venue-membership/internal/domain/model"
	"venue-membership/internal/domain/ports/repository"
	"venue-membership/internal/infra/metrics"
	red "venue-membership/internal/infra/redis"

	"github.com/rs/zerolog"
)

var _ repository.MemberRepository = (*memberRepoCacheDecorator)(nil)

// memberRepoCacheDecorator caches member lookups. Members are written by the
// account module, so entries only age out through ttl or Invalidate.
type memberRepoCacheDecorator struct {
	inner  repository.MemberRepository
	cache  red.RedisClient
	ttl    time.Duration
	logger *zerolog.Logger
}

func NewMemberRepoCacheDecorator(inner repository.MemberRepository, cache red.RedisClient, ttl time.Duration, logger *zerolog.Logger) *memberRepoCacheDecorator {
	if ttl <= 0 {
		ttl = 1 * time.Hour
	}
	l := logger.With().Str("component", "MemberCache").Logger()
	return &memberRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl, logger: &l}
}

func memberKey(id int64) string { return fmt.Sprintf("member:id:%d", id) }

func (d *memberRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.Member, error) {
	key := memberKey(id)
	val, err := d.cache.Get(ctx, key)
	if err == nil {
		var m model.Member
		if json.Unmarshal([]byte(val), &m) == nil {
			metrics.IncCacheRequest("member", "hit")
			return &m, nil
		}
	} else if !red.IsNil(err) {
		d.logger.Warn().Err(err).Int64("member_id", id).Msg("member cache read failed")
	}

	metrics.IncCacheRequest("member", "miss")
	m, err := d.inner.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(m); err == nil {
		_ = d.cache.Set(ctx, key, b, d.ttl)
	}
	return m, nil
}

// Invalidate drops the cached entry for id.
func (d *memberRepoCacheDecorator) Invalidate(ctx context.Context, id int64) error {
	return d.cache.Del(ctx, memberKey(id))
}
