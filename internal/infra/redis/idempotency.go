package redis

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"venue-membership/internal/domain"
)

// CachedResponse is a recorded HTTP response replayed for a repeated
// Idempotency-Key.
type CachedResponse struct {
	Status int         `json:"status"`
	Header http.Header `json:"header,omitempty"`
	Body   []byte      `json:"body"`
}

type IdempotencyStore struct {
	client RedisClient
	ttl    time.Duration
}

func NewIdempotencyStore(client RedisClient, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyStore{client: client, ttl: ttl}
}

func (s *IdempotencyStore) key(scope, key string) string {
	return "idempotency:" + scope + ":" + key
}

func (s *IdempotencyStore) lockKey(scope, key string) string {
	return s.key(scope, key) + ":inflight"
}

// Get returns domain.ErrNotFound when nothing was recorded under key.
func (s *IdempotencyStore) Get(ctx context.Context, scope, key string) (*CachedResponse, error) {
	raw, err := s.client.Get(ctx, s.key(scope, key))
	if IsNil(err) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var resp CachedResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Begin marks key as in flight. It returns false if another request with the
// same key is still running.
func (s *IdempotencyStore) Begin(ctx context.Context, scope, key string, timeout time.Duration) (bool, error) {
	return s.client.SetNX(ctx, s.lockKey(scope, key), "1", timeout)
}

// Finish stores resp (when not nil) and clears the in-flight marker.
func (s *IdempotencyStore) Finish(ctx context.Context, scope, key string, resp *CachedResponse) error {
	defer func() { _ = s.client.Del(ctx, s.lockKey(scope, key)) }()
	if resp == nil {
		return nil
	}
	b, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(scope, key), b, s.ttl)
}
