package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"venue-membership/internal/domain"
	"venue-membership/internal/infra/logging"
	"venue-membership/internal/infra/metrics"
	red "venue-membership/internal/infra/redis"

	"github.com/rs/zerolog"
)

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type IdempotencyStore interface {
	Get(ctx context.Context, scope, key string) (*red.CachedResponse, error)
	Begin(ctx context.Context, scope, key string, timeout time.Duration) (bool, error)
	Finish(ctx context.Context, scope, key string, resp *red.CachedResponse) error
}

// RateLimit allows limit requests per member and action within window.
// Redis failures let the request through.
func RateLimit(limiter RateLimiter, action string, limit int, window time.Duration, logger *zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			memberID, ok := memberFrom(r.Context())
			if !ok || limiter == nil {
				next.ServeHTTP(w, r)
				return
			}
			allowed, err := limiter.Allow(r.Context(), red.MemberActionKey(memberID, action), limit, window)
			if err != nil {
				l := logging.With(r.Context(), logger)
				l.Warn().Err(err).Str("action", action).Msg("rate limiter unavailable")
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				metrics.IncRateLimited(action)
				w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
				writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "too many requests"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

const (
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotent-Replayed"
)

// Idempotency replays the stored response for a repeated Idempotency-Key.
// Keys are scoped to the member and the action; server errors are not stored.
func Idempotency(store IdempotencyStore, action string, inflight time.Duration, logger *zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(idempotencyHeader)
			if key == "" || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > 128 {
				writeJSON(w, http.StatusBadRequest, errorBody{Error: "idempotency key too long"})
				return
			}
			scope := action
			if memberID, ok := memberFrom(r.Context()); ok {
				scope = "member:" + strconv.FormatInt(memberID, 10) + ":" + action
			}
			l := logging.With(r.Context(), logger)

			cached, err := store.Get(r.Context(), scope, key)
			switch {
			case err == nil:
				replay(w, cached)
				return
			case !errors.Is(err, domain.ErrNotFound):
				l.Warn().Err(err).Msg("idempotency store unavailable")
				next.ServeHTTP(w, r)
				return
			}

			started, err := store.Begin(r.Context(), scope, key, inflight)
			if err != nil {
				l.Warn().Err(err).Msg("idempotency store unavailable")
				next.ServeHTTP(w, r)
				return
			}
			if !started {
				writeJSON(w, http.StatusConflict, errorBody{Error: "a request with this idempotency key is in progress"})
				return
			}

			rec := &recordingWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			var resp *red.CachedResponse
			if rec.status < http.StatusInternalServerError {
				resp = &red.CachedResponse{
					Status: rec.status,
					Header: http.Header{"Content-Type": w.Header().Values("Content-Type")},
					Body:   rec.body.Bytes(),
				}
			}
			if err := store.Finish(context.WithoutCancel(r.Context()), scope, key, resp); err != nil {
				l.Warn().Err(err).Msg("failed to record idempotent response")
			}
		})
	}
}

func replay(w http.ResponseWriter, c *red.CachedResponse) {
	for k, vs := range c.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.Header().Set(replayedHeader, "true")
	w.WriteHeader(c.Status)
	_, _ = w.Write(c.Body)
}

type recordingWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (w *recordingWriter) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.status = status
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(status)
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}
