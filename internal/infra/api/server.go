package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"venue-membership/internal/config"
	"venue-membership/internal/domain/ports/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Deps struct {
	Membership usecase.MembershipUseCase
	Payments   usecase.PaymentUseCase
	Renewal    usecase.RenewalUseCase
	Auth       *AuthManager
	Limiter    RateLimiter
	Idem       IdempotencyStore
	Messages   Messages
	Health     map[string]HealthCheck
}

// Server exposes membership actions to members and operators.
type Server struct {
	deps Deps
	cfg  config.HTTPConfig
	log  *zerolog.Logger
	srv  *http.Server
}

const (
	actionSubscribe   = "subscribe"
	actionUnsubscribe = "unsubscribe"
	memberRateLimit   = 10
	memberRateWindow  = time.Minute
)

func NewServer(deps Deps, cfg config.HTTPConfig, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "api").Logger()
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	return &Server{deps: deps, cfg: cfg, log: &l}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(), RequestLog(s.log), Recover(s.log))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(Timeout(s.cfg.RequestTimeout))

		r.Route("/membership", func(r chi.Router) {
			r.Use(MemberAuth(s.deps.Auth))
			r.Get("/", s.handleStatus)
			r.With(
				RateLimit(s.deps.Limiter, actionSubscribe, memberRateLimit, memberRateWindow, s.log),
				Idempotency(s.deps.Idem, actionSubscribe, s.cfg.RequestTimeout, s.log),
			).Post("/subscribe", s.handleSubscribe)
			r.With(
				RateLimit(s.deps.Limiter, actionUnsubscribe, memberRateLimit, memberRateWindow, s.log),
				Idempotency(s.deps.Idem, actionUnsubscribe, s.cfg.RequestTimeout, s.log),
			).Post("/unsubscribe", s.handleUnsubscribe)
		})

		r.Route("/admin", func(r chi.Router) {
			r.With(
				AdminKey(s.cfg.AdminAPIKey, "cancel_payment", s.log),
				Idempotency(s.deps.Idem, "cancel_payment", s.cfg.RequestTimeout, s.log),
			).Post("/payments/{paymentUID}/cancel", s.handleCancelPayment)
			r.With(AdminKey(s.cfg.AdminAPIKey, "renewal_sweep", s.log)).
				Post("/renewals/sweep", s.handleSweep)
		})
	})
	return r
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Int("port", s.cfg.Port).Msg("HTTP server listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
