package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"venue-membership/internal/domain/model"
	"venue-membership/internal/infra/logging"
	"venue-membership/internal/infra/metrics"
	"venue-membership/internal/infra/sched"
	appuc "venue-membership/internal/usecase"

	"github.com/go-chi/chi/v5"
)

type subscriptionDTO struct {
	ID           string    `json:"id"`
	StartedAt    time.Time `json:"started_at"`
	EndedAt      time.Time `json:"ended_at"`
	ValidityDays int       `json:"validity_days"`
}

type membershipStatusDTO struct {
	MemberID           int64            `json:"member_id"`
	IsActive           bool             `json:"is_active"`
	HasBenefits        bool             `json:"has_benefits"`
	BenefitEndsAt      *time.Time       `json:"benefit_ends_at"`
	NextPaymentAt      *time.Time       `json:"next_payment_at"`
	TotalDays          int              `json:"total_days"`
	LastActivatedAt    *time.Time       `json:"last_activated_at"`
	LastDeactivatedAt  *time.Time       `json:"last_deactivated_at"`
	LatestSubscription *subscriptionDTO `json:"latest_subscription"`
}

type paymentDTO struct {
	PaymentUID           string     `json:"payment_uid"`
	MemberID             int64      `json:"member_id"`
	SubscriptionID       *string    `json:"subscription_id"`
	GatewayTransactionID string     `json:"gateway_transaction_id"`
	Amount               int64      `json:"amount"`
	CanceledAmount       int64      `json:"canceled_amount"`
	PaidAt               time.Time  `json:"paid_at"`
	CanceledAt           *time.Time `json:"canceled_at"`
}

type sweepDTO struct {
	RunID      string    `json:"run_id"`
	Threshold  time.Time `json:"threshold"`
	Total      int       `json:"total"`
	Dispatched int       `json:"dispatched"`
	Failed     int       `json:"failed"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func toSubscriptionDTO(s *model.Subscription) *subscriptionDTO {
	if s == nil {
		return nil
	}
	return &subscriptionDTO{ID: s.ID, StartedAt: s.StartedAt, EndedAt: s.EndedAt, ValidityDays: s.ValidityDays}
}

func toPaymentDTO(p *model.Payment) paymentDTO {
	return paymentDTO{
		PaymentUID:           p.PaymentUID,
		MemberID:             p.MemberID,
		SubscriptionID:       p.SubscriptionID,
		GatewayTransactionID: p.GatewayTransactionID,
		Amount:               p.Amount,
		CanceledAmount:       p.CanceledAmount,
		PaidAt:               p.PaidAt,
		CanceledAt:           p.CanceledAt,
	}
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, actionSubscribe, s.deps.Membership.Subscribe)
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, actionUnsubscribe, s.deps.Membership.Unsubscribe)
}

func (s *Server) transition(w http.ResponseWriter, r *http.Request, action string, fn func(context.Context, int64) (*model.Membership, error)) {
	memberID, _ := memberFrom(r.Context())

	if _, err := fn(r.Context(), memberID); err != nil {
		metrics.IncMembershipTransition(action, resultLabel(err))
		s.writeError(w, r, err)
		return
	}
	metrics.IncMembershipTransition(action, "ok")
	l := logging.With(r.Context(), s.log)
	l.Info().Str("action", action).Msg("membership updated")
	writeJSON(w, http.StatusOK, messageBody{Message: "okay"})
}

func resultLabel(err error) string {
	switch statusFor(err) {
	case http.StatusBadRequest:
		return "rejected"
	case http.StatusPaymentRequired:
		return "payment_failed"
	default:
		return "error"
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	memberID, _ := memberFrom(r.Context())
	st, err := s.deps.Membership.Status(r.Context(), memberID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, membershipStatusDTO{
		MemberID:           st.MemberID,
		IsActive:           st.IsActive,
		HasBenefits:        st.HasBenefits,
		BenefitEndsAt:      st.BenefitEndsAt,
		NextPaymentAt:      st.NextPaymentAt,
		TotalDays:          st.TotalDays,
		LastActivatedAt:    st.LastActivatedAt,
		LastDeactivatedAt:  st.LastDeactivatedAt,
		LatestSubscription: toSubscriptionDTO(st.LatestSubscription),
	})
}

func (s *Server) handleCancelPayment(w http.ResponseWriter, r *http.Request) {
	l := logging.With(r.Context(), s.log)
	uid := chi.URLParam(r, "paymentUID")

	var req cancelRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
			return
		}
	}

	p, err := s.deps.Payments.Cancel(r.Context(), uid, req.Reason)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	l.Info().Str("payment_uid", uid).Int64("canceled_amount", p.CanceledAmount).Msg("payment canceled by operator")
	writeJSON(w, http.StatusOK, toPaymentDTO(p))
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	l := logging.With(r.Context(), s.log)
	// The sweep outlives a dropped connection; dispatched renewals still finish.
	ctx := context.WithoutCancel(r.Context())
	report, err := sched.RunSweep(ctx, s.deps.Renewal, appuc.TriggerManual, l)
	if err != nil && report.Dispatched == 0 {
		s.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if err != nil {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, sweepDTO{
		RunID:      report.RunID,
		Threshold:  report.Threshold,
		Total:      report.Total,
		Dispatched: report.Dispatched,
		Failed:     report.Failed,
	})
}

type healthDTO struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(s.deps.Health))
	for name := range s.deps.Health {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := healthDTO{Status: "ok", Checks: map[string]string{}}
	status := http.StatusOK
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := s.deps.Health[name](ctx)
		cancel()
		if err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	writeJSON(w, status, resp)
}
