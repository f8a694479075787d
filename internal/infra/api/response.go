package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"venue-membership/internal/domain"
	"venue-membership/internal/infra/i18n"
	"venue-membership/internal/infra/logging"
)

type errorBody struct {
	Error string `json:"error"`
}

type messageBody struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case domain.IsValidation(err), errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrPaymentFailed):
		return http.StatusPaymentRequired
	case errors.Is(err, domain.ErrPaymentCancelFailed):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrPaymentAlreadyCanceled), errors.Is(err, domain.ErrLockHeld):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

type errorMessage struct {
	err error
	key string
}

var errorMessages = []errorMessage{
	{domain.ErrAlreadySubscribed, "error.already_subscribed"},
	{domain.ErrNoBillingCredential, "error.no_billing_credential"},
	{domain.ErrNotSubscribed, "error.not_subscribed"},
	{domain.ErrMemberInactive, "error.member_inactive"},
	{domain.ErrPaymentFailed, "error.payment_failed"},
	{domain.ErrPaymentCancelFailed, "error.payment_cancel_failed"},
	{domain.ErrPaymentAlreadyCanceled, "error.payment_already_canceled"},
	{domain.ErrLockHeld, "error.lock_held"},
	{domain.ErrNotFound, "error.not_found"},
	{domain.ErrInvalidArgument, "error.invalid_argument"},
}

// Messages localizes member-facing error text.
type Messages interface {
	For(acceptLanguage string) *i18n.Translator
}

// writeError answers with the mapped status. Internal errors are logged and
// hidden from the caller.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	l := logging.With(r.Context(), s.log)
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		l.Error().Err(err).Msg("request failed")
	} else {
		l.Warn().Err(err).Int("status", status).Msg("request rejected")
	}
	writeJSON(w, status, errorBody{Error: s.message(r, err, status)})
}

func (s *Server) message(r *http.Request, err error, status int) string {
	key, fallback := "error.internal", "internal error"
	if status != http.StatusInternalServerError {
		for _, m := range errorMessages {
			if errors.Is(err, m.err) {
				key, fallback = m.key, m.err.Error()
				break
			}
		}
	}
	if s.deps.Messages == nil {
		return fallback
	}
	return s.deps.Messages.For(r.Header.Get("Accept-Language")).T(key)
}
