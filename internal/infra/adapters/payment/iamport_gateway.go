// File: internal/infra/adapters/payment/iamport_gateway.go
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"venue-membership/internal/config"
	"venue-membership/internal/domain"
	"venue-membership/internal/domain/ports/adapter"
	"venue-membership/internal/infra/logging"

	"github.com/eapache/go-resiliency/retrier"
	"github.com/rs/zerolog"
)

var _ adapter.PaymentGateway = (*IamportGateway)(nil)

// codeNotFound is the iamport response code for an unknown customer_uid.
const codeNotFound = 1

// IamportGateway implements adapter.PaymentGateway against the iamport REST
// API using stored billing keys (customer_uid).
type IamportGateway struct {
	baseURL   string
	apiKey    string
	apiSecret string
	client    *http.Client
	retry     *retrier.Retrier
	logger    *zerolog.Logger
	dev       bool

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

func NewIamportGateway(cfg config.IamportConfig, dev bool, logger *zerolog.Logger) (*IamportGateway, error) {
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, errors.New("iamport api key and secret are required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid iamport base url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	l := logger.With().Str("component", "IamportGateway").Logger()
	return &IamportGateway{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		client:    &http.Client{Timeout: timeout},
		retry:     retrier.New(retrier.ExponentialBackoff(cfg.MaxRetries, cfg.RetryDelay), transientClassifier{}),
		logger:    &l,
		dev:       dev,
	}, nil
}

func (g *IamportGateway) Name() string { return "iamport" }

// transientClassifier retries only errors wrapping domain.ErrGatewayTransient.
type transientClassifier struct{}

func (transientClassifier) Classify(err error) retrier.Action {
	switch {
	case err == nil:
		return retrier.Succeed
	case errors.Is(err, domain.ErrGatewayTransient):
		return retrier.Retry
	default:
		return retrier.Fail
	}
}

type impEnvelope struct {
	Code     int             `json:"code"`
	Message  string          `json:"message"`
	Response json.RawMessage `json:"response"`
}

// Charge calls /subscribe/payments/again. The merchant uid is unique per
// attempt, so a retried request cannot bill twice.
func (g *IamportGateway) Charge(ctx context.Context, billingKey, paymentUID string, amount int64, description string) (adapter.ChargeResult, error) {
	payload := map[string]any{
		"customer_uid": billingKey,
		"merchant_uid": paymentUID,
		"amount":       amount,
		"name":         description,
	}
	var out struct {
		ImpUID     string `json:"imp_uid"`
		Status     string `json:"status"`
		FailReason string `json:"fail_reason"`
	}
	if err := g.call(ctx, http.MethodPost, "/subscribe/payments/again", payload, &out); err != nil {
		return adapter.ChargeResult{}, err
	}
	if out.Status != "" && out.Status != "paid" {
		return adapter.ChargeResult{}, &domain.GatewayError{StatusCode: http.StatusOK, Message: "charge " + out.Status + ": " + out.FailReason}
	}
	if out.ImpUID == "" {
		return adapter.ChargeResult{}, &domain.GatewayError{StatusCode: http.StatusOK, Message: "charge response without imp_uid"}
	}
	g.logger.Info().
		Str("billing_key", logging.Redact(billingKey, g.dev)).
		Str("payment_uid", paymentUID).
		Str("imp_uid", out.ImpUID).
		Int64("amount", amount).
		Msg("charge approved")
	return adapter.ChargeResult{TransactionID: out.ImpUID}, nil
}

func (g *IamportGateway) Cancel(ctx context.Context, transactionID, paymentUID, reason string) (adapter.CancelResult, error) {
	payload := map[string]any{
		"imp_uid":      transactionID,
		"merchant_uid": paymentUID,
		"reason":       reason,
	}
	var out struct {
		CancelAmount int64 `json:"cancel_amount"`
	}
	if err := g.call(ctx, http.MethodPost, "/payments/cancel", payload, &out); err != nil {
		return adapter.CancelResult{}, err
	}
	g.logger.Info().Str("payment_uid", paymentUID).Int64("cancel_amount", out.CancelAmount).Msg("payment canceled")
	return adapter.CancelResult{CanceledAmount: out.CancelAmount}, nil
}

func (g *IamportGateway) HasStoredCredential(ctx context.Context, billingKey string) (bool, error) {
	err := g.call(ctx, http.MethodGet, "/subscribe/customers/"+url.PathEscape(billingKey), nil, nil)
	if err == nil {
		return true, nil
	}
	var gwErr *domain.GatewayError
	if errors.As(err, &gwErr) && (gwErr.Code == codeNotFound || gwErr.StatusCode == http.StatusNotFound) {
		return false, nil
	}
	return false, err
}

// call runs one API request under the retry policy.
func (g *IamportGateway) call(ctx context.Context, method, path string, payload any, out any) error {
	return g.retry.RunCtx(ctx, func(ctx context.Context) error {
		raw, err := g.authorized(ctx, method, path, payload)
		if err != nil {
			return err
		}
		if out == nil || len(raw) == 0 || string(raw) == "null" {
			return nil
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return &domain.GatewayError{StatusCode: http.StatusOK, Message: "decode response: " + err.Error()}
		}
		return nil
	})
}

// authorized sends the request with a bearer token and fetches a fresh token
// once if the cached one was rejected.
func (g *IamportGateway) authorized(ctx context.Context, method, path string, payload any) (json.RawMessage, error) {
	for attempt := 0; ; attempt++ {
		token, err := g.accessToken(ctx)
		if err != nil {
			return nil, err
		}
		status, env, err := g.do(ctx, method, path, payload, token)
		if err != nil {
			return nil, err
		}
		if status == http.StatusUnauthorized && attempt == 0 {
			g.invalidateToken()
			continue
		}
		if err := classify(status, env); err != nil {
			return nil, err
		}
		return env.Response, nil
	}
}

func (g *IamportGateway) accessToken(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.token != "" && time.Now().Before(g.tokenExp) {
		return g.token, nil
	}

	payload := map[string]string{"imp_key": g.apiKey, "imp_secret": g.apiSecret}
	status, env, err := g.do(ctx, http.MethodPost, "/users/getToken", payload, "")
	if err != nil {
		return "", err
	}
	if err := classify(status, env); err != nil {
		return "", err
	}
	var out struct {
		AccessToken string `json:"access_token"`
		ExpiredAt   int64  `json:"expired_at"`
		Now         int64  `json:"now"`
	}
	if err := json.Unmarshal(env.Response, &out); err != nil || out.AccessToken == "" {
		return "", &domain.GatewayError{StatusCode: status, Message: "token response without access_token"}
	}
	ttl := 30 * time.Minute
	if out.Now > 0 && out.ExpiredAt > out.Now {
		ttl = time.Duration(out.ExpiredAt-out.Now) * time.Second
	}
	g.token = out.AccessToken
	// refresh a minute early
	g.tokenExp = time.Now().Add(ttl - time.Minute)
	return g.token, nil
}

func (g *IamportGateway) invalidateToken() {
	g.mu.Lock()
	g.token = ""
	g.mu.Unlock()
}

// do performs a single HTTP exchange. Transport failures wrap
// domain.ErrGatewayTransient.
func (g *IamportGateway) do(ctx context.Context, method, path string, payload any, token string) (int, impEnvelope, error) {
	var env impEnvelope
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return 0, env, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return 0, env, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, env, ctx.Err()
		}
		return 0, env, fmt.Errorf("%w: %v", domain.ErrGatewayTransient, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, env, fmt.Errorf("%w: read body: %v", domain.ErrGatewayTransient, err)
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		env = impEnvelope{Code: -1, Message: strings.TrimSpace(string(raw))}
	}
	return resp.StatusCode, env, nil
}

// classify maps a response to nil, a transient error or a *domain.GatewayError.
func classify(status int, env impEnvelope) error {
	switch {
	case status >= http.StatusInternalServerError, status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d: %s", domain.ErrGatewayTransient, status, env.Message)
	case status != http.StatusOK, env.Code != 0:
		return &domain.GatewayError{StatusCode: status, Code: env.Code, Message: env.Message}
	default:
		return nil
	}
}
