//go:build !integration

package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"venue-membership/internal/config"
	"venue-membership/internal/domain"

	"github.com/rs/zerolog"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

// fakeIamport is a minimal iamport API. handler serves every non-token route.
type fakeIamport struct {
	tokens  atomic.Int32
	calls   atomic.Int32
	mu      sync.Mutex
	token   string
	handler func(w http.ResponseWriter, r *http.Request, body map[string]any)
}

func (f *fakeIamport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)

	if r.URL.Path == "/users/getToken" {
		n := f.tokens.Add(1)
		if body["imp_key"] != "key" || body["imp_secret"] != "secret" {
			writeImp(w, http.StatusUnauthorized, -1, "bad credentials", nil)
			return
		}
		token := fmt.Sprintf("token-%d", n)
		f.setToken(token)
		writeImp(w, http.StatusOK, 0, "", map[string]any{"access_token": token, "expired_at": 2000, "now": 200})
		return
	}
	f.calls.Add(1)
	if r.Header.Get("Authorization") != "Bearer "+f.currentToken() {
		writeImp(w, http.StatusUnauthorized, -1, "unauthorized", nil)
		return
	}
	f.handler(w, r, body)
}

func (f *fakeIamport) setToken(t string) {
	f.mu.Lock()
	f.token = t
	f.mu.Unlock()
}

func (f *fakeIamport) currentToken() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

func writeImp(w http.ResponseWriter, status, code int, message string, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"code": code, "message": message, "response": response})
}

func newTestGateway(t *testing.T, fake *fakeIamport) *IamportGateway {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	gw, err := NewIamportGateway(config.IamportConfig{
		BaseURL:    srv.URL,
		APIKey:     "key",
		APISecret:  "secret",
		Timeout:    2 * time.Second,
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
	}, false, newTestLogger())
	if err != nil {
		t.Fatalf("failed to build gateway: %v", err)
	}
	return gw
}

func TestIamportGateway_Charge(t *testing.T) {
	ctx := context.Background()

	t.Run("charges the billing key with the merchant uid", func(t *testing.T) {
		// --- Arrange ---
		var got map[string]any
		fake := &fakeIamport{handler: func(w http.ResponseWriter, r *http.Request, body map[string]any) {
			got = body
			writeImp(w, http.StatusOK, 0, "", map[string]any{"imp_uid": "imp_123", "status": "paid"})
		}}
		gw := newTestGateway(t, fake)

		// --- Act ---
		res, err := gw.Charge(ctx, "ggongsul-42", "ggongsul-240101100000-abcdef", 4900, "membership")

		// --- Assert ---
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if res.TransactionID != "imp_123" {
			t.Errorf("expected imp_123, got %q", res.TransactionID)
		}
		if got["customer_uid"] != "ggongsul-42" || got["merchant_uid"] != "ggongsul-240101100000-abcdef" || got["amount"] != float64(4900) || got["name"] != "membership" {
			t.Errorf("unexpected charge payload %v", got)
		}
	})

	t.Run("reuses the token across calls", func(t *testing.T) {
		fake := &fakeIamport{handler: func(w http.ResponseWriter, r *http.Request, body map[string]any) {
			writeImp(w, http.StatusOK, 0, "", map[string]any{"imp_uid": "imp_1", "status": "paid"})
		}}
		gw := newTestGateway(t, fake)
		for i := 0; i < 3; i++ {
			if _, err := gw.Charge(ctx, "k", "uid", 4900, "m"); err != nil {
				t.Fatalf("charge %d failed: %v", i, err)
			}
		}
		if n := fake.tokens.Load(); n != 1 {
			t.Errorf("expected one token request, got %d", n)
		}
	})

	t.Run("refreshes the token after a 401", func(t *testing.T) {
		// --- Arrange ---
		fake := &fakeIamport{}
		fake.handler = func(w http.ResponseWriter, r *http.Request, body map[string]any) {
			writeImp(w, http.StatusOK, 0, "", map[string]any{"imp_uid": "imp_1", "status": "paid"})
		}
		gw := newTestGateway(t, fake)
		if _, err := gw.Charge(ctx, "k", "uid-1", 4900, "m"); err != nil {
			t.Fatalf("setup failed: %v", err)
		}
		fake.setToken("rotated")

		// --- Act ---
		_, err := gw.Charge(ctx, "k", "uid-2", 4900, "m")

		// --- Assert ---
		if err != nil {
			t.Fatalf("expected the retry with a fresh token to succeed, got %v", err)
		}
		if n := fake.tokens.Load(); n != 2 {
			t.Errorf("expected two token requests, got %d", n)
		}
	})

	t.Run("a definite rejection is not retried", func(t *testing.T) {
		// --- Arrange ---
		fake := &fakeIamport{handler: func(w http.ResponseWriter, r *http.Request, body map[string]any) {
			writeImp(w, http.StatusOK, -1, "card declined", nil)
		}}
		gw := newTestGateway(t, fake)

		// --- Act ---
		_, err := gw.Charge(ctx, "k", "uid", 4900, "m")

		// --- Assert ---
		var gwErr *domain.GatewayError
		if !errors.As(err, &gwErr) {
			t.Fatalf("expected a GatewayError, got %v", err)
		}
		if gwErr.Code != -1 || gwErr.Message != "card declined" {
			t.Errorf("unexpected gateway error %+v", gwErr)
		}
		if n := fake.calls.Load(); n != 1 {
			t.Errorf("expected a single call, got %d", n)
		}
	})

	t.Run("a failed charge status is a rejection", func(t *testing.T) {
		fake := &fakeIamport{handler: func(w http.ResponseWriter, r *http.Request, body map[string]any) {
			writeImp(w, http.StatusOK, 0, "", map[string]any{"imp_uid": "imp_1", "status": "failed", "fail_reason": "limit exceeded"})
		}}
		gw := newTestGateway(t, fake)
		_, err := gw.Charge(ctx, "k", "uid", 4900, "m")
		var gwErr *domain.GatewayError
		if !errors.As(err, &gwErr) || !strings.Contains(gwErr.Message, "limit exceeded") {
			t.Fatalf("expected a GatewayError with the fail reason, got %v", err)
		}
	})

	t.Run("server errors are retried then reported as transient", func(t *testing.T) {
		// --- Arrange ---
		fake := &fakeIamport{handler: func(w http.ResponseWriter, r *http.Request, body map[string]any) {
			writeImp(w, http.StatusBadGateway, -1, "upstream", nil)
		}}
		gw := newTestGateway(t, fake)

		// --- Act ---
		_, err := gw.Charge(ctx, "k", "uid", 4900, "m")

		// --- Assert ---
		if !errors.Is(err, domain.ErrGatewayTransient) {
			t.Fatalf("expected ErrGatewayTransient, got %v", err)
		}
		if n := fake.calls.Load(); n != 3 {
			t.Errorf("expected 1 call plus 2 retries, got %d", n)
		}
	})
}

func TestIamportGateway_Cancel(t *testing.T) {
	// --- Arrange ---
	var got map[string]any
	fake := &fakeIamport{handler: func(w http.ResponseWriter, r *http.Request, body map[string]any) {
		if r.URL.Path != "/payments/cancel" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		got = body
		writeImp(w, http.StatusOK, 0, "", map[string]any{"cancel_amount": 4900})
	}}
	gw := newTestGateway(t, fake)

	// --- Act ---
	res, err := gw.Cancel(context.Background(), "imp_123", "uid", "requested")

	// --- Assert ---
	if err != nil {
		t.Fatalf("expected no error, but got: %v", err)
	}
	if res.CanceledAmount != 4900 {
		t.Errorf("expected 4900, got %d", res.CanceledAmount)
	}
	if got["imp_uid"] != "imp_123" || got["merchant_uid"] != "uid" || got["reason"] != "requested" {
		t.Errorf("unexpected cancel payload %v", got)
	}
}

func TestIamportGateway_HasStoredCredential(t *testing.T) {
	ctx := context.Background()
	fake := &fakeIamport{handler: func(w http.ResponseWriter, r *http.Request, body map[string]any) {
		switch strings.TrimPrefix(r.URL.Path, "/subscribe/customers/") {
		case "ggongsul-1":
			writeImp(w, http.StatusOK, 0, "", map[string]any{"customer_uid": "ggongsul-1"})
		case "ggongsul-2":
			writeImp(w, http.StatusNotFound, codeNotFound, "not found", nil)
		default:
			writeImp(w, http.StatusBadRequest, -1, "bad request", nil)
		}
	}}
	gw := newTestGateway(t, fake)

	if ok, err := gw.HasStoredCredential(ctx, "ggongsul-1"); err != nil || !ok {
		t.Errorf("expected a stored card, got %v %v", ok, err)
	}
	if ok, err := gw.HasStoredCredential(ctx, "ggongsul-2"); err != nil || ok {
		t.Errorf("expected no stored card, got %v %v", ok, err)
	}
	if _, err := gw.HasStoredCredential(ctx, "other"); err == nil {
		t.Error("expected an error for an unexpected rejection")
	}
}

func TestNewIamportGateway_RequiresCredentials(t *testing.T) {
	if _, err := NewIamportGateway(config.IamportConfig{BaseURL: "http://x"}, false, newTestLogger()); err == nil {
		t.Fatal("expected an error without credentials")
	}
}

func TestCallResult(t *testing.T) {
	cases := map[string]error{
		"ok":        nil,
		"transient": domain.ErrGatewayTransient,
		"rejected":  &domain.GatewayError{StatusCode: 400},
	}
	for want, err := range cases {
		if got := callResult(err); got != want {
			t.Errorf("callResult(%v) = %q, want %q", err, got, want)
		}
	}
}
