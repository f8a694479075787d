package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"venue-membership/internal/infra/logging"
	"venue-membership/internal/infra/metrics"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

var (
	errMissingToken = errors.New("missing token")
	errInvalidToken = errors.New("invalid token")
)

// MemberClaims identifies a member by the token subject.
type MemberClaims struct {
	jwt.RegisteredClaims
}

type AuthManager struct {
	secret []byte
	issuer string
}

func NewAuthManager(secret, issuer string) *AuthManager {
	return &AuthManager{secret: []byte(secret), issuer: issuer}
}

// Issue signs a token for memberID. Used by the seed tool and tests; member
// sign-in lives outside this service.
func (a *AuthManager) Issue(memberID int64, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := MemberClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(memberID, 10),
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(a.secret)
}

func (a *AuthManager) ParseFromRequest(r *http.Request) (int64, error) {
	hdr := r.Header.Get("Authorization")
	if hdr == "" || !strings.HasPrefix(strings.ToLower(hdr), "bearer ") {
		return 0, errMissingToken
	}
	return a.parse(strings.TrimSpace(hdr[7:]))
}

func (a *AuthManager) parse(tok string) (int64, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	claims := &MemberClaims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil || !tkn.Valid {
		return 0, errInvalidToken
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, errInvalidToken
	}
	return id, nil
}

type ctxKey int

const ctxMember ctxKey = iota

func memberFrom(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(ctxMember).(int64)
	return id, ok
}

// MemberAuth requires a valid member token.
func MemberAuth(auth *AuthManager) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := auth.ParseFromRequest(r)
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
				return
			}
			ctx := context.WithValue(r.Context(), ctxMember, id)
			ctx = logging.WithMemberID(ctx, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminKey guards operator endpoints with a static bearer key.
func AdminKey(apiKey, command string, logger *zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				logger.Error().Msg("admin API key is not configured")
				metrics.IncAdminCommand(command, "unauthorized")
				writeJSON(w, http.StatusForbidden, errorBody{Error: "forbidden"})
				return
			}
			parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				metrics.IncAdminCommand(command, "unauthorized")
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
				return
			}
			if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(apiKey)) != 1 {
				metrics.IncAdminCommand(command, "unauthorized")
				writeJSON(w, http.StatusForbidden, errorBody{Error: "forbidden"})
				return
			}
			metrics.IncAdminCommand(command, "authorized")
			next.ServeHTTP(w, r)
		})
	}
}
