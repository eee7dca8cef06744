package auth

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/accounts/internal/permission"
	"github.com/wolfeidau/accounts/internal/store"
	"github.com/wolfeidau/accounts/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Fingerprint returns the stored form of an access token: the base58 encoded
// SHA256 hash. Raw tokens are never persisted.
func Fingerprint(token string) string {
	hash := sha256.Sum256([]byte(token))
	return base58.Encode(hash[:])
}

// TokenAuthenticator authenticates requests carrying an OAuth2 access token
// issued by the OpenID provider.
type TokenAuthenticator struct {
	tokens      store.TokenStore
	users       store.UserStore
	memberships store.MembershipStore
	now         func() time.Time
}

func NewTokenAuthenticator(tokens store.TokenStore, users store.UserStore, memberships store.MembershipStore) *TokenAuthenticator {
	return &TokenAuthenticator{
		tokens:      tokens,
		users:       users,
		memberships: memberships,
		now:         time.Now,
	}
}

// Authenticate resolves the request's Authorization header. It returns nil, nil
// when the header is absent or uses another scheme so other authenticators may
// run; ErrInvalidToken for unknown tokens and ErrExpiredToken for expired ones.
func (a *TokenAuthenticator) Authenticate(r *http.Request) (*Identity, error) {
	raw, ok := extractToken(r)
	if !ok {
		return nil, nil
	}
	return a.AuthenticateToken(r.Context(), raw)
}

// AuthenticateToken resolves a raw access token.
func (a *TokenAuthenticator) AuthenticateToken(ctx context.Context, raw string) (*Identity, error) {
	if raw == "" {
		return nil, ErrInvalidToken
	}

	token, err := a.tokens.GetByFingerprint(ctx, Fingerprint(raw))
	if err != nil {
		if errors.Is(err, store.ErrTokenNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to look up token: %w", err)
	}
	if token.IsExpired(a.now()) {
		return nil, ErrExpiredToken
	}

	user, err := a.users.Get(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to load token user: %w", err)
	}

	memberships, err := a.memberships.ListByUser(ctx, user.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load memberships: %w", err)
	}

	return &Identity{
		User:    user,
		Token:   token,
		Subject: permission.NewSubject(user, memberships),
	}, nil
}

// Middleware attaches the authenticated identity to the request context.
// Requests without credentials continue anonymously; invalid or expired
// tokens are rejected with 401.
func (a *TokenAuthenticator) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := a.Authenticate(r)
			if err != nil {
				reason := "invalid"
				status := http.StatusUnauthorized
				switch {
				case errors.Is(err, ErrExpiredToken):
					reason = "expired"
				case errors.Is(err, ErrInvalidToken):
				default:
					reason = "error"
					status = http.StatusInternalServerError
					log.Error().Err(err).Msg("Token authentication failed")
				}

				telemetry.GetMetrics().AuthFailuresTotal.Add(r.Context(), 1,
					metric.WithAttributes(attribute.String("reason", reason)))

				if status == http.StatusUnauthorized {
					log.Warn().Str("reason", reason).Msg("Rejected access token")
					w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				}
				writeJSONError(w, status, err.Error())
				return
			}

			if id != nil {
				r = r.WithContext(WithIdentity(r.Context(), id))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// extractToken reads "Token <value>" or "Bearer <value>" from the Authorization header.
func extractToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}

	scheme, value, ok := strings.Cut(header, " ")
	if !ok {
		return "", false
	}
	switch strings.ToLower(scheme) {
	case "token", "bearer":
		return strings.TrimSpace(value), true
	}
	return "", false
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
