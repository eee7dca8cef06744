package auth

import (
	"context"

	"github.com/wolfeidau/accounts/internal/models"
	"github.com/wolfeidau/accounts/internal/permission"
)

// Identity is the authenticated caller of a request.
type Identity struct {
	User    *models.User
	Token   *models.OAuth2Token
	Subject *permission.Subject
}

type contextKey int

const (
	identityContextKey contextKey = iota
)

// WithIdentity returns a context carrying the identity.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// IdentityFromContext extracts the authenticated identity from the request context.
// Returns nil if no identity is present (anonymous request).
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityContextKey).(*Identity)
	return id
}

// SubjectFromContext returns the permission subject of the request, anonymous
// when no identity is present.
func SubjectFromContext(ctx context.Context) *permission.Subject {
	if id := IdentityFromContext(ctx); id != nil && id.Subject != nil {
		return id.Subject
	}
	return permission.Anonymous()
}
