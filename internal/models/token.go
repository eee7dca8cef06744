package models

import (
	"time"

	"github.com/google/uuid"
)

// OAuth2Token is an access token issued by the OAuth provider flow.
// Only the fingerprint of the token is stored.
type OAuth2Token struct {
	TokenID     uuid.UUID
	UserID      uuid.UUID
	Fingerprint string // Base58-encoded SHA256(access token)
	Scope       string
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// IsExpired returns true if the token has expired at the given time.
func (t *OAuth2Token) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
