package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/wolfeidau/accounts/internal/models"
)

// Sentinel errors for user and token store operations
var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrTokenNotFound     = errors.New("token not found")
)

// UserStore defines the interface for user storage operations.
// Create and Update are synchronized mutations and must run inside Transactor.InTx.
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	Get(ctx context.Context, userID uuid.UUID) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
}

// TokenStore provides read access to OAuth2 access tokens for authentication.
// Tokens are written by the OAuth provider flow; Create exists for bootstrap and tests.
type TokenStore interface {
	Create(ctx context.Context, token *models.OAuth2Token) error

	// GetByFingerprint returns ErrTokenNotFound if no token has the fingerprint.
	GetByFingerprint(ctx context.Context, fingerprint string) (*models.OAuth2Token, error)
}
