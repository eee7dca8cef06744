package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/wolfeidau/accounts/internal/models"
)

// Sentinel errors for invitation store operations
var (
	ErrInvitationNotFound      = errors.New("invitation not found")
	ErrInvitationAlreadyExists = errors.New("invitation already exists")
)

// InvitationStore defines the interface for invitation storage operations.
// Invitations are not synchronized to remote services.
type InvitationStore interface {
	Create(ctx context.Context, inv *models.Invitation) error
	Get(ctx context.Context, invitationID uuid.UUID) (*models.Invitation, error)
	Delete(ctx context.Context, invitationID uuid.UUID) error

	// ListPending returns the organization's pending invitations and requests, oldest first.
	ListPending(ctx context.Context, orgID uuid.UUID) ([]*models.Invitation, error)
}
