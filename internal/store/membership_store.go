package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/wolfeidau/accounts/internal/models"
)

// Sentinel errors for membership store operations
var (
	ErrMembershipNotFound      = errors.New("membership not found")
	ErrMembershipAlreadyExists = errors.New("membership already exists")
)

// MembershipStore defines the interface for membership storage operations.
// Create, Update and Delete are synchronized mutations and must run inside
// Transactor.InTx. The store enforces (org, user) uniqueness only; the
// remaining-admin rule belongs to the organization service.
type MembershipStore interface {
	Create(ctx context.Context, m *models.Membership) error
	Get(ctx context.Context, orgID, userID uuid.UUID) (*models.Membership, error)
	Update(ctx context.Context, m *models.Membership) error
	Delete(ctx context.Context, orgID, userID uuid.UUID) error

	// ListByOrganization returns the organization's memberships, oldest first.
	ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]*models.Membership, error)

	// ListByUser returns every membership held by the user.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Membership, error)
}
