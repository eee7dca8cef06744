package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/wolfeidau/accounts/internal/models"
)

// Sentinel errors for organization store operations
var (
	ErrOrganizationNotFound      = errors.New("organization not found")
	ErrOrganizationAlreadyExists = errors.New("organization already exists")
)

// OrganizationStore defines the interface for organization storage operations.
// Create, Update and Delete are synchronized mutations and must run inside
// Transactor.InTx.
type OrganizationStore interface {
	// Create creates a new organization.
	// Returns ErrOrganizationAlreadyExists if the ID or slug is taken.
	Create(ctx context.Context, org *models.Organization) error

	// Get retrieves an organization by ID.
	// Returns ErrOrganizationNotFound if the organization doesn't exist.
	Get(ctx context.Context, orgID uuid.UUID) (*models.Organization, error)

	// GetBySlug retrieves an organization by its slug.
	// Returns ErrOrganizationNotFound if no organization holds the slug.
	GetBySlug(ctx context.Context, slug string) (*models.Organization, error)

	// Update updates an existing organization.
	// Returns ErrOrganizationNotFound if the organization doesn't exist.
	Update(ctx context.Context, org *models.Organization) error

	// Delete deletes an organization by ID along with its memberships and invitations.
	// Returns ErrOrganizationNotFound if the organization doesn't exist.
	Delete(ctx context.Context, orgID uuid.UUID) error
}
