package memory

import (
	"context"

	"github.com/google/uuid"
	"github.com/wolfeidau/accounts/internal/models"
	"github.com/wolfeidau/accounts/internal/outbox"
	"github.com/wolfeidau/accounts/internal/store"
)

// OrganizationStore implements store.OrganizationStore using in-memory storage.
type OrganizationStore struct {
	db *DB
}

// NewOrganizationStore creates a new in-memory organization store.
func NewOrganizationStore(db *DB) *OrganizationStore {
	return &OrganizationStore{db: db}
}

// Create creates a new organization in memory.
func (s *OrganizationStore) Create(ctx context.Context, org *models.Organization) error {
	return s.db.view(ctx, func(st *state) error {
		if _, exists := st.organizations[org.OrgID]; exists {
			return store.ErrOrganizationAlreadyExists
		}
		for _, existing := range st.organizations {
			if existing.Slug == org.Slug {
				return store.ErrOrganizationAlreadyExists
			}
		}

		if err := outbox.Record(ctx, models.EntityOrganization, org.OrgID.String(), models.SyncActionCreate); err != nil {
			return err
		}
		st.organizations[org.OrgID] = *org
		return nil
	})
}

// Get retrieves an organization by ID.
func (s *OrganizationStore) Get(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	var org models.Organization
	err := s.db.view(ctx, func(st *state) error {
		found, exists := st.organizations[orgID]
		if !exists {
			return store.ErrOrganizationNotFound
		}
		org = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &org, nil
}

// GetBySlug retrieves an organization by slug.
func (s *OrganizationStore) GetBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	var org models.Organization
	err := s.db.view(ctx, func(st *state) error {
		for _, existing := range st.organizations {
			if existing.Slug == slug {
				org = existing
				return nil
			}
		}
		return store.ErrOrganizationNotFound
	})
	if err != nil {
		return nil, err
	}
	return &org, nil
}

// Update updates an existing organization.
func (s *OrganizationStore) Update(ctx context.Context, org *models.Organization) error {
	return s.db.view(ctx, func(st *state) error {
		if _, exists := st.organizations[org.OrgID]; !exists {
			return store.ErrOrganizationNotFound
		}
		for id, existing := range st.organizations {
			if id != org.OrgID && existing.Slug == org.Slug {
				return store.ErrOrganizationAlreadyExists
			}
		}

		if err := outbox.Record(ctx, models.EntityOrganization, org.OrgID.String(), models.SyncActionUpdate); err != nil {
			return err
		}
		st.organizations[org.OrgID] = *org
		return nil
	})
}

// Delete deletes an organization with its memberships and invitations.
func (s *OrganizationStore) Delete(ctx context.Context, orgID uuid.UUID) error {
	return s.db.view(ctx, func(st *state) error {
		if _, exists := st.organizations[orgID]; !exists {
			return store.ErrOrganizationNotFound
		}

		if err := outbox.Record(ctx, models.EntityOrganization, orgID.String(), models.SyncActionDelete); err != nil {
			return err
		}
		for k := range st.memberships {
			if k.orgID != orgID {
				continue
			}
			if err := outbox.Record(ctx, models.EntityMembership, models.MembershipKey(k.orgID, k.userID), models.SyncActionDelete); err != nil {
				return err
			}
			delete(st.memberships, k)
		}
		for id, inv := range st.invitations {
			if inv.OrgID == orgID {
				delete(st.invitations, id)
			}
		}
		delete(st.organizations, orgID)
		return nil
	})
}
