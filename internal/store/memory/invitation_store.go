package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/wolfeidau/accounts/internal/models"
	"github.com/wolfeidau/accounts/internal/store"
)

// InvitationStore implements store.InvitationStore using in-memory storage.
type InvitationStore struct {
	db *DB
}

func NewInvitationStore(db *DB) *InvitationStore {
	return &InvitationStore{db: db}
}

func (s *InvitationStore) Create(ctx context.Context, inv *models.Invitation) error {
	return s.db.view(ctx, func(st *state) error {
		if _, ok := st.organizations[inv.OrgID]; !ok {
			return store.ErrOrganizationNotFound
		}
		if _, exists := st.invitations[inv.InvitationID]; exists {
			return store.ErrInvitationAlreadyExists
		}
		st.invitations[inv.InvitationID] = cloneInvitation(*inv)
		return nil
	})
}

func (s *InvitationStore) Get(ctx context.Context, invitationID uuid.UUID) (*models.Invitation, error) {
	var inv models.Invitation
	err := s.db.view(ctx, func(st *state) error {
		found, ok := st.invitations[invitationID]
		if !ok {
			return store.ErrInvitationNotFound
		}
		inv = cloneInvitation(found)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (s *InvitationStore) Delete(ctx context.Context, invitationID uuid.UUID) error {
	return s.db.view(ctx, func(st *state) error {
		if _, ok := st.invitations[invitationID]; !ok {
			return store.ErrInvitationNotFound
		}
		delete(st.invitations, invitationID)
		return nil
	})
}

func (s *InvitationStore) ListPending(ctx context.Context, orgID uuid.UUID) ([]*models.Invitation, error) {
	var out []*models.Invitation
	err := s.db.view(ctx, func(st *state) error {
		for _, inv := range st.invitations {
			if inv.OrgID == orgID && inv.IsPending() {
				clone := cloneInvitation(inv)
				out = append(out, &clone)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
