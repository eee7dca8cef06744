package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/wolfeidau/accounts/internal/models"
	"github.com/wolfeidau/accounts/internal/outbox"
	"github.com/wolfeidau/accounts/internal/store"
)

// MembershipStore implements store.MembershipStore using in-memory storage.
type MembershipStore struct {
	db *DB
}

func NewMembershipStore(db *DB) *MembershipStore {
	return &MembershipStore{db: db}
}

func (s *MembershipStore) Create(ctx context.Context, m *models.Membership) error {
	return s.db.view(ctx, func(st *state) error {
		if _, ok := st.organizations[m.OrgID]; !ok {
			return store.ErrOrganizationNotFound
		}
		if _, ok := st.users[m.UserID]; !ok {
			return store.ErrUserNotFound
		}
		k := membershipKey{orgID: m.OrgID, userID: m.UserID}
		if _, exists := st.memberships[k]; exists {
			return store.ErrMembershipAlreadyExists
		}

		if err := outbox.Record(ctx, models.EntityMembership, m.Key(), models.SyncActionCreate); err != nil {
			return err
		}
		st.memberships[k] = *m
		return nil
	})
}

func (s *MembershipStore) Get(ctx context.Context, orgID, userID uuid.UUID) (*models.Membership, error) {
	var m models.Membership
	err := s.db.view(ctx, func(st *state) error {
		found, ok := st.memberships[membershipKey{orgID: orgID, userID: userID}]
		if !ok {
			return store.ErrMembershipNotFound
		}
		m = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *MembershipStore) Update(ctx context.Context, m *models.Membership) error {
	return s.db.view(ctx, func(st *state) error {
		k := membershipKey{orgID: m.OrgID, userID: m.UserID}
		if _, ok := st.memberships[k]; !ok {
			return store.ErrMembershipNotFound
		}

		if err := outbox.Record(ctx, models.EntityMembership, m.Key(), models.SyncActionUpdate); err != nil {
			return err
		}
		st.memberships[k] = *m
		return nil
	})
}

func (s *MembershipStore) Delete(ctx context.Context, orgID, userID uuid.UUID) error {
	return s.db.view(ctx, func(st *state) error {
		k := membershipKey{orgID: orgID, userID: userID}
		if _, ok := st.memberships[k]; !ok {
			return store.ErrMembershipNotFound
		}

		if err := outbox.Record(ctx, models.EntityMembership, models.MembershipKey(orgID, userID), models.SyncActionDelete); err != nil {
			return err
		}
		delete(st.memberships, k)
		return nil
	})
}

func (s *MembershipStore) ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]*models.Membership, error) {
	return s.list(ctx, func(m models.Membership) bool { return m.OrgID == orgID })
}

func (s *MembershipStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Membership, error) {
	return s.list(ctx, func(m models.Membership) bool { return m.UserID == userID })
}

func (s *MembershipStore) list(ctx context.Context, match func(models.Membership) bool) ([]*models.Membership, error) {
	var out []*models.Membership
	err := s.db.view(ctx, func(st *state) error {
		for _, m := range st.memberships {
			if match(m) {
				clone := m
				out = append(out, &clone)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].UserID.String() < out[j].UserID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
