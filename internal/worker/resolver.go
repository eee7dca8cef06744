package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/wolfeidau/accounts/internal/models"
	"github.com/wolfeidau/accounts/internal/store"
)

// ErrInvalidKey is returned for a task whose entity key cannot be parsed.
var ErrInvalidKey = errors.New("invalid entity key")

// Resource is the remote representation of an entity as of the moment it was read.
type Resource struct {
	Path  string // relative to <base>/api/
	Body  any
	Found bool // false when the entity no longer exists locally
}

// Resolver reads the current committed state of synchronized entities.
type Resolver struct {
	orgs    store.OrganizationStore
	members store.MembershipStore
	users   store.UserStore
}

func NewResolver(orgs store.OrganizationStore, members store.MembershipStore, users store.UserStore) *Resolver {
	return &Resolver{orgs: orgs, members: members, users: users}
}

type organizationBody struct {
	UUID       string `json:"uuid"`
	Name       string `json:"name"`
	Slug       string `json:"slug"`
	Private    bool   `json:"private"`
	Individual bool   `json:"individual"`
	Plan       string `json:"plan"`
	MaxUsers   int    `json:"max_users"`
}

type userBody struct {
	UUID     string `json:"uuid"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Email    string `json:"email"`
}

type membershipBody struct {
	Organization string `json:"organization"`
	User         string `json:"user"`
	Admin        bool   `json:"admin"`
}

// Resolve loads the entity named by (entityType, key). The path is always set,
// even when the entity is gone, so deletes can be addressed.
func (r *Resolver) Resolve(ctx context.Context, entityType models.EntityType, key string) (*Resource, error) {
	switch entityType {
	case models.EntityOrganization:
		orgID, err := uuid.Parse(key)
		if err != nil {
			return nil, fmt.Errorf("%w: %s %q", ErrInvalidKey, entityType, key)
		}
		res := &Resource{Path: "organizations/" + orgID.String()}

		org, err := r.orgs.Get(ctx, orgID)
		if errors.Is(err, store.ErrOrganizationNotFound) {
			return res, nil
		}
		if err != nil {
			return nil, err
		}

		res.Found = true
		res.Body = organizationBody{
			UUID:       org.OrgID.String(),
			Name:       org.Name,
			Slug:       org.Slug,
			Private:    org.Private,
			Individual: org.Individual,
			Plan:       org.Plan,
			MaxUsers:   org.MaxUsers,
		}
		return res, nil

	case models.EntityUser:
		userID, err := uuid.Parse(key)
		if err != nil {
			return nil, fmt.Errorf("%w: %s %q", ErrInvalidKey, entityType, key)
		}
		res := &Resource{Path: "users/" + userID.String()}

		user, err := r.users.Get(ctx, userID)
		if errors.Is(err, store.ErrUserNotFound) {
			return res, nil
		}
		if err != nil {
			return nil, err
		}

		res.Found = true
		res.Body = userBody{
			UUID:     user.UserID.String(),
			Username: user.Username,
			Name:     user.Name,
			Email:    user.PrimaryEmail(),
		}
		return res, nil

	case models.EntityMembership:
		orgID, userID, err := models.ParseMembershipKey(key)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
		}
		res := &Resource{Path: "organizations/" + orgID.String() + "/memberships/" + userID.String()}

		m, err := r.members.Get(ctx, orgID, userID)
		if errors.Is(err, store.ErrMembershipNotFound) {
			return res, nil
		}
		if err != nil {
			return nil, err
		}

		res.Found = true
		res.Body = membershipBody{
			Organization: m.OrgID.String(),
			User:         m.UserID.String(),
			Admin:        m.Admin,
		}
		return res, nil
	}

	return nil, fmt.Errorf("%w: unknown entity type %q", ErrInvalidKey, entityType)
}
