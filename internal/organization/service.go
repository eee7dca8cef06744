package organization

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/accounts/internal/models"
	"github.com/wolfeidau/accounts/internal/permission"
	"github.com/wolfeidau/accounts/internal/store"
)

// Stores groups the storage the service depends on.
type Stores struct {
	Tx            store.Transactor
	Organizations store.OrganizationStore
	Memberships   store.MembershipStore
}

// Service manages organizations and their memberships. Every mutation runs in a
// transaction so the matching sync tasks commit with it.
type Service struct {
	stores Stores
	engine *permission.Engine
	now    func() time.Time
}

type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(stores Stores, engine *permission.Engine, opts ...Option) *Service {
	s := &Service{
		stores: stores,
		engine: engine,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DefaultPlan is assigned to new organizations. Plans and quotas change only
// through SetPlan.
const DefaultPlan = "free"

// maxSlugSuffix bounds the numbered slug candidates tried before a random suffix is used.
const maxSlugSuffix = 20

// CreateParams describes a new shared organization.
type CreateParams struct {
	Name    string
	Slug    string
	Private bool
}

// Create creates an organization with the actor as its first admin.
func (s *Service) Create(ctx context.Context, actor *permission.Subject, params CreateParams) (*models.Organization, error) {
	if !actor.IsAuthenticated() {
		return nil, fmt.Errorf("%w: authentication required", permission.ErrPermissionDenied)
	}

	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidArgument)
	}
	slug := Slugify(params.Slug)
	if slug == "" {
		slug = Slugify(name)
	}
	if slug == "" {
		return nil, fmt.Errorf("%w: slug is required", ErrInvalidArgument)
	}
	now := s.now()
	org := &models.Organization{
		OrgID:     uuid.Must(uuid.NewV7()),
		Name:      name,
		Slug:      slug,
		Private:   params.Private,
		Plan:      DefaultPlan,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.stores.Tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.stores.Organizations.Create(ctx, org); err != nil {
			return err
		}
		return s.stores.Memberships.Create(ctx, &models.Membership{
			OrgID:     org.OrgID,
			UserID:    actor.UserID,
			Admin:     true,
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("org_id", org.OrgID.String()).
		Str("slug", org.Slug).
		Str("user_id", actor.UserID.String()).
		Msg("Organization created")

	return org, nil
}

// CreateIndividual creates the user's private individual organization with the
// user as its sole admin. It joins the caller's transaction when there is one.
// The slug is derived from the username and suffixed when already taken.
func (s *Service) CreateIndividual(ctx context.Context, user *models.User) (*models.Organization, error) {
	now := s.now()
	org := &models.Organization{
		OrgID:      uuid.Must(uuid.NewV7()),
		Name:       user.Username,
		Private:    true,
		Individual: true,
		Plan:       DefaultPlan,
		MaxUsers:   1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err := s.stores.Tx.InTx(ctx, func(ctx context.Context) error {
		slug, err := s.FreeSlug(ctx, Slugify(user.Username), org.OrgID)
		if err != nil {
			return err
		}
		org.Slug = slug

		if err := s.stores.Organizations.Create(ctx, org); err != nil {
			return err
		}
		return s.stores.Memberships.Create(ctx, &models.Membership{
			OrgID:     org.OrgID,
			UserID:    user.UserID,
			Admin:     true,
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}
	return org, nil
}

// FreeSlug returns base, or base with the first unused "-N" suffix. A slug
// already held by owner counts as free. Call it inside the transaction that
// claims the slug; the unique index still rejects a concurrent claim.
func (s *Service) FreeSlug(ctx context.Context, base string, owner uuid.UUID) (string, error) {
	if base == "" {
		return "", fmt.Errorf("%w: slug is required", ErrInvalidArgument)
	}
	for n := 1; n <= maxSlugSuffix; n++ {
		candidate := base
		if n > 1 {
			candidate = fmt.Sprintf("%s-%d", base, n)
		}
		org, err := s.stores.Organizations.GetBySlug(ctx, candidate)
		switch {
		case errors.Is(err, store.ErrOrganizationNotFound):
			return candidate, nil
		case err != nil:
			return "", err
		case org.OrgID == owner:
			return candidate, nil
		}
	}
	return base + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8], nil
}

// Get returns the organization if the actor may view it.
func (s *Service) Get(ctx context.Context, actor *permission.Subject, orgID uuid.UUID) (*models.Organization, error) {
	org, err := s.stores.Organizations.Get(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if err := s.engine.Require(actor, permission.ViewOrganization, org); err != nil {
		return nil, err
	}
	return org, nil
}

// UpdateParams holds optional organization changes; nil fields are left alone.
type UpdateParams struct {
	Name    *string
	Private *bool
}

// Update applies changes to an organization the actor administers.
func (s *Service) Update(ctx context.Context, actor *permission.Subject, orgID uuid.UUID, params UpdateParams) (*models.Organization, error) {
	var org *models.Organization
	err := s.stores.Tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		org, err = s.stores.Organizations.Get(ctx, orgID)
		if err != nil {
			return err
		}
		if err := s.engine.Require(actor, permission.ChangeOrganization, org); err != nil {
			return err
		}

		if params.Name != nil {
			name := strings.TrimSpace(*params.Name)
			if name == "" {
				return fmt.Errorf("%w: name is required", ErrInvalidArgument)
			}
			org.Name = name
		}
		if params.Private != nil {
			if org.Individual && !*params.Private {
				return fmt.Errorf("%w: individual organizations are always private", ErrInvalidArgument)
			}
			org.Private = *params.Private
		}
		org.UpdatedAt = s.now()

		return s.stores.Organizations.Update(ctx, org)
	})
	if err != nil {
		return nil, err
	}
	return org, nil
}

// SetPlan changes an organization's plan and member quota. It is an operator
// action with no actor; organization admins cannot reach it. A maxUsers of 0
// means unlimited.
func (s *Service) SetPlan(ctx context.Context, orgID uuid.UUID, plan string, maxUsers int) (*models.Organization, error) {
	plan = strings.TrimSpace(plan)
	if plan == "" {
		return nil, fmt.Errorf("%w: plan is required", ErrInvalidArgument)
	}
	if maxUsers < 0 {
		return nil, fmt.Errorf("%w: max users must not be negative", ErrInvalidArgument)
	}

	var org *models.Organization
	err := s.stores.Tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		org, err = s.stores.Organizations.Get(ctx, orgID)
		if err != nil {
			return err
		}
		if org.Individual {
			return fmt.Errorf("%w: individual organizations keep a single user", ErrInvalidArgument)
		}

		org.Plan = plan
		org.MaxUsers = maxUsers
		org.UpdatedAt = s.now()
		return s.stores.Organizations.Update(ctx, org)
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("org_id", org.OrgID.String()).
		Str("plan", org.Plan).
		Int("max_users", org.MaxUsers).
		Msg("Organization plan changed")

	return org, nil
}

// Delete is never permitted; organizations are retained for auditing.
func (s *Service) Delete(ctx context.Context, actor *permission.Subject, orgID uuid.UUID) error {
	return s.stores.Tx.InTx(ctx, func(ctx context.Context) error {
		org, err := s.stores.Organizations.Get(ctx, orgID)
		if err != nil {
			return err
		}
		if err := s.engine.Require(actor, permission.DeleteOrganization, org); err != nil {
			return err
		}
		return s.stores.Organizations.Delete(ctx, orgID)
	})
}

// ListMembers returns the organization's memberships to one of its members.
func (s *Service) ListMembers(ctx context.Context, actor *permission.Subject, orgID uuid.UUID) ([]*models.Membership, error) {
	org, err := s.stores.Organizations.Get(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if err := s.engine.Require(actor, permission.ViewMembership, org); err != nil {
		return nil, err
	}
	return s.stores.Memberships.ListByOrganization(ctx, orgID)
}

// SetAdmin promotes or demotes a member. Only admins may promote; members may
// demote themselves. The last admin can never be demoted.
func (s *Service) SetAdmin(ctx context.Context, actor *permission.Subject, orgID, userID uuid.UUID, admin bool) (*models.Membership, error) {
	var m *models.Membership
	err := s.stores.Tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		m, err = s.stores.Memberships.Get(ctx, orgID, userID)
		if err != nil {
			return err
		}
		if err := s.engine.Require(actor, permission.ChangeMembership, m); err != nil {
			return err
		}
		if m.Admin == admin {
			return nil
		}

		if admin {
			if _, actorAdmin := actor.MemberOf(orgID); !actorAdmin {
				return fmt.Errorf("%w: only admins can promote members", permission.ErrPermissionDenied)
			}
		} else if err := s.ensureAnotherAdmin(ctx, orgID, userID); err != nil {
			return err
		}

		m.Admin = admin
		return s.stores.Memberships.Update(ctx, m)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// RemoveMember removes a membership. Admins may remove anyone and members may
// leave. Neither the last admin nor the owner of an individual organization
// can be removed.
func (s *Service) RemoveMember(ctx context.Context, actor *permission.Subject, orgID, userID uuid.UUID) error {
	return s.stores.Tx.InTx(ctx, func(ctx context.Context) error {
		org, err := s.stores.Organizations.Get(ctx, orgID)
		if err != nil {
			return err
		}
		m, err := s.stores.Memberships.Get(ctx, orgID, userID)
		if err != nil {
			return err
		}
		if err := s.engine.Require(actor, permission.DeleteMembership, m); err != nil {
			return err
		}
		if org.Individual {
			return Guard(GuardIndividualOwner, "individual organizations keep their owner")
		}
		if m.Admin {
			if err := s.ensureAnotherAdmin(ctx, orgID, userID); err != nil {
				return err
			}
		}

		if err := s.stores.Memberships.Delete(ctx, orgID, userID); err != nil {
			return err
		}

		log.Info().
			Str("org_id", orgID.String()).
			Str("user_id", userID.String()).
			Str("actor", actor.UserID.String()).
			Msg("Membership removed")
		return nil
	})
}

// AddMember makes the user a member of the organization within the caller's
// transaction. An existing membership is confirmed as is and reported with
// created false.
func (s *Service) AddMember(ctx context.Context, orgID, userID uuid.UUID, admin bool) (m *models.Membership, created bool, err error) {
	err = s.stores.Tx.InTx(ctx, func(ctx context.Context) error {
		existing, err := s.stores.Memberships.Get(ctx, orgID, userID)
		if err == nil {
			m = existing
			return nil
		}
		if !errors.Is(err, store.ErrMembershipNotFound) {
			return err
		}

		org, err := s.stores.Organizations.Get(ctx, orgID)
		if err != nil {
			return err
		}
		if org.Individual {
			return Guard(GuardIndividualInvite, "individual organizations cannot gain members")
		}

		members, err := s.stores.Memberships.ListByOrganization(ctx, orgID)
		if err != nil {
			return err
		}
		if !org.HasCapacity(len(members)) {
			return Guard(GuardQuotaExceeded, fmt.Sprintf("organization allows %d users", org.MaxUsers))
		}

		m = &models.Membership{OrgID: orgID, UserID: userID, Admin: admin, CreatedAt: s.now()}
		if err := s.stores.Memberships.Create(ctx, m); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return m, created, nil
}

func (s *Service) ensureAnotherAdmin(ctx context.Context, orgID, leaving uuid.UUID) error {
	members, err := s.stores.Memberships.ListByOrganization(ctx, orgID)
	if err != nil {
		return err
	}
	for _, m := range members {
		if m.Admin && m.UserID != leaving {
			return nil
		}
	}
	return Guard(GuardLastAdmin, "an organization must keep at least one admin")
}
