package account

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/accounts/internal/models"
	"github.com/wolfeidau/accounts/internal/organization"
	"github.com/wolfeidau/accounts/internal/permission"
	"github.com/wolfeidau/accounts/internal/store"
)

// Stores groups the storage the service depends on.
type Stores struct {
	Tx            store.Transactor
	Users         store.UserStore
	Organizations store.OrganizationStore
	Memberships   store.MembershipStore
}

// Service manages user accounts.
type Service struct {
	stores Stores
	orgs   *organization.Service
	engine *permission.Engine
	now    func() time.Time
}

func NewService(stores Stores, orgs *organization.Service, engine *permission.Engine) *Service {
	return &Service{
		stores: stores,
		orgs:   orgs,
		engine: engine,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

type SignUpParams struct {
	Username      string
	Name          string
	Email         string
	EmailVerified bool
}

// SignUp creates a user together with their individual organization.
func (s *Service) SignUp(ctx context.Context, params SignUpParams) (*models.User, *models.Organization, error) {
	username, err := validUsername(params.Username)
	if err != nil {
		return nil, nil, err
	}
	addr, err := mail.ParseAddress(params.Email)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: invalid email: %w", organization.ErrInvalidArgument, err)
	}

	now := s.now()
	user := &models.User{
		UserID:   uuid.Must(uuid.NewV7()),
		Username: username,
		Name:     strings.TrimSpace(params.Name),
		Emails: []models.EmailAddress{{
			Email:    models.NormalizeEmail(addr.Address),
			Verified: params.EmailVerified,
			Primary:  true,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}

	var org *models.Organization
	err = s.stores.Tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.stores.Users.Create(ctx, user); err != nil {
			return err
		}
		created, err := s.orgs.CreateIndividual(ctx, user)
		org = created
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	log.Info().
		Str("user_id", user.UserID.String()).
		Str("username", user.Username).
		Str("org_id", org.OrgID.String()).
		Msg("User signed up")

	return user, org, nil
}

// UpdateParams holds optional user changes; nil fields are left alone.
type UpdateParams struct {
	Username *string
	Name     *string
}

// Update changes the actor's own account. A new username renames the user's
// individual organization in the same transaction.
func (s *Service) Update(ctx context.Context, actor *permission.Subject, userID uuid.UUID, params UpdateParams) (*models.User, error) {
	var user *models.User
	err := s.stores.Tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		user, err = s.stores.Users.Get(ctx, userID)
		if err != nil {
			return err
		}
		if err := s.engine.Require(actor, permission.ChangeUser, user); err != nil {
			return err
		}

		renamed := false
		if params.Username != nil {
			username, err := validUsername(*params.Username)
			if err != nil {
				return err
			}
			renamed = username != user.Username
			user.Username = username
		}
		if params.Name != nil {
			user.Name = strings.TrimSpace(*params.Name)
		}
		user.UpdatedAt = s.now()

		if err := s.stores.Users.Update(ctx, user); err != nil {
			return err
		}
		if renamed {
			return s.renameIndividual(ctx, user)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) renameIndividual(ctx context.Context, user *models.User) error {
	memberships, err := s.stores.Memberships.ListByUser(ctx, user.UserID)
	if err != nil {
		return err
	}
	for _, m := range memberships {
		org, err := s.stores.Organizations.Get(ctx, m.OrgID)
		if err != nil {
			return err
		}
		if !org.Individual {
			continue
		}
		slug, err := s.orgs.FreeSlug(ctx, organization.Slugify(user.Username), org.OrgID)
		if err != nil {
			return err
		}
		org.Name = user.Username
		org.Slug = slug
		org.UpdatedAt = s.now()
		return s.stores.Organizations.Update(ctx, org)
	}
	return nil
}

func validUsername(raw string) (string, error) {
	username := strings.TrimSpace(raw)
	if username == "" {
		return "", fmt.Errorf("%w: username is required", organization.ErrInvalidArgument)
	}
	if strings.ContainsFunc(username, unicode.IsSpace) {
		return "", fmt.Errorf("%w: username must not contain spaces", organization.ErrInvalidArgument)
	}
	if organization.Slugify(username) == "" {
		return "", fmt.Errorf("%w: username needs at least one letter or digit", organization.ErrInvalidArgument)
	}
	return username, nil
}
