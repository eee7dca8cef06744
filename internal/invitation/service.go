package invitation

import (
	"context"
	"fmt"
	"net/mail"
	"slices"
	"time"

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
	Invitations   store.InvitationStore
	Organizations store.OrganizationStore
	Memberships   store.MembershipStore
	Users         store.UserStore
}

// Service drives the invitation state machine. Every transition out of pending
// (accept, approve, reject, revoke) deletes the invitation in the same
// transaction as its side effects.
type Service struct {
	stores  Stores
	members *organization.Service
	engine  *permission.Engine
	now     func() time.Time
}

func NewService(stores Stores, members *organization.Service, engine *permission.Engine) *Service {
	return &Service{
		stores:  stores,
		members: members,
		engine:  engine,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Invite creates an admin issued invitation for an email address.
func (s *Service) Invite(ctx context.Context, actor *permission.Subject, orgID uuid.UUID, email string) (*models.Invitation, error) {
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return nil, organization.Guard(organization.GuardEmailRequired, "a valid email address is required")
	}

	inv := &models.Invitation{
		InvitationID: uuid.Must(uuid.NewV7()),
		OrgID:        orgID,
		Email:        models.NormalizeEmail(addr.Address),
		Status:       models.InvitationStatusPending,
		CreatedAt:    s.now(),
	}

	err = s.stores.Tx.InTx(ctx, func(ctx context.Context) error {
		org, err := s.stores.Organizations.Get(ctx, orgID)
		if err != nil {
			return err
		}
		if err := s.engine.Require(actor, permission.AddMembership, org); err != nil {
			return err
		}
		if org.Individual {
			return organization.Guard(organization.GuardIndividualInvite, "individual organizations cannot invite members")
		}
		if err := s.ensureNotMember(ctx, orgID, inv.Email); err != nil {
			return err
		}
		if err := s.ensureNotPending(ctx, orgID, func(p *models.Invitation) bool {
			return !p.Request && p.Email == inv.Email
		}); err != nil {
			return err
		}
		return s.stores.Invitations.Create(ctx, inv)
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("invitation_id", inv.InvitationID.String()).
		Str("org_id", orgID.String()).
		Str("actor", actor.UserID.String()).
		Msg("Invitation created")

	return inv, nil
}

// Request creates a join-request from the actor to a visible organization.
func (s *Service) Request(ctx context.Context, actor *permission.Subject, orgID uuid.UUID) (*models.Invitation, error) {
	if !actor.IsAuthenticated() {
		return nil, fmt.Errorf("%w: authentication required", permission.ErrPermissionDenied)
	}

	userID := actor.UserID
	inv := &models.Invitation{
		InvitationID: uuid.Must(uuid.NewV7()),
		OrgID:        orgID,
		UserID:       &userID,
		Email:        requesterEmail(actor),
		Request:      true,
		Status:       models.InvitationStatusPending,
		CreatedAt:    s.now(),
	}

	err := s.stores.Tx.InTx(ctx, func(ctx context.Context) error {
		org, err := s.stores.Organizations.Get(ctx, orgID)
		if err != nil {
			return err
		}
		if err := s.engine.Require(actor, permission.ViewOrganization, org); err != nil {
			return err
		}
		if org.Individual {
			return organization.Guard(organization.GuardIndividualInvite, "individual organizations cannot gain members")
		}
		if member, _ := actor.MemberOf(orgID); member {
			return organization.Guard(organization.GuardAlreadyMember, "")
		}
		if err := s.ensureNotPending(ctx, orgID, func(p *models.Invitation) bool {
			return p.Request && p.UserID != nil && *p.UserID == userID
		}); err != nil {
			return err
		}
		return s.stores.Invitations.Create(ctx, inv)
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// requesterEmail is the verified address recorded on a join-request. The
// requester is identified by user ID, so an unverified primary is left out.
func requesterEmail(actor *permission.Subject) string {
	if actor.HasVerifiedEmail(actor.Email) {
		return actor.Email
	}
	if len(actor.VerifiedEmails) > 0 {
		return actor.VerifiedEmails[0]
	}
	return ""
}

// ensureNotMember rejects an invitation to an address verified by an existing member.
func (s *Service) ensureNotMember(ctx context.Context, orgID uuid.UUID, email string) error {
	members, err := s.stores.Memberships.ListByOrganization(ctx, orgID)
	if err != nil {
		return err
	}
	for _, m := range members {
		user, err := s.stores.Users.Get(ctx, m.UserID)
		if err != nil {
			return err
		}
		if slices.Contains(user.VerifiedEmails(), email) {
			return organization.Guard(organization.GuardAlreadyMember, email)
		}
	}
	return nil
}

// ensureNotPending rejects a new invitation when a matching one is still pending.
func (s *Service) ensureNotPending(ctx context.Context, orgID uuid.UUID, match func(*models.Invitation) bool) error {
	pending, err := s.stores.Invitations.ListPending(ctx, orgID)
	if err != nil {
		return err
	}
	for _, p := range pending {
		if match(p) {
			return organization.Guard(organization.GuardAlreadyPending, p.InvitationID.String())
		}
	}
	return nil
}

// List returns the organization's pending invitations and requests to an admin.
func (s *Service) List(ctx context.Context, actor *permission.Subject, orgID uuid.UUID) ([]*models.Invitation, error) {
	org, err := s.stores.Organizations.Get(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if err := s.engine.Require(actor, permission.ChangeOrganization, org); err != nil {
		return nil, err
	}
	return s.stores.Invitations.ListPending(ctx, orgID)
}

// Accept accepts an admin issued invitation on behalf of the invitee and makes
// them a member. The invitation email must be one of the actor's verified
// addresses.
func (s *Service) Accept(ctx context.Context, actor *permission.Subject, invitationID uuid.UUID) (*models.Membership, error) {
	var m *models.Membership
	err := s.transition(ctx, invitationID, func(ctx context.Context, inv *models.Invitation) error {
		if inv.Request {
			return organization.Guard(organization.GuardNotRequest, "join-requests are approved by an admin")
		}
		if err := s.engine.Require(actor, permission.AcceptInvitation, inv); err != nil {
			return err
		}

		var err error
		m, _, err = s.members.AddMember(ctx, inv.OrgID, actor.UserID, false)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("invitation_id", invitationID.String()).
		Str("org_id", m.OrgID.String()).
		Str("user_id", m.UserID.String()).
		Msg("Invitation accepted")

	return m, nil
}

// Approve accepts a join-request on behalf of the organization.
func (s *Service) Approve(ctx context.Context, actor *permission.Subject, invitationID uuid.UUID) (*models.Membership, error) {
	var m *models.Membership
	err := s.transition(ctx, invitationID, func(ctx context.Context, inv *models.Invitation) error {
		if !inv.Request {
			return organization.Guard(organization.GuardIsRequest, "invitations are accepted by the invitee")
		}
		if err := s.engine.Require(actor, permission.ApproveInvitation, inv); err != nil {
			return err
		}
		if inv.UserID == nil {
			return fmt.Errorf("%w: join-request without user", organization.ErrInvalidArgument)
		}

		var err error
		m, _, err = s.members.AddMember(ctx, inv.OrgID, *inv.UserID, false)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("invitation_id", invitationID.String()).
		Str("org_id", m.OrgID.String()).
		Str("user_id", m.UserID.String()).
		Msg("Join request approved")

	return m, nil
}

// Reject declines an invitation (by the invitee) or a join-request (by an admin).
func (s *Service) Reject(ctx context.Context, actor *permission.Subject, invitationID uuid.UUID) error {
	return s.transition(ctx, invitationID, func(ctx context.Context, inv *models.Invitation) error {
		return s.engine.Require(actor, permission.RejectInvitation, inv)
	})
}

// Revoke withdraws an invitation (by an admin) or a join-request (by its requester or an admin).
func (s *Service) Revoke(ctx context.Context, actor *permission.Subject, invitationID uuid.UUID) error {
	return s.transition(ctx, invitationID, func(ctx context.Context, inv *models.Invitation) error {
		return s.engine.Require(actor, permission.RevokeInvitation, inv)
	})
}

// transition loads a pending invitation, applies fn and deletes the invitation,
// all in one transaction.
func (s *Service) transition(ctx context.Context, invitationID uuid.UUID, fn func(ctx context.Context, inv *models.Invitation) error) error {
	return s.stores.Tx.InTx(ctx, func(ctx context.Context) error {
		inv, err := s.stores.Invitations.Get(ctx, invitationID)
		if err != nil {
			return err
		}
		if !inv.IsPending() {
			return organization.Guard(organization.GuardPending, fmt.Sprintf("invitation is %s", inv.Status))
		}
		if err := fn(ctx, inv); err != nil {
			return err
		}
		return s.stores.Invitations.Delete(ctx, invitationID)
	})
}
