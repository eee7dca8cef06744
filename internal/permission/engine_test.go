package permission

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/accounts/internal/models"
)

func subject(userID uuid.UUID, memberships map[uuid.UUID]bool, verified ...string) *Subject {
	if memberships == nil {
		memberships = map[uuid.UUID]bool{}
	}
	return &Subject{UserID: userID, Authenticated: true, Memberships: memberships, VerifiedEmails: verified}
}

func TestViewOrganization(t *testing.T) {
	engine := NewEngine()

	private := &models.Organization{OrgID: uuid.New(), Private: true}
	public := &models.Organization{OrgID: uuid.New()}

	member := subject(uuid.New(), map[uuid.UUID]bool{private.OrgID: false})
	outsider := subject(uuid.New(), nil)

	tests := []struct {
		name    string
		subject *Subject
		obj     any
		want    bool
	}{
		{"member sees private org", member, private, true},
		{"outsider cannot see private org", outsider, private, false},
		{"anonymous cannot see private org", Anonymous(), private, false},
		{"nil subject cannot see private org", nil, private, false},
		{"anonymous sees public org", Anonymous(), public, true},
		{"nil object never grants", member, nil, false},
		{"typed nil object never grants", member, (*models.Organization)(nil), false},
		{"wrong object type never grants", member, &models.User{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, engine.Check(tt.subject, ViewOrganization, tt.obj))
		})
	}

	require.Equal(t, Unknown, engine.Evaluate(member, ViewOrganization, nil))
}

func TestOrganizationAndMembershipRules(t *testing.T) {
	engine := NewEngine()

	org := &models.Organization{OrgID: uuid.New()}
	adminID, memberID, otherID := uuid.New(), uuid.New(), uuid.New()
	admin := subject(adminID, map[uuid.UUID]bool{org.OrgID: true})
	member := subject(memberID, map[uuid.UUID]bool{org.OrgID: false})
	other := subject(otherID, map[uuid.UUID]bool{org.OrgID: false})

	ownMembership := &models.Membership{OrgID: org.OrgID, UserID: memberID}

	require.True(t, engine.Check(admin, ChangeOrganization, org))
	require.False(t, engine.Check(member, ChangeOrganization, org))
	require.False(t, engine.Check(admin, DeleteOrganization, org))

	require.True(t, engine.Check(admin, AddMembership, org))
	require.False(t, engine.Check(member, AddMembership, org))

	require.True(t, engine.Check(admin, ChangeMembership, ownMembership))
	require.True(t, engine.Check(member, ChangeMembership, ownMembership))
	require.False(t, engine.Check(other, ChangeMembership, ownMembership))
	require.True(t, engine.Check(member, DeleteMembership, ownMembership))
	require.False(t, engine.Check(Anonymous(), DeleteMembership, ownMembership))

	require.True(t, engine.Check(other, ViewMembership, ownMembership))
	require.False(t, engine.Check(subject(uuid.New(), nil), ViewMembership, ownMembership))
}

func TestInvitationRules(t *testing.T) {
	engine := NewEngine()

	orgID := uuid.New()
	adminID, inviteeID, requesterID := uuid.New(), uuid.New(), uuid.New()

	admin := subject(adminID, map[uuid.UUID]bool{orgID: true}, "admin@example.com")
	nonAdmin := subject(uuid.New(), map[uuid.UUID]bool{orgID: false})
	invitee := subject(inviteeID, nil, "invitee@example.com")
	unverified := subject(uuid.New(), nil)
	requester := subject(requesterID, nil, "requester@example.com")

	invitation := &models.Invitation{InvitationID: uuid.New(), OrgID: orgID, Email: "Invitee@Example.com"}
	targeted := &models.Invitation{InvitationID: uuid.New(), OrgID: orgID, Email: "invitee@example.com", UserID: &requesterID}
	request := &models.Invitation{InvitationID: uuid.New(), OrgID: orgID, Email: "requester@example.com", UserID: &requesterID, Request: true}

	t.Run("accept", func(t *testing.T) {
		require.True(t, engine.Check(invitee, AcceptInvitation, invitation))
		require.False(t, engine.Check(unverified, AcceptInvitation, invitation))
		require.False(t, engine.Check(invitee, AcceptInvitation, targeted))
		require.False(t, engine.Check(requester, AcceptInvitation, request))
		require.False(t, engine.Check(admin, AcceptInvitation, request))
	})

	t.Run("approve", func(t *testing.T) {
		require.True(t, engine.Check(admin, ApproveInvitation, request))
		require.False(t, engine.Check(nonAdmin, ApproveInvitation, request))
		require.False(t, engine.Check(admin, ApproveInvitation, invitation))

		selfAdmin := subject(requesterID, map[uuid.UUID]bool{orgID: true}, "requester@example.com")
		require.False(t, engine.Check(selfAdmin, ApproveInvitation, request))
	})

	t.Run("reject", func(t *testing.T) {
		require.True(t, engine.Check(invitee, RejectInvitation, invitation))
		require.True(t, engine.Check(admin, RejectInvitation, request))
		require.False(t, engine.Check(requester, RejectInvitation, request))
		require.False(t, engine.Check(admin, RejectInvitation, invitation))
	})

	t.Run("revoke", func(t *testing.T) {
		require.True(t, engine.Check(admin, RevokeInvitation, invitation))
		require.True(t, engine.Check(admin, RevokeInvitation, request))
		require.True(t, engine.Check(requester, RevokeInvitation, request))
		require.False(t, engine.Check(nonAdmin, RevokeInvitation, request))
		require.False(t, engine.Check(invitee, RevokeInvitation, invitation))
	})
}

func TestChangeUser(t *testing.T) {
	engine := NewEngine()
	user := &models.User{UserID: uuid.New()}

	require.True(t, engine.Check(subject(user.UserID, nil), ChangeUser, user))
	require.False(t, engine.Check(subject(uuid.New(), nil), ChangeUser, user))
	require.False(t, engine.Check(Anonymous(), ChangeUser, user))
}

func TestRequire(t *testing.T) {
	engine := NewEngine()

	err := engine.Require(Anonymous(), ChangeOrganization, &models.Organization{})
	require.ErrorIs(t, err, ErrPermissionDenied)

	require.False(t, engine.Check(Anonymous(), "no_such_permission", nil))
}

func TestThreeValuedLogic(t *testing.T) {
	unknown := Predicate{Name: "unknown", Fn: func(*Subject, any) Truth { return Unknown }}

	tests := []struct {
		name string
		expr Expr
		want Truth
	}{
		{"and false dominates", And(unknown, Never), False},
		{"and unknown", And(Always, unknown), Unknown},
		{"and true", And(Always, Always), True},
		{"or true dominates", Or(unknown, Always), True},
		{"or unknown", Or(Never, unknown), Unknown},
		{"or false", Or(Never, Never), False},
		{"not unknown", Not(unknown), Unknown},
		{"not true", Not(Always), False},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.expr.Eval(nil, nil))
		})
	}
}
