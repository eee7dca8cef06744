package permission

import (
	"github.com/google/uuid"
	"github.com/wolfeidau/accounts/internal/models"
)

func orgIDOf(obj any) (uuid.UUID, bool) {
	switch o := obj.(type) {
	case *models.Organization:
		if o != nil {
			return o.OrgID, true
		}
	case *models.Membership:
		if o != nil {
			return o.OrgID, true
		}
	case *models.Invitation:
		if o != nil {
			return o.OrgID, true
		}
	}
	return uuid.Nil, false
}

func userIDOf(obj any) (uuid.UUID, bool) {
	switch o := obj.(type) {
	case *models.User:
		if o != nil {
			return o.UserID, true
		}
	case *models.Membership:
		if o != nil {
			return o.UserID, true
		}
	case *models.Invitation:
		if o != nil && o.UserID != nil {
			return *o.UserID, true
		}
		if o != nil {
			return uuid.Nil, true
		}
	}
	return uuid.Nil, false
}

var (
	IsAuthenticated = Predicate{Name: "is_authenticated", Fn: func(s *Subject, _ any) Truth {
		return truth(s.IsAuthenticated())
	}}

	IsPrivate = Predicate{Name: "is_private", Fn: func(_ *Subject, obj any) Truth {
		org, ok := obj.(*models.Organization)
		if !ok || org == nil {
			return Unknown
		}
		return truth(org.Private)
	}}

	IsMember = Predicate{Name: "is_member", Fn: func(s *Subject, obj any) Truth {
		orgID, ok := orgIDOf(obj)
		if !ok {
			return Unknown
		}
		member, _ := s.MemberOf(orgID)
		return truth(member)
	}}

	IsAdmin = Predicate{Name: "is_admin", Fn: func(s *Subject, obj any) Truth {
		orgID, ok := orgIDOf(obj)
		if !ok {
			return Unknown
		}
		_, admin := s.MemberOf(orgID)
		return truth(admin)
	}}

	// IsSelf matches objects belonging to the subject. Invitations without a
	// target user belong to nobody.
	IsSelf = Predicate{Name: "is_self", Fn: func(s *Subject, obj any) Truth {
		userID, ok := userIDOf(obj)
		if !ok {
			return Unknown
		}
		return truth(s.IsAuthenticated() && userID != uuid.Nil && userID == s.UserID)
	}}

	IsRequest = Predicate{Name: "is_request", Fn: func(_ *Subject, obj any) Truth {
		inv, ok := obj.(*models.Invitation)
		if !ok || inv == nil {
			return Unknown
		}
		return truth(inv.Request)
	}}

	// IsInvitee holds when the invitation's email is one of the subject's
	// verified addresses and any target user is the subject.
	IsInvitee = Predicate{Name: "is_invitee", Fn: func(s *Subject, obj any) Truth {
		inv, ok := obj.(*models.Invitation)
		if !ok || inv == nil {
			return Unknown
		}
		if !s.HasVerifiedEmail(inv.Email) {
			return False
		}
		return truth(inv.UserID == nil || *inv.UserID == s.UserID)
	}}

	IsRequester Expr = And(IsRequest, IsSelf)
)
