package permission

import (
	"github.com/google/uuid"
	"github.com/wolfeidau/accounts/internal/models"
)

// Subject is the actor a permission is evaluated for. It carries everything
// the predicates need so evaluation never touches storage.
type Subject struct {
	UserID         uuid.UUID
	Authenticated  bool
	Email          string             // primary email
	VerifiedEmails []string           // normalized
	Memberships    map[uuid.UUID]bool // org_id -> admin
}

// Anonymous returns an unauthenticated subject.
func Anonymous() *Subject {
	return &Subject{}
}

// NewSubject builds an authenticated subject from a user and their memberships.
func NewSubject(user *models.User, memberships []*models.Membership) *Subject {
	s := &Subject{
		UserID:         user.UserID,
		Authenticated:  true,
		VerifiedEmails: user.VerifiedEmails(),
		Memberships:    make(map[uuid.UUID]bool, len(memberships)),
	}
	s.Email = models.NormalizeEmail(user.PrimaryEmail())
	for _, m := range memberships {
		if m.UserID == user.UserID {
			s.Memberships[m.OrgID] = m.Admin
		}
	}
	return s
}

// IsAuthenticated reports whether the subject represents a signed in user.
func (s *Subject) IsAuthenticated() bool {
	return s != nil && s.Authenticated
}

// MemberOf reports membership and admin status for an organization.
func (s *Subject) MemberOf(orgID uuid.UUID) (member bool, admin bool) {
	if !s.IsAuthenticated() {
		return false, false
	}
	admin, member = s.Memberships[orgID]
	return member, admin
}

// HasVerifiedEmail reports whether email is one of the subject's verified addresses.
func (s *Subject) HasVerifiedEmail(email string) bool {
	if !s.IsAuthenticated() {
		return false
	}
	email = models.NormalizeEmail(email)
	for _, e := range s.VerifiedEmails {
		if e == email {
			return true
		}
	}
	return false
}
