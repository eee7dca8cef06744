package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// User represents a person with an account.
type User struct {
	UserID   uuid.UUID // UUIDv7
	Username string
	Name     string
	Emails   []EmailAddress

	CreatedAt time.Time
	UpdatedAt time.Time
}

// EmailAddress is an address claimed by a user. Only verified addresses may be
// used to match invitations.
type EmailAddress struct {
	Email    string
	Verified bool
	Primary  bool
}

// PrimaryEmail returns the primary address, or the first one if none is flagged.
func (u *User) PrimaryEmail() string {
	for _, e := range u.Emails {
		if e.Primary {
			return e.Email
		}
	}
	if len(u.Emails) > 0 {
		return u.Emails[0].Email
	}
	return ""
}

// VerifiedEmails returns the normalized verified addresses.
func (u *User) VerifiedEmails() []string {
	var out []string
	for _, e := range u.Emails {
		if e.Verified {
			out = append(out, NormalizeEmail(e.Email))
		}
	}
	return out
}

// NormalizeEmail lowercases and trims an address for comparison.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
