package models

import (
	"time"

	"github.com/google/uuid"
)

// Organization represents an organization (tenant) in the system.
// Individual organizations are created one per user and always have exactly
// that user as their sole admin member.
type Organization struct {
	OrgID      uuid.UUID // UUIDv7
	Name       string
	Slug       string
	Private    bool
	Individual bool

	// Subscription
	Plan     string // plan slug, e.g. "free", "organization"
	MaxUsers int    // member quota, 0 means unlimited

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasCapacity reports whether another member can be added given the current count.
func (o *Organization) HasCapacity(members int) bool {
	if o.MaxUsers <= 0 {
		return true
	}
	return members < o.MaxUsers
}
