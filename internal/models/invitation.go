package models

import (
	"time"

	"github.com/google/uuid"
)

// InvitationStatus is the lifecycle state of an invitation.
type InvitationStatus string

const (
	InvitationStatusPending  InvitationStatus = "pending"
	InvitationStatusAccepted InvitationStatus = "accepted"
	InvitationStatusRejected InvitationStatus = "rejected"
)

// Invitation is either an admin issued invite (Request false) or a join-request
// initiated by a prospective member (Request true).
type Invitation struct {
	InvitationID uuid.UUID  // UUIDv7
	OrgID        uuid.UUID  // FK to organizations
	UserID       *uuid.UUID // target user, always set for join-requests
	Email        string
	Request      bool
	Status       InvitationStatus
	CreatedAt    time.Time
}

// IsPending returns true while the invitation can still transition.
func (i *Invitation) IsPending() bool {
	return i.Status == InvitationStatusPending
}
