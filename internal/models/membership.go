package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Membership links a user to an organization.
// (OrgID, UserID) is unique.
type Membership struct {
	OrgID     uuid.UUID
	UserID    uuid.UUID
	Admin     bool
	CreatedAt time.Time
}

// Key returns the identifier used when synchronizing this membership.
func (m *Membership) Key() string {
	return MembershipKey(m.OrgID, m.UserID)
}

// MembershipKey builds the "<org_id>:<user_id>" sync key.
func MembershipKey(orgID, userID uuid.UUID) string {
	return orgID.String() + ":" + userID.String()
}

// ParseMembershipKey splits a key produced by MembershipKey.
func ParseMembershipKey(key string) (orgID, userID uuid.UUID, err error) {
	orgPart, userPart, ok := strings.Cut(key, ":")
	if !ok {
		return uuid.Nil, uuid.Nil, fmt.Errorf("invalid membership key %q", key)
	}

	orgID, err = uuid.Parse(orgPart)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("invalid membership key %q: %w", key, err)
	}

	userID, err = uuid.Parse(userPart)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("invalid membership key %q: %w", key, err)
	}

	return orgID, userID, nil
}
