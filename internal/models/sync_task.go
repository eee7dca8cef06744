package models

import (
	"time"

	"github.com/google/uuid"
)

// EntityType names a synchronized entity.
type EntityType string

const (
	EntityOrganization EntityType = "organization"
	EntityMembership   EntityType = "membership"
	EntityUser         EntityType = "user"
)

// SyncAction is the mutation being propagated.
type SyncAction string

const (
	SyncActionCreate SyncAction = "create"
	SyncActionUpdate SyncAction = "update"
	SyncActionDelete SyncAction = "delete"
)

// Valid reports whether the action is one of the known actions.
func (a SyncAction) Valid() bool {
	switch a {
	case SyncActionCreate, SyncActionUpdate, SyncActionDelete:
		return true
	}
	return false
}

// SyncTask is a durable instruction to push one entity change to one target service.
// It carries identifiers only; workers always read fresh entity state.
type SyncTask struct {
	TaskID        uuid.UUID
	Seq           int64 // assigned on insert; orders tasks for the same key
	EntityType    EntityType
	Action        SyncAction
	EntityKey     string
	Target        string
	Lane          int
	AttemptCount  int
	NextAttemptAt time.Time
	ClaimedUntil  *time.Time
	LastError     string
	CreatedAt     time.Time
}

// DeadLetter is a task that exhausted its retries or failed permanently.
type DeadLetter struct {
	SyncTask
	Reason   string
	FailedAt time.Time
}
