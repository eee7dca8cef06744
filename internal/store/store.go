package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/accounts/internal/models"
)

// Sentinel errors for sync task queue operations
var (
	ErrTaskNotFound       = errors.New("sync task not found")
	ErrDeadLetterNotFound = errors.New("dead letter not found")
)

// Transactor runs a function inside a single atomic transaction.
//
// Every store call made with the context passed to fn participates in the
// transaction. Synchronized entity mutations record pending sync work against the
// transaction; when fn returns nil the pending work is expanded into sync tasks,
// written in the same transaction, and committed. If fn returns an error nothing
// is written and no task is ever visible to workers.
//
// Nested calls join the outer transaction.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// TaskQueue is the durable outbox consumed by sync workers.
type TaskQueue interface {
	// Claim returns the oldest due task in the lane whose entity key has no
	// earlier task still queued, hiding it from other consumers until
	// visibleAt. Returns nil, nil when the lane has no claimable task.
	Claim(ctx context.Context, lane int, now time.Time, visibleAt time.Time) (*models.SyncTask, error)

	// Complete removes a delivered (or intentionally skipped) task.
	Complete(ctx context.Context, taskID uuid.UUID) error

	// Reschedule records a failed attempt and makes the task claimable again at nextAttemptAt.
	Reschedule(ctx context.Context, taskID uuid.UUID, attemptCount int, nextAttemptAt time.Time, lastErr string) error

	// DeadLetter moves a task out of the queue into the dead letter table.
	DeadLetter(ctx context.Context, taskID uuid.UUID, reason string, failedAt time.Time) error

	// ListDeadLetters returns dead letters, most recent first.
	ListDeadLetters(ctx context.Context, limit int) ([]*models.DeadLetter, error)

	// RequeueDeadLetter moves a dead letter back into the queue with a fresh attempt budget.
	RequeueDeadLetter(ctx context.Context, taskID uuid.UUID, now time.Time) error

	// Pending returns the number of queued tasks.
	Pending(ctx context.Context) (int, error)
}
