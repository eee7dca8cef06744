package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/accounts/internal/models"
	"github.com/wolfeidau/accounts/internal/store"
)

// TaskQueue implements store.TaskQueue on the sync_tasks outbox table.
type TaskQueue struct {
	db *DB
}

func NewTaskQueue(db *DB) *TaskQueue {
	return &TaskQueue{db: db}
}

// Claim claims the oldest due task in the lane using SELECT FOR UPDATE SKIP LOCKED.
// A task is only claimable when no earlier task for the same entity and target
// remains queued, so per-entity order holds across retries and consumers.
func (q *TaskQueue) Claim(ctx context.Context, lane int, now time.Time, visibleAt time.Time) (*models.SyncTask, error) {
	ctx, cancel := q.db.withTimeout(ctx)
	defer cancel()

	row := q.db.q(ctx).QueryRow(ctx, `
		WITH claimable AS (
			SELECT t.task_id
			FROM sync_tasks t
			WHERE t.lane = $1
			  AND t.next_attempt_at <= $2
			  AND (t.claimed_until IS NULL OR t.claimed_until <= $2)
			  AND NOT EXISTS (
				SELECT 1 FROM sync_tasks e
				WHERE e.entity_type = t.entity_type
				  AND e.entity_key = t.entity_key
				  AND e.target_service = t.target_service
				  AND e.seq < t.seq
			  )
			ORDER BY t.seq ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE sync_tasks
		SET claimed_until = $3
		FROM claimable
		WHERE sync_tasks.task_id = claimable.task_id
		RETURNING sync_tasks.task_id, sync_tasks.seq, sync_tasks.entity_type, sync_tasks.action,
			sync_tasks.entity_key, sync_tasks.target_service, sync_tasks.lane, sync_tasks.attempt_count,
			sync_tasks.next_attempt_at, sync_tasks.claimed_until, sync_tasks.last_error, sync_tasks.created_at
	`, lane, now, visibleAt)

	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim sync task: %w", mapPostgresError(err, nil, nil))
	}

	log.Debug().
		Int("lane", lane).
		Str("task_id", task.TaskID.String()).
		Str("entity_type", string(task.EntityType)).
		Str("target", task.Target).
		Msg("Claimed sync task")

	return task, nil
}

func (q *TaskQueue) Complete(ctx context.Context, taskID uuid.UUID) error {
	ctx, cancel := q.db.withTimeout(ctx)
	defer cancel()

	result, err := q.db.q(ctx).Exec(ctx, `DELETE FROM sync_tasks WHERE task_id = $1`, taskID)
	if err != nil {
		return fmt.Errorf("failed to complete sync task: %w", mapPostgresError(err, nil, nil))
	}
	if result.RowsAffected() == 0 {
		return store.ErrTaskNotFound
	}
	return nil
}

func (q *TaskQueue) Reschedule(ctx context.Context, taskID uuid.UUID, attemptCount int, nextAttemptAt time.Time, lastErr string) error {
	ctx, cancel := q.db.withTimeout(ctx)
	defer cancel()

	result, err := q.db.q(ctx).Exec(ctx, `
		UPDATE sync_tasks
		SET attempt_count = $2, next_attempt_at = $3, last_error = $4, claimed_until = NULL
		WHERE task_id = $1
	`, taskID, attemptCount, nextAttemptAt, lastErr)
	if err != nil {
		return fmt.Errorf("failed to reschedule sync task: %w", mapPostgresError(err, nil, nil))
	}
	if result.RowsAffected() == 0 {
		return store.ErrTaskNotFound
	}
	return nil
}

func (q *TaskQueue) DeadLetter(ctx context.Context, taskID uuid.UUID, reason string, failedAt time.Time) error {
	return q.db.InTx(ctx, func(ctx context.Context) error {
		result, err := q.db.q(ctx).Exec(ctx, `
			INSERT INTO sync_dead_letters (
				task_id, seq, entity_type, action, entity_key, target_service, lane,
				attempt_count, last_error, reason, created_at, failed_at
			)
			SELECT task_id, seq, entity_type, action, entity_key, target_service, lane,
				attempt_count, last_error, $2, created_at, $3
			FROM sync_tasks
			WHERE task_id = $1
		`, taskID, reason, failedAt)
		if err != nil {
			return fmt.Errorf("failed to dead letter sync task: %w", mapPostgresError(err, nil, nil))
		}
		if result.RowsAffected() == 0 {
			return store.ErrTaskNotFound
		}

		if _, err := q.db.q(ctx).Exec(ctx, `DELETE FROM sync_tasks WHERE task_id = $1`, taskID); err != nil {
			return fmt.Errorf("failed to remove dead lettered task: %w", mapPostgresError(err, nil, nil))
		}

		log.Warn().
			Str("task_id", taskID.String()).
			Str("reason", reason).
			Msg("Sync task dead lettered")
		return nil
	})
}

func (q *TaskQueue) ListDeadLetters(ctx context.Context, limit int) ([]*models.DeadLetter, error) {
	ctx, cancel := q.db.withTimeout(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	rows, err := q.db.q(ctx).Query(ctx, `
		SELECT task_id, seq, entity_type, action, entity_key, target_service, lane,
			attempt_count, last_error, reason, created_at, failed_at
		FROM sync_dead_letters
		ORDER BY failed_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", mapPostgresError(err, nil, nil))
	}
	defer rows.Close()

	var out []*models.DeadLetter
	for rows.Next() {
		var dl models.DeadLetter
		err := rows.Scan(
			&dl.TaskID,
			&dl.Seq,
			&dl.EntityType,
			&dl.Action,
			&dl.EntityKey,
			&dl.Target,
			&dl.Lane,
			&dl.AttemptCount,
			&dl.LastError,
			&dl.Reason,
			&dl.CreatedAt,
			&dl.FailedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dead letter: %w", err)
		}
		out = append(out, &dl)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPostgresError(err, nil, nil)
	}
	return out, nil
}

// RequeueDeadLetter moves a dead letter back to the tail of its entity's queue.
func (q *TaskQueue) RequeueDeadLetter(ctx context.Context, taskID uuid.UUID, now time.Time) error {
	ctx, cancel := q.db.withTimeout(ctx)
	defer cancel()

	var lane int
	err := q.db.q(ctx).QueryRow(ctx, `
		WITH dead AS (
			DELETE FROM sync_dead_letters
			WHERE task_id = $1
			RETURNING task_id, entity_type, action, entity_key, target_service, lane, created_at
		)
		INSERT INTO sync_tasks (
			task_id, entity_type, action, entity_key, target_service, lane,
			next_attempt_at, created_at
		)
		SELECT task_id, entity_type, action, entity_key, target_service, lane, $2, created_at
		FROM dead
		RETURNING lane
	`, taskID, now).Scan(&lane)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrDeadLetterNotFound
		}
		return fmt.Errorf("failed to requeue dead letter: %w", mapPostgresError(err, nil, nil))
	}

	log.Info().Str("task_id", taskID.String()).Int("lane", lane).Msg("Requeued dead letter")
	q.db.dispatcher.Notify(lane)
	return nil
}

func (q *TaskQueue) Pending(ctx context.Context) (int, error) {
	ctx, cancel := q.db.withTimeout(ctx)
	defer cancel()

	var n int
	if err := q.db.q(ctx).QueryRow(ctx, `SELECT count(*) FROM sync_tasks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count sync tasks: %w", mapPostgresError(err, nil, nil))
	}
	return n, nil
}

func scanTask(row pgx.Row) (*models.SyncTask, error) {
	var t models.SyncTask
	err := row.Scan(
		&t.TaskID,
		&t.Seq,
		&t.EntityType,
		&t.Action,
		&t.EntityKey,
		&t.Target,
		&t.Lane,
		&t.AttemptCount,
		&t.NextAttemptAt,
		&t.ClaimedUntil,
		&t.LastError,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
