package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/accounts/internal/models"
	"github.com/wolfeidau/accounts/internal/store"
)

// TaskQueue implements store.TaskQueue using in-memory storage.
type TaskQueue struct {
	db *DB
}

func NewTaskQueue(db *DB) *TaskQueue {
	return &TaskQueue{db: db}
}

type headKey struct {
	entityType models.EntityType
	key        string
	target     string
}

// Claim returns the oldest due task in the lane that is the head of its entity's queue.
func (q *TaskQueue) Claim(ctx context.Context, lane int, now time.Time, visibleAt time.Time) (*models.SyncTask, error) {
	var claimed *models.SyncTask
	err := q.db.view(ctx, func(st *state) error {
		heads := make(map[headKey]models.SyncTask)
		for _, task := range st.tasks {
			if task.Lane != lane {
				continue
			}
			k := headKey{entityType: task.EntityType, key: task.EntityKey, target: task.Target}
			if head, ok := heads[k]; !ok || task.Seq < head.Seq {
				heads[k] = task
			}
		}

		candidates := make([]models.SyncTask, 0, len(heads))
		for _, task := range heads {
			if task.NextAttemptAt.After(now) {
				continue
			}
			if task.ClaimedUntil != nil && task.ClaimedUntil.After(now) {
				continue
			}
			candidates = append(candidates, task)
		}
		if len(candidates) == 0 {
			return nil
		}

		sort.Slice(candidates, func(i, j int) bool { return candidates[i].Seq < candidates[j].Seq })
		task := candidates[0]
		until := visibleAt
		task.ClaimedUntil = &until
		st.tasks[task.TaskID] = task
		claimed = &task
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (q *TaskQueue) Complete(ctx context.Context, taskID uuid.UUID) error {
	return q.db.view(ctx, func(st *state) error {
		if _, ok := st.tasks[taskID]; !ok {
			return store.ErrTaskNotFound
		}
		delete(st.tasks, taskID)
		return nil
	})
}

func (q *TaskQueue) Reschedule(ctx context.Context, taskID uuid.UUID, attemptCount int, nextAttemptAt time.Time, lastErr string) error {
	return q.db.view(ctx, func(st *state) error {
		task, ok := st.tasks[taskID]
		if !ok {
			return store.ErrTaskNotFound
		}
		task.AttemptCount = attemptCount
		task.NextAttemptAt = nextAttemptAt
		task.LastError = lastErr
		task.ClaimedUntil = nil
		st.tasks[taskID] = task
		return nil
	})
}

func (q *TaskQueue) DeadLetter(ctx context.Context, taskID uuid.UUID, reason string, failedAt time.Time) error {
	return q.db.view(ctx, func(st *state) error {
		task, ok := st.tasks[taskID]
		if !ok {
			return store.ErrTaskNotFound
		}
		task.ClaimedUntil = nil
		st.deadLetters[taskID] = models.DeadLetter{SyncTask: task, Reason: reason, FailedAt: failedAt}
		delete(st.tasks, taskID)
		return nil
	})
}

func (q *TaskQueue) ListDeadLetters(ctx context.Context, limit int) ([]*models.DeadLetter, error) {
	var out []*models.DeadLetter
	err := q.db.view(ctx, func(st *state) error {
		for _, dl := range st.deadLetters {
			clone := dl
			out = append(out, &clone)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].FailedAt.After(out[j].FailedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// RequeueDeadLetter puts the task back at the tail of its entity's queue.
func (q *TaskQueue) RequeueDeadLetter(ctx context.Context, taskID uuid.UUID, now time.Time) error {
	var lane int
	err := q.db.view(ctx, func(st *state) error {
		dl, ok := st.deadLetters[taskID]
		if !ok {
			return store.ErrDeadLetterNotFound
		}
		task := dl.SyncTask
		task.Seq = q.db.nextSeq()
		task.AttemptCount = 0
		task.NextAttemptAt = now
		task.ClaimedUntil = nil
		task.LastError = ""
		st.tasks[taskID] = task
		delete(st.deadLetters, taskID)
		lane = task.Lane
		return nil
	})
	if err != nil {
		return err
	}

	q.db.dispatcher.Notify(lane)
	return nil
}

func (q *TaskQueue) Pending(ctx context.Context) (int, error) {
	var n int
	err := q.db.view(ctx, func(st *state) error {
		n = len(st.tasks)
		return nil
	})
	return n, err
}
