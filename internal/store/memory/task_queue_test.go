package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/accounts/internal/models"
	"github.com/wolfeidau/accounts/internal/store"
)

func TestTaskQueueClaimPreservesPerKeyOrder(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t, "documents")
	orgs := NewOrganizationStore(db)
	queue := NewTaskQueue(db)

	org := newOrg("ordered")
	require.NoError(t, db.InTx(ctx, func(ctx context.Context) error { return orgs.Create(ctx, org) }))
	org.Name = "second"
	require.NoError(t, db.InTx(ctx, func(ctx context.Context) error { return orgs.Update(ctx, org) }))

	lane := db.dispatcher.LaneFor(models.EntityOrganization, org.OrgID.String())
	now := time.Now()

	first, err := queue.Claim(ctx, lane, now, now.Add(time.Minute))
	require.NoError(t, err)
	require.NotNil(t, first)
	require.Equal(t, models.SyncActionCreate, first.Action)

	// the update waits behind the claimed create
	blocked, err := queue.Claim(ctx, lane, now, now.Add(time.Minute))
	require.NoError(t, err)
	require.Nil(t, blocked)

	// a retry of the create still blocks the update
	require.NoError(t, queue.Reschedule(ctx, first.TaskID, 1, now.Add(time.Second), "timeout"))
	blocked, err = queue.Claim(ctx, lane, now, now.Add(time.Minute))
	require.NoError(t, err)
	require.Nil(t, blocked)

	retried, err := queue.Claim(ctx, lane, now.Add(2*time.Second), now.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, first.TaskID, retried.TaskID)
	require.Equal(t, 1, retried.AttemptCount)
	require.Equal(t, "timeout", retried.LastError)
	require.NoError(t, queue.Complete(ctx, retried.TaskID))

	second, err := queue.Claim(ctx, lane, now.Add(2*time.Second), now.Add(time.Minute))
	require.NoError(t, err)
	require.NotNil(t, second)
	require.Equal(t, models.SyncActionUpdate, second.Action)
}

func TestTaskQueueExpiredClaimIsReclaimed(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t, "documents")
	queue := NewTaskQueue(db)

	org := newOrg("reclaim")
	require.NoError(t, db.InTx(ctx, func(ctx context.Context) error { return NewOrganizationStore(db).Create(ctx, org) }))

	lane := db.dispatcher.LaneFor(models.EntityOrganization, org.OrgID.String())
	now := time.Now()

	task, err := queue.Claim(ctx, lane, now, now.Add(30*time.Second))
	require.NoError(t, err)
	require.NotNil(t, task)

	again, err := queue.Claim(ctx, lane, now.Add(time.Minute), now.Add(2*time.Minute))
	require.NoError(t, err)
	require.NotNil(t, again)
	require.Equal(t, task.TaskID, again.TaskID)
}

func TestTaskQueueDeadLetterAndRequeue(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t, "documents")
	queue := NewTaskQueue(db)

	org := newOrg("dead")
	require.NoError(t, db.InTx(ctx, func(ctx context.Context) error { return NewOrganizationStore(db).Create(ctx, org) }))

	lane := db.dispatcher.LaneFor(models.EntityOrganization, org.OrgID.String())
	now := time.Now()

	task, err := queue.Claim(ctx, lane, now, now.Add(time.Minute))
	require.NoError(t, err)
	require.NoError(t, queue.DeadLetter(ctx, task.TaskID, "HTTP 400", now))

	pending, err := queue.Pending(ctx)
	require.NoError(t, err)
	require.Zero(t, pending)

	dead, err := queue.ListDeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	require.Equal(t, "HTTP 400", dead[0].Reason)
	require.Equal(t, task.TaskID, dead[0].TaskID)

	require.NoError(t, queue.RequeueDeadLetter(ctx, task.TaskID, now))

	dead, err = queue.ListDeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, dead)

	requeued, err := queue.Claim(ctx, lane, now, now.Add(time.Minute))
	require.NoError(t, err)
	require.NotNil(t, requeued)
	require.Zero(t, requeued.AttemptCount)
	require.Greater(t, requeued.Seq, task.Seq)

	require.ErrorIs(t, queue.RequeueDeadLetter(ctx, task.TaskID, now), store.ErrDeadLetterNotFound)
}
