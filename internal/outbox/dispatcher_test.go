package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/accounts/internal/models"
)

func TestDispatcherExpand(t *testing.T) {
	registry := NewRegistry()
	registry.Register("documents", models.EntityOrganization, models.EntityUser)
	registry.Register("billing", models.EntityOrganization)
	registry.Register("billing", models.EntityOrganization)

	d := NewDispatcher(registry, 4)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tasks := d.Expand([]Change{
		{EntityType: models.EntityOrganization, Key: "org-1", Action: models.SyncActionUpdate},
		{EntityType: models.EntityUser, Key: "user-1", Action: models.SyncActionUpdate},
		{EntityType: models.EntityMembership, Key: "org-1:user-1", Action: models.SyncActionCreate},
	}, now)

	require.Len(t, tasks, 3)
	require.Equal(t, "documents", tasks[0].Target)
	require.Equal(t, "billing", tasks[1].Target)
	require.Equal(t, "documents", tasks[2].Target)
	require.Equal(t, models.EntityUser, tasks[2].EntityType)

	for _, task := range tasks {
		require.Equal(t, now, task.NextAttemptAt)
		require.Zero(t, task.AttemptCount)
		require.Equal(t, d.LaneFor(task.EntityType, task.EntityKey), task.Lane)
	}
	require.Equal(t, tasks[0].Lane, tasks[1].Lane)
	require.NotEqual(t, tasks[0].TaskID, tasks[1].TaskID)
}

func TestDispatcherLaneFor(t *testing.T) {
	d := NewDispatcher(NewRegistry(), 16)

	for i := 0; i < 100; i++ {
		lane := d.LaneFor(models.EntityMembership, "org:"+string(rune('a'+i%26)))
		require.GreaterOrEqual(t, lane, 0)
		require.Less(t, lane, 16)
	}
	require.Equal(t,
		d.LaneFor(models.EntityOrganization, "x"),
		d.LaneFor(models.EntityOrganization, "x"))
}

func TestDispatcherCommittedWakesLane(t *testing.T) {
	d := NewDispatcher(NewRegistry(), 2)

	d.Committed(context.Background(), []*models.SyncTask{{Lane: 1}, {Lane: 1}})

	select {
	case <-d.Wake(1):
	default:
		t.Fatal("expected lane 1 to be woken")
	}
	select {
	case <-d.Wake(0):
		t.Fatal("lane 0 should not be woken")
	default:
	}
}

func TestNewDispatcherDefaultLanes(t *testing.T) {
	d := NewDispatcher(NewRegistry(), 0)
	require.Equal(t, DefaultLanes, d.Lanes())
}
