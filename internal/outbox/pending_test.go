package outbox

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/accounts/internal/models"
)

func TestPendingCollapse(t *testing.T) {
	tests := []struct {
		name    string
		actions []models.SyncAction
		want    models.SyncAction
	}{
		{"single update", []models.SyncAction{models.SyncActionUpdate}, models.SyncActionUpdate},
		{"repeated updates", []models.SyncAction{models.SyncActionUpdate, models.SyncActionUpdate, models.SyncActionUpdate}, models.SyncActionUpdate},
		{"create then update", []models.SyncAction{models.SyncActionCreate, models.SyncActionUpdate}, models.SyncActionCreate},
		{"update then delete", []models.SyncAction{models.SyncActionUpdate, models.SyncActionDelete}, models.SyncActionDelete},
		{"create then delete", []models.SyncAction{models.SyncActionCreate, models.SyncActionDelete}, models.SyncActionDelete},
		{"delete then create", []models.SyncAction{models.SyncActionDelete, models.SyncActionCreate}, models.SyncActionCreate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPending()
			for _, a := range tt.actions {
				p.Add(models.EntityOrganization, "org-1", a)
			}

			changes := p.Changes()
			require.Len(t, changes, 1)
			require.Equal(t, tt.want, changes[0].Action)
		})
	}
}

func TestPendingKeepsFirstTouchOrder(t *testing.T) {
	p := NewPending()
	p.Add(models.EntityOrganization, "b", models.SyncActionCreate)
	p.Add(models.EntityMembership, "b:u", models.SyncActionCreate)
	p.Add(models.EntityOrganization, "a", models.SyncActionUpdate)
	p.Add(models.EntityOrganization, "b", models.SyncActionUpdate)

	changes := p.Changes()
	require.Len(t, changes, 3)
	require.Equal(t, "b", changes[0].Key)
	require.Equal(t, models.EntityMembership, changes[1].EntityType)
	require.Equal(t, "a", changes[2].Key)
}

func TestRecord(t *testing.T) {
	t.Run("outside transaction", func(t *testing.T) {
		err := Record(context.Background(), models.EntityUser, "u", models.SyncActionUpdate)
		require.ErrorIs(t, err, ErrNoTransaction)
	})

	t.Run("inside transaction", func(t *testing.T) {
		p := NewPending()
		ctx := WithPending(context.Background(), p)

		require.NoError(t, Record(ctx, models.EntityUser, "u", models.SyncActionUpdate))
		require.NoError(t, Record(ctx, models.EntityUser, "u", models.SyncActionUpdate))
		require.Equal(t, 1, p.Len())
	})
}
