package outbox

import (
	"context"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/accounts/internal/models"
	"github.com/wolfeidau/accounts/internal/telemetry"
	"go.opentelemetry.io/otel/metric"
)

// DefaultLanes is the number of worker lanes when none is configured.
const DefaultLanes = 8

// Dispatcher turns committed pending records into sync tasks and wakes the
// worker lanes that own them.
type Dispatcher struct {
	registry *Registry
	lanes    int
	wake     []chan struct{}
}

func NewDispatcher(registry *Registry, lanes int) *Dispatcher {
	if lanes <= 0 {
		lanes = DefaultLanes
	}
	wake := make([]chan struct{}, lanes)
	for i := range wake {
		wake[i] = make(chan struct{}, 1)
	}
	return &Dispatcher{registry: registry, lanes: lanes, wake: wake}
}

func (d *Dispatcher) Lanes() int {
	return d.lanes
}

// LaneFor returns the lane owning the entity. All tasks for the same entity
// land in the same lane.
func (d *Dispatcher) LaneFor(entityType models.EntityType, key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(entityType))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(d.lanes))
}

// Expand creates one task per (change, subscribed target). Changes whose entity
// type has no subscribers produce nothing.
func (d *Dispatcher) Expand(changes []Change, now time.Time) []*models.SyncTask {
	var tasks []*models.SyncTask
	for _, c := range changes {
		lane := d.LaneFor(c.EntityType, c.Key)
		for _, target := range d.registry.Targets(c.EntityType) {
			tasks = append(tasks, &models.SyncTask{
				TaskID:        uuid.Must(uuid.NewV7()),
				EntityType:    c.EntityType,
				Action:        c.Action,
				EntityKey:     c.Key,
				Target:        target,
				Lane:          lane,
				NextAttemptAt: now,
				CreatedAt:     now,
			})
		}
	}
	return tasks
}

// Committed signals the lanes of newly committed tasks. It never blocks.
func (d *Dispatcher) Committed(ctx context.Context, tasks []*models.SyncTask) {
	enqueued := telemetry.GetMetrics().TasksEnqueuedTotal
	for _, t := range tasks {
		enqueued.Add(ctx, 1, metric.WithAttributes(
			telemetry.AttrTarget.String(t.Target),
			telemetry.AttrEntityType.String(string(t.EntityType)),
			telemetry.AttrAction.String(string(t.Action)),
		))
		d.Notify(t.Lane)
	}
}

// Notify wakes a lane consumer if it is idle.
func (d *Dispatcher) Notify(lane int) {
	if lane < 0 || lane >= d.lanes {
		return
	}
	select {
	case d.wake[lane] <- struct{}{}:
	default:
	}
}

// Wake returns the channel a lane consumer waits on between polls.
func (d *Dispatcher) Wake(lane int) <-chan struct{} {
	return d.wake[lane]
}
