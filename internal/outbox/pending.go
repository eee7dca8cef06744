package outbox

import (
	"context"
	"errors"
	"sync"

	"github.com/wolfeidau/accounts/internal/models"
)

// ErrNoTransaction is returned when a synchronized mutation is recorded outside a transaction.
var ErrNoTransaction = errors.New("outbox: no transaction in context")

// Change is a collapsed pending sync record for one entity.
type Change struct {
	EntityType models.EntityType
	Key        string
	Action     models.SyncAction
}

type changeKey struct {
	entityType models.EntityType
	key        string
}

// Pending accumulates the sync records of one transaction.
// Repeated records for the same (type, key) collapse: the last action wins,
// except that a create followed by an update remains a create.
type Pending struct {
	mu      sync.Mutex
	order   []changeKey
	actions map[changeKey]models.SyncAction
}

func NewPending() *Pending {
	return &Pending{actions: make(map[changeKey]models.SyncAction)}
}

// Add records an action for the entity.
func (p *Pending) Add(entityType models.EntityType, key string, action models.SyncAction) {
	p.mu.Lock()
	defer p.mu.Unlock()

	k := changeKey{entityType: entityType, key: key}
	prev, seen := p.actions[k]
	if !seen {
		p.order = append(p.order, k)
	}
	if seen && prev == models.SyncActionCreate && action == models.SyncActionUpdate {
		return
	}
	p.actions[k] = action
}

// Changes returns the collapsed records in first-touch order.
func (p *Pending) Changes() []Change {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Change, 0, len(p.order))
	for _, k := range p.order {
		out = append(out, Change{EntityType: k.entityType, Key: k.key, Action: p.actions[k]})
	}
	return out
}

func (p *Pending) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.order)
}

type contextKey int

const pendingKey contextKey = 0

// WithPending attaches a transaction's pending set to the context.
func WithPending(ctx context.Context, p *Pending) context.Context {
	return context.WithValue(ctx, pendingKey, p)
}

// PendingFromContext returns the pending set of the enclosing transaction.
func PendingFromContext(ctx context.Context) (*Pending, bool) {
	p, ok := ctx.Value(pendingKey).(*Pending)
	return p, ok
}

// Record registers that the entity changed within the current transaction.
// Stores call this after every synchronized mutation.
func Record(ctx context.Context, entityType models.EntityType, key string, action models.SyncAction) error {
	p, ok := PendingFromContext(ctx)
	if !ok {
		return ErrNoTransaction
	}
	p.Add(entityType, key, action)
	return nil
}
