package outbox

import (
	"slices"

	"github.com/wolfeidau/accounts/internal/models"
)

// Registry maps synchronized entity types to the target services that receive them.
type Registry struct {
	targets map[models.EntityType][]string
}

func NewRegistry() *Registry {
	return &Registry{targets: make(map[models.EntityType][]string)}
}

// Register subscribes a target service to changes of the given entity types.
func (r *Registry) Register(target string, entityTypes ...models.EntityType) {
	for _, et := range entityTypes {
		if slices.Contains(r.targets[et], target) {
			continue
		}
		r.targets[et] = append(r.targets[et], target)
	}
}

// Targets returns the services subscribed to the entity type, in registration order.
func (r *Registry) Targets(entityType models.EntityType) []string {
	return r.targets[entityType]
}
