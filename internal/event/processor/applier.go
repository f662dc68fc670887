package processor

import (
	"context"
	"fmt"

	"shopstream/internal/event/models"
	dErrors "shopstream/pkg/domain-errors"
)

// Applier applies an event's payload to the analytics projection for one
// entity type. Apply must be idempotent: the same event may be delivered
// more than once after a crash between apply and completion.
type Applier interface {
	EntityType() models.EntityType
	Apply(ctx context.Context, ev *models.Event) error
}

// Appliers routes events to the Applier registered for their entity type.
type Appliers struct {
	byEntity map[models.EntityType]Applier
}

// NewAppliers builds a registry from the given appliers. Registering two
// appliers for the same entity type is a wiring bug and panics at startup.
func NewAppliers(appliers ...Applier) *Appliers {
	r := &Appliers{byEntity: make(map[models.EntityType]Applier, len(appliers))}
	for _, a := range appliers {
		if _, dup := r.byEntity[a.EntityType()]; dup {
			panic(fmt.Sprintf("duplicate applier for entity type %q", a.EntityType()))
		}
		r.byEntity[a.EntityType()] = a
	}
	return r
}

// ForEvent returns the applier responsible for the event's entity type.
func (r *Appliers) ForEvent(ev *models.Event) (Applier, error) {
	a, ok := r.byEntity[ev.EntityType]
	if !ok {
		return nil, dErrors.NewWithDetails(dErrors.CodeValidation,
			"no applier registered for entity type",
			map[string]any{"entity_type": string(ev.EntityType)})
	}
	return a, nil
}
