package processor

import (
	"time"

	"shopstream/internal/event/models"
	"shopstream/pkg/domain"
	"shopstream/pkg/idempotency"
)

// keyFor derives the idempotency key for an incoming event.
//
// Deletions use the simple key: a tenant only ever needs one "customer 42
// was deleted", so redeliveries collapse onto the first record regardless of
// when they arrive. Everything else, control events included, is
// timestamp-qualified: distinct updates and distinct sync requests produce
// distinct records while exact redeliveries still collide.
func keyFor(tenantID domain.TenantID, eventType models.EventType, entityType models.EntityType, entityID domain.ExternalID, occurredAt time.Time) (string, error) {
	if isDeletion(eventType) {
		return idempotency.DeriveSimple(tenantID, string(entityType), string(entityID), string(eventType))
	}
	return idempotency.Derive(tenantID, string(entityType), string(entityID), string(eventType), occurredAt)
}

func isDeletion(t models.EventType) bool {
	return t == models.EventCustomerDeleted || t == models.EventProductDeleted
}
