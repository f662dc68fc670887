package models

// EventType identifies the kind of change an event carries. The vocabulary
// follows the source platform's webhook topics plus internal control events.
type EventType string

const (
	EventOrderCreated   EventType = "orders/create"
	EventOrderUpdated   EventType = "orders/updated"
	EventOrderCancelled EventType = "orders/cancelled"
	EventOrderFulfilled EventType = "orders/fulfilled"
	EventOrderPaid      EventType = "orders/paid"

	EventCustomerCreated EventType = "customers/create"
	EventCustomerUpdated EventType = "customers/update"
	EventCustomerDeleted EventType = "customers/delete"

	EventProductCreated EventType = "products/create"
	EventProductUpdated EventType = "products/update"
	EventProductDeleted EventType = "products/delete"

	// Control events originate inside the system, not from webhooks.
	EventSyncRequested         EventType = "sync/requested"
	EventReconciliationStarted EventType = "reconciliation/started"
)

var knownEventTypes = map[EventType]struct{}{
	EventOrderCreated: {}, EventOrderUpdated: {}, EventOrderCancelled: {},
	EventOrderFulfilled: {}, EventOrderPaid: {},
	EventCustomerCreated: {}, EventCustomerUpdated: {}, EventCustomerDeleted: {},
	EventProductCreated: {}, EventProductUpdated: {}, EventProductDeleted: {},
	EventSyncRequested: {}, EventReconciliationStarted: {},
}

// Valid reports whether the event type is part of the known vocabulary.
func (t EventType) Valid() bool {
	_, ok := knownEventTypes[t]
	return ok
}

// IsControl reports whether the event is an internal control event rather
// than a source-platform change.
func (t EventType) IsControl() bool {
	return t == EventSyncRequested || t == EventReconciliationStarted
}

// EntityType identifies what kind of entity an event references.
type EntityType string

const (
	EntityOrder    EntityType = "order"
	EntityCustomer EntityType = "customer"
	EntityProduct  EntityType = "product"
	EntityLineItem EntityType = "line_item"
	EntityTenant   EntityType = "tenant"
)

// Valid reports whether the entity type is known.
func (t EntityType) Valid() bool {
	switch t {
	case EntityOrder, EntityCustomer, EntityProduct, EntityLineItem, EntityTenant:
		return true
	}
	return false
}
