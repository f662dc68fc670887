package applier

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	analytics "shopstream/internal/analytics/models"
	"shopstream/internal/analytics/store"
	"shopstream/internal/event/models"
	"shopstream/pkg/domain"
)

// OrderApplier projects order events.
type OrderApplier struct {
	store  store.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewOrderApplier creates an order applier.
func NewOrderApplier(st store.Store, logger *slog.Logger) *OrderApplier {
	return &OrderApplier{store: st, logger: logger, now: time.Now}
}

func (a *OrderApplier) EntityType() models.EntityType {
	return models.EntityOrder
}

// Apply upserts the order row and, on first sight of the order, folds its
// total into the customer's aggregates. The order upsert and the aggregate
// update ride the caller's transaction, so a crash can never apply one
// without the other.
func (a *OrderApplier) Apply(ctx context.Context, ev *models.Event) error {
	fields, err := decodePayload(ev)
	if err != nil {
		return err
	}

	totalCents, err := moneyCents(stringField(fields, "total_price"))
	if err != nil {
		return err
	}

	now := a.now()
	order := &analytics.Order{
		TenantID:          ev.TenantID,
		ExternalID:        ev.EntityID,
		OrderNumber:       stringField(fields, "order_number"),
		TotalCents:        totalCents,
		Currency:          stringField(fields, "currency"),
		FinancialStatus:   stringField(fields, "financial_status"),
		FulfillmentStatus: stringField(fields, "fulfillment_status"),
		CustomerID:        customerRef(fields),
		Cancelled:         ev.EventType == models.EventOrderCancelled,
		LastSequence:      sequenceOf(ev, fields),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := a.store.UpsertOrder(ctx, order); err != nil {
		return projectionError(err, ev)
	}

	if ev.EventType == models.EventOrderCreated && order.CustomerID != "" {
		if err := a.store.AddCustomerOrder(ctx, ev.TenantID, order.CustomerID, totalCents); err != nil {
			return projectionError(err, ev)
		}
	}

	a.logger.DebugContext(ctx, "order projected",
		slog.Int64("tenant_id", int64(ev.TenantID)),
		slog.String("external_id", string(ev.EntityID)),
		slog.String("event_type", string(ev.EventType)))
	return nil
}

// customerRef digs the customer reference out of either a nested customer
// object or a flat customer_id field.
func customerRef(fields map[string]json.RawMessage) domain.ExternalID {
	if raw, ok := fields["customer"]; ok {
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(raw, &nested); err == nil {
			if ref := externalIDField(nested, "id"); ref != "" {
				return ref
			}
		}
	}
	return externalIDField(fields, "customer_id")
}
