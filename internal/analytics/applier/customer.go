package applier

import (
	"context"
	"log/slog"
	"time"

	analytics "shopstream/internal/analytics/models"
	"shopstream/internal/analytics/store"
	"shopstream/internal/event/models"
)

// CustomerApplier projects customer events. Aggregates (orders_count,
// total_spent) are owned by the order applier; customer upserts only carry
// profile fields.
type CustomerApplier struct {
	store  store.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewCustomerApplier creates a customer applier.
func NewCustomerApplier(st store.Store, logger *slog.Logger) *CustomerApplier {
	return &CustomerApplier{store: st, logger: logger, now: time.Now}
}

func (a *CustomerApplier) EntityType() models.EntityType {
	return models.EntityCustomer
}

func (a *CustomerApplier) Apply(ctx context.Context, ev *models.Event) error {
	if ev.EventType == models.EventCustomerDeleted {
		if err := a.store.DeleteCustomer(ctx, ev.TenantID, ev.EntityID); err != nil {
			return projectionError(err, ev)
		}
		a.logger.DebugContext(ctx, "customer removed from projection",
			slog.Int64("tenant_id", int64(ev.TenantID)),
			slog.String("external_id", string(ev.EntityID)))
		return nil
	}

	fields, err := decodePayload(ev)
	if err != nil {
		return err
	}

	now := a.now()
	customer := &analytics.Customer{
		TenantID:     ev.TenantID,
		ExternalID:   ev.EntityID,
		Email:        stringField(fields, "email"),
		FirstName:    stringField(fields, "first_name"),
		LastName:     stringField(fields, "last_name"),
		LastSequence: sequenceOf(ev, fields),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.UpsertCustomer(ctx, customer); err != nil {
		return projectionError(err, ev)
	}

	a.logger.DebugContext(ctx, "customer projected",
		slog.Int64("tenant_id", int64(ev.TenantID)),
		slog.String("external_id", string(ev.EntityID)),
		slog.String("event_type", string(ev.EventType)))
	return nil
}
