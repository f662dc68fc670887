package applier

import (
	"context"
	"log/slog"
	"time"

	analytics "shopstream/internal/analytics/models"
	"shopstream/internal/analytics/store"
	"shopstream/internal/event/models"
)

// ProductApplier projects product events.
type ProductApplier struct {
	store  store.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewProductApplier creates a product applier.
func NewProductApplier(st store.Store, logger *slog.Logger) *ProductApplier {
	return &ProductApplier{store: st, logger: logger, now: time.Now}
}

func (a *ProductApplier) EntityType() models.EntityType {
	return models.EntityProduct
}

func (a *ProductApplier) Apply(ctx context.Context, ev *models.Event) error {
	if ev.EventType == models.EventProductDeleted {
		if err := a.store.DeleteProduct(ctx, ev.TenantID, ev.EntityID); err != nil {
			return projectionError(err, ev)
		}
		a.logger.DebugContext(ctx, "product removed from projection",
			slog.Int64("tenant_id", int64(ev.TenantID)),
			slog.String("external_id", string(ev.EntityID)))
		return nil
	}

	fields, err := decodePayload(ev)
	if err != nil {
		return err
	}

	now := a.now()
	product := &analytics.Product{
		TenantID:     ev.TenantID,
		ExternalID:   ev.EntityID,
		Title:        stringField(fields, "title"),
		Vendor:       stringField(fields, "vendor"),
		ProductType:  stringField(fields, "product_type"),
		Status:       stringField(fields, "status"),
		LastSequence: sequenceOf(ev, fields),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.UpsertProduct(ctx, product); err != nil {
		return projectionError(err, ev)
	}

	a.logger.DebugContext(ctx, "product projected",
		slog.Int64("tenant_id", int64(ev.TenantID)),
		slog.String("external_id", string(ev.EntityID)),
		slog.String("event_type", string(ev.EventType)))
	return nil
}
