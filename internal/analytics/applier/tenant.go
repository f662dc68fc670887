package applier

import (
	"context"
	"log/slog"
	"time"

	"shopstream/internal/event/models"
	"shopstream/pkg/domain"
)

// SyncMarker records that a tenant's data was re-synchronized.
type SyncMarker interface {
	UpdateLastSynced(ctx context.Context, tenantID domain.TenantID, syncedAt time.Time) error
}

// TenantApplier handles control events addressed to a tenant:
// sync/requested and reconciliation/started both stamp the tenant's
// last-synced marker, which is what keeps the inactivity sweep from
// re-flagging a tenant every pass.
type TenantApplier struct {
	tenants SyncMarker
	logger  *slog.Logger
	now     func() time.Time
}

// NewTenantApplier creates a tenant control-event applier.
func NewTenantApplier(tenants SyncMarker, logger *slog.Logger) *TenantApplier {
	return &TenantApplier{tenants: tenants, logger: logger, now: time.Now}
}

func (a *TenantApplier) EntityType() models.EntityType {
	return models.EntityTenant
}

func (a *TenantApplier) Apply(ctx context.Context, ev *models.Event) error {
	if err := a.tenants.UpdateLastSynced(ctx, ev.TenantID, a.now()); err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "tenant sync recorded",
		slog.Int64("tenant_id", int64(ev.TenantID)),
		slog.String("event_type", string(ev.EventType)),
		slog.String("correlation_id", ev.CorrelationID))
	return nil
}
