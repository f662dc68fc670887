// Package store persists tenants. Implementations must be safe for
// concurrent use and must return sentinel errors so the service layer can
// translate them into domain errors exactly once.
package store

import (
	"context"
	"time"

	"shopstream/internal/tenant/models"
	"shopstream/pkg/domain"
)

// Store defines tenant persistence operations.
type Store interface {
	// Create inserts the tenant and assigns its ID. A taken domain surfaces
	// sentinel.ErrDuplicate.
	Create(ctx context.Context, tenant *models.Tenant) error

	// FindByID retrieves a tenant; sentinel.ErrNotFound when absent.
	FindByID(ctx context.Context, tenantID domain.TenantID) (*models.Tenant, error)

	// FindByDomain resolves the external domain identifier to a tenant.
	FindByDomain(ctx context.Context, shopDomain string) (*models.Tenant, error)

	// ListActive returns all active tenants.
	ListActive(ctx context.Context) ([]*models.Tenant, error)

	// Update persists status, last-synced and credential changes.
	Update(ctx context.Context, tenant *models.Tenant) error

	// TouchLastSynced records a successful synchronization point.
	TouchLastSynced(ctx context.Context, tenantID domain.TenantID, syncedAt time.Time) error
}
