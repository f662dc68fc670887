// Package store persists the analytics projection. Upserts are conditional
// on the row's last applied sequence: an event older than what the row
// already reflects is refused with sentinel.ErrConflict, which the processor
// surfaces as an ordering violation.
package store

import (
	"context"

	"shopstream/internal/analytics/models"
	"shopstream/pkg/domain"
)

// Store defines the projection operations. Implementations must be safe for
// concurrent use.
type Store interface {
	// UpsertOrder inserts or updates the order row when seq is at or past
	// the row's last applied sequence; sentinel.ErrConflict when stale.
	UpsertOrder(ctx context.Context, o *models.Order) error

	// GetOrder retrieves an order; sentinel.ErrNotFound when absent.
	GetOrder(ctx context.Context, tenantID domain.TenantID, externalID domain.ExternalID) (*models.Order, error)

	// UpsertCustomer inserts or updates the customer row, guarded by
	// sequence like UpsertOrder. Aggregates are preserved on update.
	UpsertCustomer(ctx context.Context, c *models.Customer) error

	// GetCustomer retrieves a customer; sentinel.ErrNotFound when absent.
	GetCustomer(ctx context.Context, tenantID domain.TenantID, externalID domain.ExternalID) (*models.Customer, error)

	// DeleteCustomer removes the customer row. Deleting an absent row is
	// not an error; deletions are latest-wins.
	DeleteCustomer(ctx context.Context, tenantID domain.TenantID, externalID domain.ExternalID) error

	// AddCustomerOrder folds an order into the customer's aggregates,
	// creating the row if the order arrived before the customer did.
	AddCustomerOrder(ctx context.Context, tenantID domain.TenantID, externalID domain.ExternalID, totalCents int64) error

	// UpsertProduct inserts or updates the product row, guarded by sequence.
	UpsertProduct(ctx context.Context, p *models.Product) error

	// GetProduct retrieves a product; sentinel.ErrNotFound when absent.
	GetProduct(ctx context.Context, tenantID domain.TenantID, externalID domain.ExternalID) (*models.Product, error)

	// DeleteProduct removes the product row; absent rows are not an error.
	DeleteProduct(ctx context.Context, tenantID domain.TenantID, externalID domain.ExternalID) error
}
