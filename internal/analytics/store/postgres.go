package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"shopstream/internal/analytics/models"
	"shopstream/internal/platform/database"
	"shopstream/internal/sentinel"
	"shopstream/pkg/domain"
)

// Postgres persists the analytics projection in PostgreSQL. The sequence
// guard lives in the upsert's WHERE clause, so projection rows advance
// monotonically no matter how many workers write concurrently.
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates a Postgres-backed projection store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) UpsertOrder(ctx context.Context, o *models.Order) error {
	query := `
		INSERT INTO analytics_orders (tenant_id, external_id, order_number, total_cents, currency,
			financial_status, fulfillment_status, customer_external_id, cancelled, last_sequence,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (tenant_id, external_id) DO UPDATE SET
			order_number = EXCLUDED.order_number,
			total_cents = EXCLUDED.total_cents,
			currency = EXCLUDED.currency,
			financial_status = EXCLUDED.financial_status,
			fulfillment_status = EXCLUDED.fulfillment_status,
			customer_external_id = EXCLUDED.customer_external_id,
			cancelled = EXCLUDED.cancelled,
			last_sequence = EXCLUDED.last_sequence,
			updated_at = EXCLUDED.updated_at
		WHERE analytics_orders.last_sequence <= EXCLUDED.last_sequence
		RETURNING id`

	err := database.Querier(ctx, s.db).QueryRowContext(ctx, query,
		o.TenantID, o.ExternalID, o.OrderNumber, o.TotalCents, o.Currency,
		o.FinancialStatus, o.FulfillmentStatus, o.CustomerID, o.Cancelled, o.LastSequence,
		o.CreatedAt, o.UpdatedAt,
	).Scan(&o.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("order upsert refused by sequence guard: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("upserting order: %w", err)
	}
	return nil
}

func (s *Postgres) GetOrder(ctx context.Context, tenantID domain.TenantID, externalID domain.ExternalID) (*models.Order, error) {
	query := `
		SELECT id, tenant_id, external_id, order_number, total_cents, currency,
			financial_status, fulfillment_status, customer_external_id, cancelled, last_sequence,
			created_at, updated_at
		FROM analytics_orders
		WHERE tenant_id = $1 AND external_id = $2`

	var o models.Order
	err := database.Querier(ctx, s.db).QueryRowContext(ctx, query, tenantID, externalID).Scan(
		&o.ID, &o.TenantID, &o.ExternalID, &o.OrderNumber, &o.TotalCents, &o.Currency,
		&o.FinancialStatus, &o.FulfillmentStatus, &o.CustomerID, &o.Cancelled, &o.LastSequence,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("getting order: %w", err)
	}
	return &o, nil
}

func (s *Postgres) UpsertCustomer(ctx context.Context, c *models.Customer) error {
	query := `
		INSERT INTO analytics_customers (tenant_id, external_id, email, first_name, last_name,
			orders_count, total_spent_cents, last_sequence, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (tenant_id, external_id) DO UPDATE SET
			email = EXCLUDED.email,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			last_sequence = EXCLUDED.last_sequence,
			updated_at = EXCLUDED.updated_at
		WHERE analytics_customers.last_sequence <= EXCLUDED.last_sequence
		RETURNING id`

	err := database.Querier(ctx, s.db).QueryRowContext(ctx, query,
		c.TenantID, c.ExternalID, c.Email, c.FirstName, c.LastName,
		c.OrdersCount, c.TotalSpentCents, c.LastSequence, c.CreatedAt, c.UpdatedAt,
	).Scan(&c.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("customer upsert refused by sequence guard: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("upserting customer: %w", err)
	}
	return nil
}

func (s *Postgres) GetCustomer(ctx context.Context, tenantID domain.TenantID, externalID domain.ExternalID) (*models.Customer, error) {
	query := `
		SELECT id, tenant_id, external_id, email, first_name, last_name,
			orders_count, total_spent_cents, last_sequence, created_at, updated_at
		FROM analytics_customers
		WHERE tenant_id = $1 AND external_id = $2`

	var c models.Customer
	err := database.Querier(ctx, s.db).QueryRowContext(ctx, query, tenantID, externalID).Scan(
		&c.ID, &c.TenantID, &c.ExternalID, &c.Email, &c.FirstName, &c.LastName,
		&c.OrdersCount, &c.TotalSpentCents, &c.LastSequence, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("getting customer: %w", err)
	}
	return &c, nil
}

func (s *Postgres) DeleteCustomer(ctx context.Context, tenantID domain.TenantID, externalID domain.ExternalID) error {
	query := `DELETE FROM analytics_customers WHERE tenant_id = $1 AND external_id = $2`

	if _, err := database.Querier(ctx, s.db).ExecContext(ctx, query, tenantID, externalID); err != nil {
		return fmt.Errorf("deleting customer: %w", err)
	}
	return nil
}

func (s *Postgres) AddCustomerOrder(ctx context.Context, tenantID domain.TenantID, externalID domain.ExternalID, totalCents int64) error {
	now := time.Now()
	query := `
		INSERT INTO analytics_customers (tenant_id, external_id, orders_count, total_spent_cents,
			last_sequence, created_at, updated_at)
		VALUES ($1, $2, 1, $3, 0, $4, $4)
		ON CONFLICT (tenant_id, external_id) DO UPDATE SET
			orders_count = analytics_customers.orders_count + 1,
			total_spent_cents = analytics_customers.total_spent_cents + EXCLUDED.total_spent_cents,
			updated_at = EXCLUDED.updated_at`

	if _, err := database.Querier(ctx, s.db).ExecContext(ctx, query, tenantID, externalID, totalCents, now); err != nil {
		return fmt.Errorf("folding order into customer aggregates: %w", err)
	}
	return nil
}

func (s *Postgres) UpsertProduct(ctx context.Context, p *models.Product) error {
	query := `
		INSERT INTO analytics_products (tenant_id, external_id, title, vendor, product_type,
			status, last_sequence, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (tenant_id, external_id) DO UPDATE SET
			title = EXCLUDED.title,
			vendor = EXCLUDED.vendor,
			product_type = EXCLUDED.product_type,
			status = EXCLUDED.status,
			last_sequence = EXCLUDED.last_sequence,
			updated_at = EXCLUDED.updated_at
		WHERE analytics_products.last_sequence <= EXCLUDED.last_sequence
		RETURNING id`

	err := database.Querier(ctx, s.db).QueryRowContext(ctx, query,
		p.TenantID, p.ExternalID, p.Title, p.Vendor, p.ProductType,
		p.Status, p.LastSequence, p.CreatedAt, p.UpdatedAt,
	).Scan(&p.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("product upsert refused by sequence guard: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("upserting product: %w", err)
	}
	return nil
}

func (s *Postgres) GetProduct(ctx context.Context, tenantID domain.TenantID, externalID domain.ExternalID) (*models.Product, error) {
	query := `
		SELECT id, tenant_id, external_id, title, vendor, product_type,
			status, last_sequence, created_at, updated_at
		FROM analytics_products
		WHERE tenant_id = $1 AND external_id = $2`

	var p models.Product
	err := database.Querier(ctx, s.db).QueryRowContext(ctx, query, tenantID, externalID).Scan(
		&p.ID, &p.TenantID, &p.ExternalID, &p.Title, &p.Vendor, &p.ProductType,
		&p.Status, &p.LastSequence, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("getting product: %w", err)
	}
	return &p, nil
}

func (s *Postgres) DeleteProduct(ctx context.Context, tenantID domain.TenantID, externalID domain.ExternalID) error {
	query := `DELETE FROM analytics_products WHERE tenant_id = $1 AND external_id = $2`

	if _, err := database.Querier(ctx, s.db).ExecContext(ctx, query, tenantID, externalID); err != nil {
		return fmt.Errorf("deleting product: %w", err)
	}
	return nil
}
