package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"shopstream/internal/platform/database"
	"shopstream/internal/sentinel"
	"shopstream/internal/tenant/models"
	"shopstream/pkg/domain"
)

// PostgresStore persists tenants in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed tenant store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const tenantColumns = `id, name, shop_domain, access_token, webhook_secret, status, last_synced_at, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, t *models.Tenant) error {
	if t == nil {
		return fmt.Errorf("tenant is required")
	}
	query := `
		INSERT INTO tenants (name, shop_domain, access_token, webhook_secret, status, created_at, updated_at)
		VALUES ($1, lower($2), $3, $4, $5, $6, $7)
		RETURNING id
	`
	err := database.Querier(ctx, s.db).QueryRowContext(ctx, query,
		t.Name,
		t.Domain,
		t.AccessToken,
		t.WebhookSecret,
		string(t.Status),
		t.CreatedAt,
		t.UpdatedAt,
	).Scan(&t.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("tenant domain must be unique: %w", sentinel.ErrDuplicate)
		}
		return fmt.Errorf("create tenant: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, tenantID domain.TenantID) (*models.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE id = $1`
	t, err := scanTenant(database.Querier(ctx, s.db).QueryRowContext(ctx, query, int64(tenantID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find tenant by id: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) FindByDomain(ctx context.Context, shopDomain string) (*models.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE shop_domain = lower($1)`
	t, err := scanTenant(database.Querier(ctx, s.db).QueryRowContext(ctx, query, shopDomain))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find tenant by domain: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) ListActive(ctx context.Context) ([]*models.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE status = 'active' ORDER BY id`
	rows, err := database.Querier(ctx, s.db).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active tenants: %w", err)
	}
	defer rows.Close()

	var out []*models.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Update(ctx context.Context, t *models.Tenant) error {
	if t == nil {
		return fmt.Errorf("tenant is required")
	}
	query := `
		UPDATE tenants
		SET name = $2, access_token = $3, webhook_secret = $4, status = $5, last_synced_at = $6, updated_at = $7
		WHERE id = $1
	`
	res, err := database.Querier(ctx, s.db).ExecContext(ctx, query,
		int64(t.ID),
		t.Name,
		t.AccessToken,
		t.WebhookSecret,
		string(t.Status),
		t.LastSyncedAt,
		t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update tenant: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update tenant rows: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) TouchLastSynced(ctx context.Context, tenantID domain.TenantID, syncedAt time.Time) error {
	res, err := database.Querier(ctx, s.db).ExecContext(ctx,
		`UPDATE tenants SET last_synced_at = $2, updated_at = $2 WHERE id = $1`,
		int64(tenantID), syncedAt,
	)
	if err != nil {
		return fmt.Errorf("touch last synced: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("touch last synced rows: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTenant(row rowScanner) (*models.Tenant, error) {
	var t models.Tenant
	var status string
	var lastSynced sql.NullTime
	var webhookSecret sql.NullString
	if err := row.Scan(&t.ID, &t.Name, &t.Domain, &t.AccessToken, &webhookSecret, &status, &lastSynced, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Status = models.TenantStatus(status)
	t.WebhookSecret = webhookSecret.String
	if lastSynced.Valid {
		ts := lastSynced.Time
		t.LastSyncedAt = &ts
	}
	return &t, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
