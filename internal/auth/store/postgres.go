package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"shopstream/internal/auth/models"
	"shopstream/internal/platform/database"
	"shopstream/internal/sentinel"
	"shopstream/pkg/domain"
)

const userColumns = `id, tenant_id, email, password_hash, role, created_at, updated_at`

// Postgres persists operator accounts in PostgreSQL.
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates a Postgres-backed account store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Create(ctx context.Context, u *models.User) error {
	query := `
		INSERT INTO users (tenant_id, email, password_hash, role, created_at, updated_at)
		VALUES ($1, lower($2), $3, $4, $5, $6)
		RETURNING id`

	err := database.Querier(ctx, s.db).QueryRowContext(ctx, query,
		u.TenantID, u.Email, u.PasswordHash, u.Role, u.CreatedAt, u.UpdatedAt,
	).Scan(&u.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("email already registered: %w", sentinel.ErrDuplicate)
		}
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, id domain.UserID) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, userColumns)
	return s.findOne(ctx, query, id)
}

func (s *Postgres) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE email = lower($1)`, userColumns)
	return s.findOne(ctx, query, email)
}

func (s *Postgres) findOne(ctx context.Context, query string, arg any) (*models.User, error) {
	var u models.User
	err := database.Querier(ctx, s.db).QueryRowContext(ctx, query, arg).Scan(
		&u.ID, &u.TenantID, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("finding user: %w", err)
	}
	return &u, nil
}
