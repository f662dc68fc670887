package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"shopstream/internal/platform/database"
	"shopstream/internal/sentinel"
)

// Postgres persists the transition outbox in PostgreSQL.
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates a Postgres-backed outbox store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Append(ctx context.Context, entry *Entry) error {
	query := `
		INSERT INTO transition_outbox (id, event_id, tenant_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := database.Querier(ctx, s.db).ExecContext(ctx, query,
		entry.ID, entry.EventID, entry.TenantID, entry.Payload, entry.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("outbox entry already exists: %w", sentinel.ErrDuplicate)
		}
		return fmt.Errorf("inserting outbox entry: %w", err)
	}
	return nil
}

func (s *Postgres) FetchUnprocessed(ctx context.Context, limit int) ([]*Entry, error) {
	query := `
		SELECT id, event_id, tenant_id, payload, created_at, processed_at
		FROM transition_outbox
		WHERE processed_at IS NULL
		ORDER BY created_at, id
		LIMIT $1
		FOR UPDATE SKIP LOCKED`

	rows, err := database.Querier(ctx, s.db).QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("fetching unprocessed entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		var processedAt sql.NullTime
		if err := rows.Scan(&e.ID, &e.EventID, &e.TenantID, &e.Payload, &e.CreatedAt, &processedAt); err != nil {
			return nil, fmt.Errorf("scanning outbox entry: %w", err)
		}
		if processedAt.Valid {
			e.ProcessedAt = &processedAt.Time
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating outbox entries: %w", err)
	}
	return entries, nil
}

func (s *Postgres) MarkProcessed(ctx context.Context, id uuid.UUID, processedAt time.Time) error {
	query := `
		UPDATE transition_outbox
		SET processed_at = $1
		WHERE id = $2 AND processed_at IS NULL`

	res, err := database.Querier(ctx, s.db).ExecContext(ctx, query, processedAt, id)
	if err != nil {
		return fmt.Errorf("marking outbox entry processed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("marking outbox entry processed: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) CountPending(ctx context.Context) (int64, error) {
	query := `SELECT COUNT(*) FROM transition_outbox WHERE processed_at IS NULL`

	var count int64
	if err := database.Querier(ctx, s.db).QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting pending entries: %w", err)
	}
	return count, nil
}

func (s *Postgres) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM transition_outbox WHERE processed_at IS NOT NULL AND processed_at < $1`

	res, err := database.Querier(ctx, s.db).ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("deleting processed entries: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deleting processed entries: %w", err)
	}
	return deleted, nil
}
