package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"shopstream/internal/event/models"
	"shopstream/internal/platform/database"
	"shopstream/internal/sentinel"
	"shopstream/pkg/domain"
)

const eventColumns = `id, tenant_id, event_type, entity_type, entity_id, idempotency_key,
	payload, status, received_at, processed_at, retry_count, error_message, correlation_id, updated_at`

// Postgres persists the event ledger in PostgreSQL. Claiming uses
// FOR UPDATE SKIP LOCKED so multiple workers can poll the same table
// without handing out the same event twice.
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates a Postgres-backed event store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Insert(ctx context.Context, ev *models.Event) error {
	query := `
		INSERT INTO events (tenant_id, event_type, entity_type, entity_id, idempotency_key,
			payload, status, received_at, retry_count, error_message, correlation_id, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`

	err := database.Querier(ctx, s.db).QueryRowContext(ctx, query,
		ev.TenantID, ev.EventType, ev.EntityType, ev.EntityID, ev.IdempotencyKey,
		ev.Payload, ev.Status, ev.ReceivedAt, ev.RetryCount, ev.ErrorMessage,
		ev.CorrelationID, ev.UpdatedAt,
	).Scan(&ev.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("idempotency key already recorded: %w", sentinel.ErrDuplicate)
		}
		return fmt.Errorf("inserting event: %w", err)
	}
	return nil
}

func (s *Postgres) GetByID(ctx context.Context, id domain.EventID) (*models.Event, error) {
	query := fmt.Sprintf(`SELECT %s FROM events WHERE id = $1`, eventColumns)
	ev, err := scanEvent(database.Querier(ctx, s.db).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("getting event by id: %w", err)
	}
	return ev, nil
}

func (s *Postgres) GetByIdempotencyKey(ctx context.Context, key string) (*models.Event, error) {
	query := fmt.Sprintf(`SELECT %s FROM events WHERE idempotency_key = $1`, eventColumns)
	ev, err := scanEvent(database.Querier(ctx, s.db).QueryRowContext(ctx, query, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("getting event by idempotency key: %w", err)
	}
	return ev, nil
}

func (s *Postgres) ClaimPending(ctx context.Context, limit int, now time.Time) ([]*models.Event, error) {
	query := fmt.Sprintf(`
		UPDATE events
		SET status = $1, updated_at = $2
		WHERE id IN (
			SELECT id FROM events
			WHERE status = $3
			ORDER BY received_at, id
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING %s`, eventColumns)

	rows, err := database.Querier(ctx, s.db).QueryContext(ctx, query,
		models.StatusProcessing, now, models.StatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("claiming pending events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *Postgres) MarkCompleted(ctx context.Context, id domain.EventID, now time.Time) error {
	query := `
		UPDATE events
		SET status = $1, processed_at = $2, error_message = '', updated_at = $2
		WHERE id = $3 AND status = $4`

	res, err := database.Querier(ctx, s.db).ExecContext(ctx, query,
		models.StatusCompleted, now, id, models.StatusProcessing)
	if err != nil {
		return fmt.Errorf("marking event completed: %w", err)
	}
	return requireTransition(ctx, s, res, id)
}

func (s *Postgres) MarkFailed(ctx context.Context, id domain.EventID, errMsg string, maxRetries int, now time.Time) (*models.Event, error) {
	query := fmt.Sprintf(`
		UPDATE events
		SET retry_count = retry_count + 1,
			status = CASE WHEN retry_count + 1 >= $1 THEN $2 ELSE $3 END,
			processed_at = CASE WHEN retry_count + 1 >= $1 THEN $4 ELSE processed_at END,
			error_message = $5,
			updated_at = $4
		WHERE id = $6 AND status = $7
		RETURNING %s`, eventColumns)

	ev, err := scanEvent(database.Querier(ctx, s.db).QueryRowContext(ctx, query,
		maxRetries, models.StatusDeadLetter, models.StatusFailed, now, errMsg, id, models.StatusProcessing))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.transitionFailure(ctx, id)
		}
		return nil, fmt.Errorf("marking event failed: %w", err)
	}
	return ev, nil
}

func (s *Postgres) MarkDeadLetter(ctx context.Context, id domain.EventID, errMsg string, now time.Time) error {
	query := `
		UPDATE events
		SET status = $1, processed_at = $2, error_message = $3, updated_at = $2
		WHERE id = $4 AND status = $5`

	res, err := database.Querier(ctx, s.db).ExecContext(ctx, query,
		models.StatusDeadLetter, now, errMsg, id, models.StatusProcessing)
	if err != nil {
		return fmt.Errorf("marking event dead-lettered: %w", err)
	}
	return requireTransition(ctx, s, res, id)
}

func (s *Postgres) ResetForRetry(ctx context.Context, id domain.EventID, now time.Time) (bool, error) {
	query := `
		UPDATE events
		SET status = $1, error_message = '', updated_at = $2
		WHERE id = $3 AND status = $4`

	res, err := database.Querier(ctx, s.db).ExecContext(ctx, query,
		models.StatusPending, now, id, models.StatusFailed)
	if err != nil {
		return false, fmt.Errorf("resetting event for retry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("resetting event for retry: %w", err)
	}
	return affected == 1, nil
}

func (s *Postgres) ListFailedDue(ctx context.Context, now time.Time, maxRetries int, base, ceiling time.Duration, limit int) ([]*models.Event, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM events
		WHERE status = $1
		  AND retry_count < $2
		  AND updated_at + make_interval(secs => LEAST($3 * power(2, retry_count), $4)) <= $5
		ORDER BY received_at, id
		LIMIT $6`, eventColumns)

	rows, err := database.Querier(ctx, s.db).QueryContext(ctx, query,
		models.StatusFailed, maxRetries, base.Seconds(), ceiling.Seconds(), now, limit)
	if err != nil {
		return nil, fmt.Errorf("listing failed events due for retry: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *Postgres) RevertStuck(ctx context.Context, cutoff time.Time, maxRetries int, now time.Time) ([]*models.Event, error) {
	query := fmt.Sprintf(`
		UPDATE events
		SET retry_count = retry_count + 1,
			status = CASE WHEN retry_count + 1 >= $1 THEN $2 ELSE $3 END,
			processed_at = CASE WHEN retry_count + 1 >= $1 THEN $4 ELSE processed_at END,
			error_message = $5,
			updated_at = $4
		WHERE status = $6 AND updated_at < $7
		RETURNING %s`, eventColumns)

	rows, err := database.Querier(ctx, s.db).QueryContext(ctx, query,
		maxRetries, models.StatusDeadLetter, models.StatusFailed, now,
		"processing timeout exceeded", models.StatusProcessing, cutoff)
	if err != nil {
		return nil, fmt.Errorf("reverting stuck events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *Postgres) CountByStatus(ctx context.Context) (map[models.EventStatus]int64, error) {
	query := `SELECT status, COUNT(*) FROM events GROUP BY status`

	rows, err := database.Querier(ctx, s.db).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("counting events by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.EventStatus]int64)
	for rows.Next() {
		var status models.EventStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scanning status count: %w", err)
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating status counts: %w", err)
	}
	return counts, nil
}

func (s *Postgres) OldestPendingAge(ctx context.Context, now time.Time) (time.Duration, bool, error) {
	query := `SELECT MIN(received_at) FROM events WHERE status = $1`

	var oldest sql.NullTime
	err := database.Querier(ctx, s.db).QueryRowContext(ctx, query, models.StatusPending).Scan(&oldest)
	if err != nil {
		return 0, false, fmt.Errorf("finding oldest pending event: %w", err)
	}
	if !oldest.Valid {
		return 0, false, nil
	}
	return now.Sub(oldest.Time), true, nil
}

func (s *Postgres) ListByTenant(ctx context.Context, tenantID domain.TenantID, status models.EventStatus, limit, offset int) ([]*models.Event, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM events
		WHERE tenant_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY received_at DESC, id DESC
		LIMIT $3 OFFSET $4`, eventColumns)

	rows, err := database.Querier(ctx, s.db).QueryContext(ctx, query,
		tenantID, string(status), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing events for tenant: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *Postgres) TenantsWithOrderingFailures(ctx context.Context, since time.Time) ([]domain.TenantID, error) {
	query := `
		SELECT DISTINCT tenant_id FROM events
		WHERE status IN ($1, $2)
		  AND error_message LIKE $3
		  AND updated_at >= $4
		ORDER BY tenant_id`

	rows, err := database.Querier(ctx, s.db).QueryContext(ctx, query,
		models.StatusFailed, models.StatusDeadLetter, OrderingErrorPrefix+"%", since)
	if err != nil {
		return nil, fmt.Errorf("listing tenants with ordering failures: %w", err)
	}
	defer rows.Close()

	var tenants []domain.TenantID
	for rows.Next() {
		var id domain.TenantID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning tenant id: %w", err)
		}
		tenants = append(tenants, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tenant ids: %w", err)
	}
	return tenants, nil
}

func (s *Postgres) LastReceivedAt(ctx context.Context, tenantID domain.TenantID) (*time.Time, error) {
	query := `SELECT MAX(received_at) FROM events WHERE tenant_id = $1`

	var last sql.NullTime
	err := database.Querier(ctx, s.db).QueryRowContext(ctx, query, tenantID).Scan(&last)
	if err != nil {
		return nil, fmt.Errorf("finding last received event: %w", err)
	}
	if !last.Valid {
		return nil, nil
	}
	return &last.Time, nil
}

// transitionFailure distinguishes a missing row from a row in the
// wrong state after a zero-row guarded update.
func (s *Postgres) transitionFailure(ctx context.Context, id domain.EventID) error {
	if _, err := s.GetByID(ctx, id); err != nil {
		return err
	}
	return sentinel.ErrInvalidState
}

func requireTransition(ctx context.Context, s *Postgres, res sql.Result, id domain.EventID) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if affected == 0 {
		return s.transitionFailure(ctx, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*models.Event, error) {
	var ev models.Event
	var processedAt sql.NullTime
	var errorMessage, correlationID sql.NullString

	err := row.Scan(
		&ev.ID, &ev.TenantID, &ev.EventType, &ev.EntityType, &ev.EntityID,
		&ev.IdempotencyKey, &ev.Payload, &ev.Status, &ev.ReceivedAt, &processedAt,
		&ev.RetryCount, &errorMessage, &correlationID, &ev.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if processedAt.Valid {
		ev.ProcessedAt = &processedAt.Time
	}
	ev.ErrorMessage = errorMessage.String
	ev.CorrelationID = correlationID.String
	return &ev, nil
}

func scanEvents(rows *sql.Rows) ([]*models.Event, error) {
	var events []*models.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}
	return events, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
