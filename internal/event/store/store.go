// Package store persists the event ledger. The store's uniqueness constraint
// on idempotency_key and its conditional updates are the only synchronization
// primitives the pipeline relies on: there is no in-memory owner of event
// state, so every transition is a compare-and-set against the current status.
package store

import (
	"context"
	"time"

	"shopstream/internal/event/models"
	"shopstream/pkg/domain"
)

// OrderingErrorPrefix marks failure messages caused by out-of-order events.
// The reconciliation sweeper scans for it when deciding which tenants need a
// full re-sync.
const OrderingErrorPrefix = "ordering violation"

// Store defines event ledger operations. Implementations must be safe for
// concurrent use by multiple worker processes.
type Store interface {
	// Insert appends a pending event and assigns its ID. A second insert
	// with the same idempotency key surfaces sentinel.ErrDuplicate; callers
	// treat that as "already processed", not as an error.
	Insert(ctx context.Context, ev *models.Event) error

	// GetByID retrieves an event; sentinel.ErrNotFound when absent.
	GetByID(ctx context.Context, id domain.EventID) (*models.Event, error)

	// GetByIdempotencyKey retrieves the event owning a key.
	GetByIdempotencyKey(ctx context.Context, key string) (*models.Event, error)

	// ClaimPending atomically transitions up to limit pending events to
	// processing, oldest received first, and returns them. Two workers never
	// receive the same event.
	ClaimPending(ctx context.Context, limit int, now time.Time) ([]*models.Event, error)

	// MarkCompleted transitions processing→completed, guarded by the current
	// status; sentinel.ErrInvalidState if the event is not processing.
	MarkCompleted(ctx context.Context, id domain.EventID, now time.Time) error

	// MarkFailed transitions processing→failed, incrementing retry_count and
	// recording the error. When the count reaches maxRetries the event is
	// promoted to dead_letter in the same atomic update. Returns the updated
	// event.
	MarkFailed(ctx context.Context, id domain.EventID, errMsg string, maxRetries int, now time.Time) (*models.Event, error)

	// MarkDeadLetter transitions processing→dead_letter for non-transient
	// failures, bypassing the retry budget.
	MarkDeadLetter(ctx context.Context, id domain.EventID, errMsg string, now time.Time) error

	// ResetForRetry transitions failed→pending and clears the error message.
	// Returns false when another scheduler instance won the reset.
	ResetForRetry(ctx context.Context, id domain.EventID, now time.Time) (bool, error)

	// ListFailedDue returns failed events below maxRetries whose backoff
	// delay (min(base·2^retry_count, ceiling), measured from the last
	// attempt) has elapsed, oldest received first.
	ListFailedDue(ctx context.Context, now time.Time, maxRetries int, base, ceiling time.Duration, limit int) ([]*models.Event, error)

	// RevertStuck fails every event stuck in processing since before cutoff,
	// applying the same retry accounting as MarkFailed. Returns the affected
	// events.
	RevertStuck(ctx context.Context, cutoff time.Time, maxRetries int, now time.Time) ([]*models.Event, error)

	// CountByStatus returns ledger depth per status for queue monitoring.
	CountByStatus(ctx context.Context) (map[models.EventStatus]int64, error)

	// OldestPendingAge returns how long the oldest pending event has waited;
	// ok is false when nothing is pending.
	OldestPendingAge(ctx context.Context, now time.Time) (age time.Duration, ok bool, err error)

	// ListByTenant returns a tenant's events, newest first, optionally
	// filtered by status (empty = all).
	ListByTenant(ctx context.Context, tenantID domain.TenantID, status models.EventStatus, limit, offset int) ([]*models.Event, error)

	// TenantsWithOrderingFailures returns tenants that recorded an
	// ordering-violation failure since the given time.
	TenantsWithOrderingFailures(ctx context.Context, since time.Time) ([]domain.TenantID, error)

	// LastReceivedAt returns the newest receipt time for a tenant, or nil
	// when the tenant has no events.
	LastReceivedAt(ctx context.Context, tenantID domain.TenantID) (*time.Time, error)
}
