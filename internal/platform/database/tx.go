package database

import (
	"context"
	"database/sql"
	"fmt"
)

// DBTX is the subset of *sql.DB and *sql.Tx that stores use, so the same
// query code runs inside and outside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

// Transactor runs a function within a storage transaction boundary.
// Implementations without transactional backing may run fn directly.
type Transactor interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// SQLTransactor carries a *sql.Tx through the context so every store call
// inside fn joins the same transaction. A status transition and the domain
// upsert it covers commit or roll back together.
type SQLTransactor struct {
	db *sql.DB
}

// NewTransactor wraps a pool as a Transactor.
func NewTransactor(db *sql.DB) *SQLTransactor {
	return &SQLTransactor{db: db}
}

// InTransaction begins a transaction, stashes it in the context, and commits
// if fn returns nil. Nested calls join the outer transaction.
func (t *SQLTransactor) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFrom(ctx) != nil {
		return fn(ctx)
	}
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func txFrom(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(txKey{}).(*sql.Tx)
	return tx
}

// Querier resolves the active transaction from the context, falling back to
// the pool. Postgres stores route every query through this.
func Querier(ctx context.Context, db *sql.DB) DBTX {
	if tx := txFrom(ctx); tx != nil {
		return tx
	}
	return db
}

// NoopTransactor satisfies Transactor for stores that synchronize internally
// (the in-memory implementations).
type NoopTransactor struct{}

func (NoopTransactor) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
