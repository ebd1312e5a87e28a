package persistence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is satisfied by *pgxpool.Pool, *pgxpool.Conn and pgx.Tx so stores can run
// standalone or inside a caller-owned transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// CatalogDB wraps a pgx pool holding the central catalog and every tenant database (schema).
type CatalogDB struct {
	pool *pgxpool.Pool
}

// NewCatalogDB panics when pool is nil.
func NewCatalogDB(pool *pgxpool.Pool) *CatalogDB {
	if pool == nil {
		panic("CatalogDB requires pool")
	}
	return &CatalogDB{pool: pool}
}

// Pool exposes the underlying pool for single-statement work.
func (db *CatalogDB) Pool() *pgxpool.Pool {
	return db.pool
}

// WithTx executes fn inside a transaction on the catalog's default search_path.
func (db *CatalogDB) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return db.withTxOptions(ctx, pgx.TxOptions{}, fn)
}

// WithSnapshotTx executes fn inside a REPEATABLE READ transaction so every statement sees one snapshot.
func (db *CatalogDB) WithSnapshotTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return db.withTxOptions(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead}, fn)
}

func (db *CatalogDB) withTxOptions(ctx context.Context, opts pgx.TxOptions, fn func(tx pgx.Tx) error) error {
	tx, err := db.pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// WithSchema executes fn inside a transaction whose search_path is limited to schema.
// The setting is transaction-local and never leaks back into the pool.
func (db *CatalogDB) WithSchema(ctx context.Context, schema string, fn func(tx pgx.Tx) error) error {
	return db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT set_config('search_path', $1, true)`, pgx.Identifier{schema}.Sanitize()); err != nil {
			return fmt.Errorf("set search_path: %w", err)
		}
		return fn(tx)
	})
}

// WithAdvisoryLock holds a session-level advisory lock keyed on key while fn runs.
// Callers contending for the same key are serialized across processes.
func (db *CatalogDB) WithAdvisoryLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	conn, err := db.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire conn: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock(hashtextextended($1, 0))`, key); err != nil {
		return fmt.Errorf("acquire advisory lock %q: %w", key, err)
	}
	defer func() {
		unlockCtx := context.WithoutCancel(ctx)
		if _, err := conn.Exec(unlockCtx, `SELECT pg_advisory_unlock(hashtextextended($1, 0))`, key); err != nil {
			// A failed unlock leaves the session holding the lock; drop the connection instead of returning it.
			_ = conn.Conn().Close(unlockCtx)
		}
	}()

	return fn(ctx)
}
