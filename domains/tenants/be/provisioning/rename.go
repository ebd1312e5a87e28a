package provisioning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/service"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/persistence"
)

// Rename copies the tenant schema of oldID into newID's and drops the source once every
// table has been copied and verified.
//
// Each table is copied in its own transaction that also records completion in the copy
// progress table, so an interrupted rename resumes from the first unfinished table. The
// source stays the source of truth until the final transaction, which re-verifies row
// counts, recreates foreign keys, drops the source and clears the progress rows.
func (p *DBProvisioner) Rename(ctx context.Context, oldID, newID string) error {
	return p.rename(ctx, oldID, newID, false)
}

// RenameWithCatalog is Rename with the catalog tenant id switched inside the final
// transaction, so the source schema is only dropped together with the catalog update.
func (p *DBProvisioner) RenameWithCatalog(ctx context.Context, oldID, newID string) error {
	return p.rename(ctx, oldID, newID, true)
}

var _ service.CatalogRenamer = (*DBProvisioner)(nil)

func (p *DBProvisioner) rename(ctx context.Context, oldID, newID string, switchCatalog bool) (err error) {
	defer func(start time.Time) { p.metrics.Observe("rename", start, err) }(time.Now())

	src, err := p.naming.DatabaseName(oldID)
	if err != nil {
		return err
	}
	dst, err := p.naming.DatabaseName(newID)
	if err != nil {
		return err
	}
	if src == dst {
		return nil
	}

	pool := p.db.Pool()
	logger := p.logger.With(zap.String("source", src), zap.String("target", dst))

	srcExists, err := schemaExists(ctx, pool, src)
	if err != nil {
		return err
	}
	dstExists, err := schemaExists(ctx, pool, dst)
	if err != nil {
		return err
	}

	progress := persistence.NewCopyProgressStore(pool)
	done, err := progress.Completed(ctx, src, dst)
	if err != nil {
		return err
	}

	switch {
	case !srcExists && dstExists && len(done) == 0:
		logger.Info("tenant database already renamed")
		return nil
	case !srcExists:
		return fmt.Errorf("%w: %s", service.ErrDatabaseMissing, src)
	case dstExists && len(done) == 0:
		// An empty target is what an interruption right after CREATE SCHEMA leaves behind.
		tables, err := listTables(ctx, pool, dst)
		if err != nil {
			return err
		}
		if len(tables) > 0 {
			return fmt.Errorf("%w: %s", service.ErrDatabaseExists, dst)
		}
	}

	if _, err := pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{dst}.Sanitize()); err != nil {
		return fmt.Errorf("create target schema: %w", err)
	}

	tables, err := listTables(ctx, pool, src)
	if err != nil {
		return err
	}

	for _, table := range tables {
		if _, ok := done[table]; ok {
			logger.Debug("table already copied", zap.String("table", table))
			continue
		}
		rows, err := p.copyTable(ctx, src, dst, table)
		if err != nil {
			return err
		}
		p.metrics.TableCopied(rows)
		logger.Info("table copied", zap.String("table", table), zap.Int64("rows", rows))
	}

	var catalog func(tx pgx.Tx) error
	if switchCatalog {
		catalog = func(tx pgx.Tx) error {
			_, err := persistence.NewTenantStore(tx).Rename(ctx, oldID, newID)
			switch {
			case errors.Is(err, persistence.ErrConflict):
				return service.ErrConflict
			case errors.Is(err, persistence.ErrNotFound):
				return service.ErrNotFound
			}
			return err
		}
	}

	if err := p.finishRename(ctx, src, dst, tables, catalog); err != nil {
		return err
	}

	logger.Info("tenant database renamed", zap.Int("tables", len(tables)))
	return nil
}

// copyTable recreates table in dst and copies every row inside one snapshot, recording
// completion in the same transaction.
func (p *DBProvisioner) copyTable(ctx context.Context, src, dst, table string) (int64, error) {
	srcTable := pgx.Identifier{src, table}.Sanitize()
	dstTable := pgx.Identifier{dst, table}.Sanitize()

	var copied int64
	err := p.db.WithSnapshotTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+dstTable+" CASCADE"); err != nil {
			return fmt.Errorf("drop partial copy of %s: %w", table, err)
		}
		if _, err := tx.Exec(ctx, fmt.Sprintf("CREATE TABLE %s (LIKE %s INCLUDING ALL)", dstTable, srcTable)); err != nil {
			return fmt.Errorf("create %s: %w", dstTable, err)
		}
		if err := detachSerialDefaults(ctx, tx, src, dst, table); err != nil {
			return err
		}

		columns, err := insertableColumns(ctx, tx, src, table)
		if err != nil {
			return err
		}
		columnList := make([]string, len(columns))
		for i, c := range columns {
			columnList[i] = pgx.Identifier{c}.Sanitize()
		}
		cols := strings.Join(columnList, ", ")

		tag, err := tx.Exec(ctx, fmt.Sprintf(
			"INSERT INTO %s (%s) OVERRIDING SYSTEM VALUE SELECT %s FROM %s",
			dstTable, cols, cols, srcTable))
		if err != nil {
			return fmt.Errorf("copy rows of %s: %w", table, err)
		}

		expected, err := countRows(ctx, tx, src, table)
		if err != nil {
			return err
		}
		if tag.RowsAffected() != expected {
			return fmt.Errorf("copy %s: copied %d rows, source has %d", table, tag.RowsAffected(), expected)
		}

		if err := resetSequences(ctx, tx, dst, table); err != nil {
			return err
		}

		copied = expected
		return persistence.NewCopyProgressStore(tx).MarkCopied(ctx, src, dst, table, expected)
	})
	if err != nil {
		return 0, err
	}
	return copied, nil
}

// finishRename verifies the copy against the source, recreates foreign keys between
// tenant tables, runs catalog when set and drops the source, atomically.
func (p *DBProvisioner) finishRename(ctx context.Context, src, dst string, tables []string, catalog func(tx pgx.Tx) error) error {
	return p.db.WithSnapshotTx(ctx, func(tx pgx.Tx) error {
		for _, table := range tables {
			want, err := countRows(ctx, tx, src, table)
			if err != nil {
				return err
			}
			got, err := countRows(ctx, tx, dst, table)
			if err != nil {
				return err
			}
			if want != got {
				return fmt.Errorf("verify %s: target has %d rows, source has %d", table, got, want)
			}
		}

		if err := copyForeignKeys(ctx, tx, src, dst); err != nil {
			return err
		}

		if catalog != nil {
			if err := catalog(tx); err != nil {
				return err
			}
		}

		if _, err := tx.Exec(ctx, "DROP SCHEMA "+pgx.Identifier{src}.Sanitize()+" CASCADE"); err != nil {
			return fmt.Errorf("drop source schema: %w", err)
		}
		return persistence.NewCopyProgressStore(tx).Forget(ctx, src)
	})
}

// insertableColumns lists the columns that accept explicit values (generated columns excluded).
func insertableColumns(ctx context.Context, q persistence.Querier, schema, table string) ([]string, error) {
	rows, err := q.Query(ctx, `
        SELECT column_name FROM information_schema.columns
        WHERE table_schema = $1 AND table_name = $2 AND is_generated = 'NEVER'
        ORDER BY ordinal_position
    `, schema, table)
	if err != nil {
		return nil, fmt.Errorf("list columns of %s: %w", table, err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// detachSerialDefaults points nextval() defaults copied by LIKE at new sequences owned by
// the target table; the originals belong to the source schema and go away with it.
func detachSerialDefaults(ctx context.Context, tx pgx.Tx, src, dst, table string) error {
	rows, err := tx.Query(ctx, `
        SELECT column_name FROM information_schema.columns
        WHERE table_schema = $1 AND table_name = $2 AND column_default LIKE 'nextval(%'
        ORDER BY ordinal_position
    `, dst, table)
	if err != nil {
		return fmt.Errorf("list serial columns of %s: %w", table, err)
	}
	columns, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return err
	}

	dstTable := pgx.Identifier{dst, table}.Sanitize()
	for _, column := range columns {
		seq := pgx.Identifier{dst, table + "_" + column + "_seq"}.Sanitize()
		stmts := []string{
			fmt.Sprintf("CREATE SEQUENCE IF NOT EXISTS %s OWNED BY %s.%s", seq, dstTable, pgx.Identifier{column}.Sanitize()),
			fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET DEFAULT nextval(%s::regclass)",
				dstTable, pgx.Identifier{column}.Sanitize(), quoteLiteral(seq)),
		}
		for _, stmt := range stmts {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("detach sequence of %s.%s: %w", table, column, err)
			}
		}
	}
	return nil
}

// resetSequences moves every identity or serial sequence of table past the copied values.
func resetSequences(ctx context.Context, tx pgx.Tx, schema, table string) error {
	qualified := pgx.Identifier{schema, table}.Sanitize()

	rows, err := tx.Query(ctx, `
        SELECT column_name FROM information_schema.columns
        WHERE table_schema = $1 AND table_name = $2
          AND pg_get_serial_sequence($3, column_name::text) IS NOT NULL
    `, schema, table, qualified)
	if err != nil {
		return fmt.Errorf("list sequences of %s: %w", table, err)
	}
	columns, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return err
	}

	for _, column := range columns {
		col := pgx.Identifier{column}.Sanitize()
		stmt := fmt.Sprintf(
			"SELECT setval(pg_get_serial_sequence($1, $2), COALESCE((SELECT MAX(%s) FROM %s), 0) + 1, false)",
			col, qualified)
		if _, err := tx.Exec(ctx, stmt, qualified, column); err != nil {
			return fmt.Errorf("reset sequence of %s.%s: %w", table, column, err)
		}
	}
	return nil
}

// copyForeignKeys recreates foreign keys declared in src on the matching dst tables.
// Definitions are rendered with src on the search_path so references stay unqualified
// and resolve against dst when replayed.
func copyForeignKeys(ctx context.Context, tx pgx.Tx, src, dst string) error {
	var original string
	if err := tx.QueryRow(ctx, `SELECT current_setting('search_path')`).Scan(&original); err != nil {
		return fmt.Errorf("read search_path: %w", err)
	}

	if _, err := tx.Exec(ctx, `SELECT set_config('search_path', $1, true)`, pgx.Identifier{src}.Sanitize()); err != nil {
		return fmt.Errorf("set search_path: %w", err)
	}

	rows, err := tx.Query(ctx, `
        SELECT c.relname, con.conname, pg_get_constraintdef(con.oid)
        FROM pg_constraint con
        JOIN pg_class c ON c.oid = con.conrelid
        JOIN pg_namespace n ON n.oid = c.relnamespace
        WHERE n.nspname = $1 AND con.contype = 'f'
          AND NOT EXISTS (
              SELECT 1 FROM pg_constraint d
              JOIN pg_class dc ON dc.oid = d.conrelid
              JOIN pg_namespace dn ON dn.oid = dc.relnamespace
              WHERE dn.nspname = $2 AND dc.relname = c.relname AND d.conname = con.conname)
        ORDER BY c.relname, con.conname
    `, src, dst)
	if err != nil {
		return fmt.Errorf("list foreign keys of %s: %w", src, err)
	}

	type foreignKey struct{ table, name, def string }
	var keys []foreignKey
	for rows.Next() {
		var fk foreignKey
		if err := rows.Scan(&fk.table, &fk.name, &fk.def); err != nil {
			rows.Close()
			return fmt.Errorf("scan foreign key: %w", err)
		}
		keys = append(keys, fk)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `SELECT set_config('search_path', $1, true)`, pgx.Identifier{dst}.Sanitize()); err != nil {
		return fmt.Errorf("set search_path: %w", err)
	}
	for _, fk := range keys {
		stmt := fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s %s",
			pgx.Identifier{dst, fk.table}.Sanitize(), pgx.Identifier{fk.name}.Sanitize(), fk.def)
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("recreate foreign key %s on %s: %w", fk.name, fk.table, err)
		}
	}

	if _, err := tx.Exec(ctx, `SELECT set_config('search_path', $1, true)`, original); err != nil {
		return fmt.Errorf("reset search_path: %w", err)
	}
	return nil
}
