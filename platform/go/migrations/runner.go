package migrations

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	sqlassets "github.com/zenGate-Global/palmyra-tenancy/database"
)

// FreshOptions drive Fresh: wipe the central database then migrate it from scratch.
type FreshOptions struct {
	SourceOptions
	DropViews bool
	DropTypes bool
	// SchemaPath is an optional SQL dump loaded after the wipe and before migrations.
	SchemaPath string
	// Step applies migrations one at a time, logging each version.
	Step bool
}

// Runner applies central catalog migrations through golang-migrate.
type Runner struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewRunner panics when pool is nil.
func NewRunner(pool *pgxpool.Pool, logger *zap.Logger) *Runner {
	if pool == nil {
		panic("migrations runner requires pool")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{pool: pool, logger: logger}
}

// Fresh drops every table (and optionally views and types) in the current schema, loads
// the optional schema dump, then applies all migrations.
func (r *Runner) Fresh(ctx context.Context, opts FreshOptions) error {
	if err := r.Wipe(ctx, opts.DropViews, opts.DropTypes); err != nil {
		return err
	}
	if opts.SchemaPath != "" {
		if err := r.LoadSchemaDump(ctx, opts.SchemaPath); err != nil {
			return err
		}
	}
	return r.Up(ctx, opts.SourceOptions, opts.Step)
}

// Wipe drops every table in the connection's current schema.
func (r *Runner) Wipe(ctx context.Context, dropViews, dropTypes bool) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if dropViews {
		views, err := collectNames(ctx, tx, `
            SELECT table_name FROM information_schema.views
            WHERE table_schema = current_schema()`)
		if err != nil {
			return fmt.Errorf("list views: %w", err)
		}
		if err := dropAll(ctx, tx, "VIEW", views); err != nil {
			return err
		}
	}

	tables, err := collectNames(ctx, tx, `
        SELECT tablename FROM pg_tables
        WHERE schemaname = current_schema()`)
	if err != nil {
		return fmt.Errorf("list tables: %w", err)
	}
	if err := dropAll(ctx, tx, "TABLE", tables); err != nil {
		return err
	}

	if dropTypes {
		types, err := collectNames(ctx, tx, `
            SELECT t.typname FROM pg_type t
            JOIN pg_namespace n ON n.oid = t.typnamespace
            WHERE n.nspname = current_schema()
              AND (t.typtype IN ('e', 'd', 'r')
                   OR (t.typtype = 'c' AND EXISTS (
                        SELECT 1 FROM pg_class c WHERE c.oid = t.typrelid AND c.relkind = 'c')))`)
		if err != nil {
			return fmt.Errorf("list types: %w", err)
		}
		if err := dropAll(ctx, tx, "TYPE", types); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit wipe: %w", err)
	}

	r.logger.Info("central database wiped",
		zap.Int("tables", len(tables)),
		zap.Bool("drop_views", dropViews),
		zap.Bool("drop_types", dropTypes),
	)
	return nil
}

// LoadSchemaDump executes the SQL file at path as a single batch.
func (r *Runner) LoadSchemaDump(ctx context.Context, path string) error {
	contents, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read schema dump: %w", err)
	}
	if strings.TrimSpace(string(contents)) == "" {
		return nil
	}
	if _, err := r.pool.Exec(ctx, string(contents)); err != nil {
		return fmt.Errorf("load schema dump %s: %w", path, err)
	}
	r.logger.Info("schema dump loaded", zap.String("path", path))
	return nil
}

// Up applies pending migrations from the embedded set or opts.Paths.
func (r *Runner) Up(ctx context.Context, opts SourceOptions, step bool) error {
	m, closeFn, err := r.newMigrate(opts)
	if err != nil {
		return err
	}
	defer closeFn()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			select {
			case m.GracefulStop <- true:
			default:
			}
		case <-done:
		}
	}()

	if !step {
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("apply migrations: %w", err)
		}
		return nil
	}

	for {
		err := m.Steps(1)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("apply migration step: %w", err)
		}
		version, _, verr := m.Version()
		if verr == nil {
			r.logger.Info("migration applied", zap.Uint("version", version))
		}
	}
}

func (r *Runner) newMigrate(opts SourceOptions) (*migrate.Migrate, func(), error) {
	fsys := sqlassets.CentralMigrations()
	dir := sqlassets.CentralMigrationsDir
	if dirs := opts.ResolvePaths(); len(dirs) > 0 {
		var err error
		if fsys, err = dirsFS(dirs); err != nil {
			return nil, nil, err
		}
		dir = "."
	}

	src, err := iofs.New(fsys, dir)
	if err != nil {
		return nil, nil, fmt.Errorf("open migration source: %w", err)
	}

	db := stdlib.OpenDB(*r.pool.Config().ConnConfig)
	driver, err := migratepgx.WithInstance(db, &migratepgx.Config{})
	if err != nil {
		_ = src.Close()
		_ = db.Close()
		return nil, nil, fmt.Errorf("open migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "pgx5", driver)
	if err != nil {
		_ = src.Close()
		_ = driver.Close()
		return nil, nil, fmt.Errorf("init migrate: %w", err)
	}
	m.Log = &zapMigrateLogger{logger: r.logger.Sugar()}

	return m, func() { _, _ = m.Close() }, nil
}

func collectNames(ctx context.Context, tx pgx.Tx, query string) ([]string, error) {
	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func dropAll(ctx context.Context, tx pgx.Tx, kind string, names []string) error {
	if len(names) == 0 {
		return nil
	}
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = pgx.Identifier{name}.Sanitize()
	}
	stmt := fmt.Sprintf("DROP %s IF EXISTS %s CASCADE", kind, strings.Join(quoted, ", "))
	if _, err := tx.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("drop %ss: %w", strings.ToLower(kind), err)
	}
	return nil
}

// zapMigrateLogger adapts zap to golang-migrate's Logger.
type zapMigrateLogger struct {
	logger *zap.SugaredLogger
}

func (l *zapMigrateLogger) Printf(format string, v ...interface{}) {
	l.logger.Infof(strings.TrimSpace(format), v...)
}

func (l *zapMigrateLogger) Verbose() bool {
	return false
}
