package provisioning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	sqlassets "github.com/zenGate-Global/palmyra-tenancy/database"
	"github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/service"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/metrics"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

// DBProvisioner keeps one PostgreSQL schema per tenant next to the central catalog.
type DBProvisioner struct {
	db      *persistence.CatalogDB
	naming  tenant.Config
	logger  *zap.Logger
	metrics *metrics.ProvisioningMetrics
}

// NewDBProvisioner panics when db is nil. A nil metrics records nothing.
func NewDBProvisioner(db *persistence.CatalogDB, naming tenant.Config, logger *zap.Logger, m *metrics.ProvisioningMetrics) *DBProvisioner {
	if db == nil {
		panic("db provisioner requires catalog db")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DBProvisioner{db: db, naming: naming, logger: logger, metrics: m}
}

// Create creates the tenant schema and its base tables in one transaction.
func (p *DBProvisioner) Create(ctx context.Context, tenantID string) (err error) {
	defer func(start time.Time) { p.metrics.Observe("create", start, err) }(time.Now())

	name, err := p.naming.DatabaseName(tenantID)
	if err != nil {
		return err
	}

	err = p.db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "CREATE SCHEMA "+pgx.Identifier{name}.Sanitize()); err != nil {
			if persistence.IsDuplicateSchema(err) {
				return fmt.Errorf("%w: %s", service.ErrDatabaseExists, name)
			}
			return fmt.Errorf("create schema: %w", err)
		}
		if _, err := tx.Exec(ctx, `SELECT set_config('search_path', $1, true)`, pgx.Identifier{name}.Sanitize()); err != nil {
			return fmt.Errorf("set search_path: %w", err)
		}
		for _, stmt := range sqlassets.TenantSpaceStatements() {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("apply tenant schema: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	p.logger.Info("tenant database created", zap.String("tenant_id", tenantID), zap.String("database", name))
	return nil
}

// Exists reports whether the tenant database is present.
func (p *DBProvisioner) Exists(ctx context.Context, tenantID string) (bool, error) {
	name, err := p.naming.DatabaseName(tenantID)
	if err != nil {
		return false, err
	}
	return schemaExists(ctx, p.db.Pool(), name)
}

// Drop removes the tenant schema and any copy progress recorded for it.
func (p *DBProvisioner) Drop(ctx context.Context, tenantID string) (err error) {
	defer func(start time.Time) { p.metrics.Observe("drop", start, err) }(time.Now())

	name, err := p.naming.DatabaseName(tenantID)
	if err != nil {
		return err
	}

	err = p.db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "DROP SCHEMA IF EXISTS "+pgx.Identifier{name}.Sanitize()+" CASCADE"); err != nil {
			return fmt.Errorf("drop schema: %w", err)
		}
		return persistence.NewCopyProgressStore(tx).Forget(ctx, name)
	})
	if err != nil {
		return err
	}

	p.logger.Info("tenant database dropped", zap.String("tenant_id", tenantID), zap.String("database", name))
	return nil
}

// DropAll drops the database of every tenant in the catalog. Failures are logged and
// collected; they never stop the remaining drops.
func (p *DBProvisioner) DropAll(ctx context.Context) service.DropReport {
	var report service.DropReport

	records, err := persistence.NewTenantStore(p.db.Pool()).List(ctx, persistence.ListTenantsParams{})
	if err != nil {
		p.logger.Warn("list tenants for drop", zap.Error(err))
		report.ListErr = err
		return report
	}

	for _, rec := range records {
		name, _ := p.naming.DatabaseName(rec.ID)
		if err := p.Drop(ctx, rec.ID); err != nil {
			p.logger.Warn("drop tenant database", zap.String("tenant_id", rec.ID), zap.Error(err))
			report.Failed = append(report.Failed, service.DropFailure{TenantID: rec.ID, Database: name, Err: err})
			continue
		}
		report.Dropped = append(report.Dropped, name)
	}
	return report
}

// Inventory returns the row count of every table in the tenant database.
func (p *DBProvisioner) Inventory(ctx context.Context, tenantID string) (map[string]int64, error) {
	name, err := p.naming.DatabaseName(tenantID)
	if err != nil {
		return nil, err
	}

	exists, err := schemaExists(ctx, p.db.Pool(), name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", service.ErrDatabaseMissing, name)
	}

	out := make(map[string]int64)
	err = p.db.WithSnapshotTx(ctx, func(tx pgx.Tx) error {
		tables, err := listTables(ctx, tx, name)
		if err != nil {
			return err
		}
		for _, table := range tables {
			n, err := countRows(ctx, tx, name, table)
			if err != nil {
				return err
			}
			out[table] = n
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func schemaExists(ctx context.Context, q persistence.Querier, name string) (bool, error) {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pg_namespace WHERE nspname = $1)`, name).Scan(&exists); err != nil {
		return false, fmt.Errorf("check schema %s: %w", name, err)
	}
	return exists, nil
}

func listTables(ctx context.Context, q persistence.Querier, schema string) ([]string, error) {
	rows, err := q.Query(ctx, `
        SELECT table_name FROM information_schema.tables
        WHERE table_schema = $1 AND table_type = 'BASE TABLE'
        ORDER BY table_name
    `, schema)
	if err != nil {
		return nil, fmt.Errorf("list tables of %s: %w", schema, err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func countRows(ctx context.Context, q persistence.Querier, schema, table string) (int64, error) {
	var n int64
	if err := q.QueryRow(ctx, "SELECT count(*) FROM "+pgx.Identifier{schema, table}.Sanitize()).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s.%s: %w", schema, table, err)
	}
	return n, nil
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

var _ service.DatabaseProvisioner = (*DBProvisioner)(nil)
