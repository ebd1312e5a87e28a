package persistence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ConnConfig describes the connection to the central catalog. Tenant databases are
// schemas on the same server, so this one pool serves every tenant as well.
type ConnConfig struct {
	DSN string
	// ApplicationName tags sessions in pg_stat_activity. A name already in the DSN wins.
	ApplicationName string
	// LockTimeout bounds how long provisioning DDL waits on table locks. Zero keeps the server default.
	LockTimeout time.Duration

	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// PgxConfig parses the DSN and applies the overrides. Zero values keep the pgx defaults.
func (c ConnConfig) PgxConfig() (*pgxpool.Config, error) {
	if strings.TrimSpace(c.DSN) == "" {
		return nil, errors.New("catalog DSN is required")
	}

	pc, err := pgxpool.ParseConfig(c.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse catalog DSN: %w", err)
	}

	params := pc.ConnConfig.RuntimeParams
	if _, set := params["application_name"]; !set && c.ApplicationName != "" {
		params["application_name"] = c.ApplicationName
	}
	if c.LockTimeout > 0 {
		params["lock_timeout"] = strconv.FormatInt(c.LockTimeout.Milliseconds(), 10)
	}

	if c.MaxConns > 0 {
		pc.MaxConns = c.MaxConns
	}
	if c.MinConns > 0 {
		pc.MinConns = c.MinConns
	}
	if c.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = c.MaxConnLifetime
	}
	if c.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = c.MaxConnIdleTime
	}
	if c.HealthCheckPeriod > 0 {
		pc.HealthCheckPeriod = c.HealthCheckPeriod
	}
	return pc, nil
}

// OpenCatalog connects to the central catalog and pings it before returning.
func OpenCatalog(ctx context.Context, cfg ConnConfig) (*CatalogDB, error) {
	pc, err := cfg.PgxConfig()
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping catalog %s: %w", pc.ConnConfig.Database, err)
	}
	return NewCatalogDB(pool), nil
}

// Ping checks the catalog connection.
func (db *CatalogDB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Close releases the pool. Safe on a nil CatalogDB.
func (db *CatalogDB) Close() {
	if db != nil {
		db.pool.Close()
	}
}
