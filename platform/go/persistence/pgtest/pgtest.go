// Package pgtest provisions throwaway PostgreSQL databases for integration tests.
package pgtest

import (
	"context"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	sqlassets "github.com/zenGate-Global/palmyra-tenancy/database"
)

var (
	serverOnce sync.Once
	serverURL  string
	serverErr  error
)

// ServerURL reads TEST_DATABASE_URL or starts a shared postgres container for the test binary.
func ServerURL(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	serverOnce.Do(func() {
		if dsn, ok := os.LookupEnv("TEST_DATABASE_URL"); ok && strings.TrimSpace(dsn) != "" {
			serverURL = dsn
			return
		}

		ctx := context.Background()
		container, err := postgres.Run(ctx, "postgres:16-alpine",
			postgres.WithDatabase("tenancy"),
			postgres.WithUsername("postgres"),
			postgres.WithPassword("postgres"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second),
			),
		)
		if err != nil {
			serverErr = fmt.Errorf("start postgres container: %w", err)
			return
		}
		serverURL, serverErr = container.ConnectionString(ctx, "sslmode=disable")
	})

	if serverErr != nil {
		t.Skipf("postgres unavailable: %v", serverErr)
	}
	return serverURL
}

// NewDatabase creates an isolated database on the test server and returns its URL.
// The database is dropped when the test finishes.
func NewDatabase(t *testing.T) string {
	t.Helper()

	ctx := context.Background()
	admin, err := pgx.Connect(ctx, ServerURL(t))
	if err != nil {
		t.Fatalf("connect test server: %v", err)
	}
	defer admin.Close(ctx)

	name := "tenancy_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	if _, err := admin.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{name}.Sanitize()); err != nil {
		t.Fatalf("create test database: %v", err)
	}

	t.Cleanup(func() {
		conn, err := pgx.Connect(context.Background(), ServerURL(t))
		if err != nil {
			return
		}
		defer conn.Close(context.Background())
		_, _ = conn.Exec(context.Background(), "DROP DATABASE IF EXISTS "+pgx.Identifier{name}.Sanitize()+" WITH (FORCE)")
	})

	dbURL, err := url.Parse(ServerURL(t))
	if err != nil {
		t.Fatalf("parse test server url: %v", err)
	}
	dbURL.Path = "/" + name
	return dbURL.String()
}

// NewPool creates an isolated database with the central migrations applied.
func NewPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, NewDatabase(t))
	if err != nil {
		t.Fatalf("create test pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := ApplyCentralMigrations(ctx, pool); err != nil {
		t.Fatalf("apply central migrations: %v", err)
	}
	return pool
}

// ApplyCentralMigrations executes every embedded *.up.sql file in version order.
func ApplyCentralMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	fsys := sqlassets.CentralMigrations()
	entries, err := fs.ReadDir(fsys, sqlassets.CentralMigrationsDir)
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	var files []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, name := range files {
		contents, err := fs.ReadFile(fsys, path.Join(sqlassets.CentralMigrationsDir, name))
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if _, err := pool.Exec(ctx, string(contents)); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
	}
	return nil
}
