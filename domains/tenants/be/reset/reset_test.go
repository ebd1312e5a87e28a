package reset_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/provisioning"
	"github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/repo"
	"github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/reset"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/migrations"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

type stubMigrator struct {
	calls []migrations.FreshOptions
	err   error
}

func (m *stubMigrator) Fresh(_ context.Context, opts migrations.FreshOptions) error {
	m.calls = append(m.calls, opts)
	return m.err
}

func newProvisioner(t *testing.T, ids ...string) *provisioning.MemoryProvisioner {
	t.Helper()
	ctx := context.Background()
	naming := tenant.Config{DatabasePrefix: "tenant_"}
	catalog := repo.NewMemoryRepository()
	p := provisioning.NewMemoryProvisioner(naming, catalog)
	for _, id := range ids {
		_, err := catalog.Create(ctx, id, nil)
		require.NoError(t, err)
		require.NoError(t, p.Create(ctx, id))
	}
	return p
}

func TestRunForceWithDropFailureStillMigrates(t *testing.T) {
	t.Parallel()

	p := newProvisioner(t, "alpha", "beta")
	p.FailOn("drop", "alpha", errors.New("database is being accessed by other users"))
	migrator := &stubMigrator{}
	var out bytes.Buffer

	o := reset.New(p, migrator, nil, &out, zaptest.NewLogger(t))
	opts := reset.Options{Force: true, Fresh: migrations.FreshOptions{DropViews: true}}
	require.NoError(t, o.Run(context.Background(), opts))

	require.Len(t, migrator.calls, 1)
	require.True(t, migrator.calls[0].DropViews)
	require.Equal(t, []string{"tenant_alpha"}, p.Databases())
	require.Equal(t, "Dropping all tenant databases...\n"+
		"Dropped tenant database: tenant_beta\n"+
		"Failed to drop tenant database tenant_alpha: database is being accessed by other users\n"+
		"Running migrate:fresh on central database...\n"+
		"Central database migration completed successfully.\n", out.String())
}

func TestRunListFailureStillMigrates(t *testing.T) {
	t.Parallel()

	p := newProvisioner(t)
	p.FailOn("list", "", errors.New("relation \"tenants\" does not exist"))
	migrator := &stubMigrator{}
	var out bytes.Buffer

	o := reset.New(p, migrator, nil, &out, zaptest.NewLogger(t))
	require.NoError(t, o.Run(context.Background(), reset.Options{Force: true}))
	require.Len(t, migrator.calls, 1)
	require.Contains(t, out.String(), "Failed to retrieve tenants: relation \"tenants\" does not exist\n")
}

func TestRunMigrationFailure(t *testing.T) {
	t.Parallel()

	p := newProvisioner(t, "alpha")
	migrator := &stubMigrator{err: errors.New("syntax error at or near \"CREAT\"")}
	var out bytes.Buffer

	o := reset.New(p, migrator, nil, &out, zaptest.NewLogger(t))
	err := o.Run(context.Background(), reset.Options{Force: true})

	var migErr *reset.MigrationError
	require.ErrorAs(t, err, &migErr)
	require.Contains(t, out.String(), "Central database migration failed.\n")
	require.NotContains(t, out.String(), "completed successfully")
}

func TestRunConfirmation(t *testing.T) {
	t.Parallel()

	t.Run("declined", func(t *testing.T) {
		p := newProvisioner(t, "alpha")
		migrator := &stubMigrator{}
		var asked string
		confirm := func(prompt string) (bool, error) {
			asked = prompt
			return false, nil
		}

		o := reset.New(p, migrator, confirm, nil, zaptest.NewLogger(t))
		err := o.Run(context.Background(), reset.Options{})
		require.ErrorIs(t, err, reset.ErrAborted)
		require.Equal(t, reset.ConfirmPrompt, asked)
		require.Empty(t, migrator.calls)
		require.Equal(t, []string{"tenant_alpha"}, p.Databases())
	})

	t.Run("accepted", func(t *testing.T) {
		p := newProvisioner(t, "alpha")
		migrator := &stubMigrator{}
		confirm := func(string) (bool, error) { return true, nil }

		o := reset.New(p, migrator, confirm, nil, zaptest.NewLogger(t))
		require.NoError(t, o.Run(context.Background(), reset.Options{}))
		require.Empty(t, p.Databases())
		require.Len(t, migrator.calls, 1)
	})

	t.Run("no prompt available", func(t *testing.T) {
		o := reset.New(newProvisioner(t), &stubMigrator{}, nil, nil, zaptest.NewLogger(t))
		require.ErrorIs(t, o.Run(context.Background(), reset.Options{}), reset.ErrAborted)
	})
}

func TestRunSeeders(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	var seeded []string
	o := reset.New(newProvisioner(t), &stubMigrator{}, nil, nil, zaptest.NewLogger(t))
	o.RegisterSeeder(reset.DefaultSeeder, reset.SeederFunc(func(context.Context) error {
		seeded = append(seeded, reset.DefaultSeeder)
		return nil
	}))
	o.RegisterSeeder("demo", reset.SeederFunc(func(context.Context) error {
		return errors.New("duplicate email")
	}))
	require.Equal(t, []string{"database", "demo"}, o.Seeders())

	require.NoError(t, o.Run(ctx, reset.Options{Force: true, Seed: true}))
	require.Equal(t, []string{"database"}, seeded)

	err := o.Run(ctx, reset.Options{Force: true, Seeder: "demo"})
	var migErr *reset.MigrationError
	require.ErrorAs(t, err, &migErr)
	require.ErrorContains(t, err, "duplicate email")

	err = o.Run(ctx, reset.Options{Force: true, Seed: true, Seeder: "missing"})
	require.ErrorContains(t, err, `unknown seeder "missing"`)
}
