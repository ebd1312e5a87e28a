// Package migrate holds the central database migration commands.
package migrate

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-tenancy/apps/cli/wiring"
	registrationservice "github.com/zenGate-Global/palmyra-tenancy/domains/registration/be/service"
	"github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/reset"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/migrations"
)

// demoTenant is registered by the "database" seeder.
var demoTenant = registrationservice.Input{
	Name:      "Test User",
	Email:     "test@example.com",
	Password:  "password",
	Subdomain: "demo",
}

// Upper applies pending migrations.
type Upper interface {
	Up(ctx context.Context, opts migrations.SourceOptions, step bool) error
}

// Backend is what the migrate commands use from an opened database.
type Backend struct {
	Dropper  reset.Dropper
	Migrator reset.Migrator
	Upper    Upper
	Seeders  map[string]reset.Seeder
	BasePath string
	Logger   *zap.Logger
	Close    func()
}

// Opener connects to the named database connection.
type Opener func(ctx context.Context, database string) (*Backend, error)

// Command returns the migrate command bound to the configured databases.
func Command() *cobra.Command {
	return NewCommand(openBackend)
}

// NewCommand builds the migrate command tree on open.
func NewCommand(open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Central database migrations",
	}

	cmd.AddCommand(freshWithTenantsCommand(open))
	cmd.AddCommand(upCommand(open))
	return cmd
}

func openBackend(ctx context.Context, database string) (*Backend, error) {
	env, err := wiring.Open(ctx, database)
	if err != nil {
		return nil, err
	}
	return &Backend{
		Dropper:  env.Provisioner,
		Migrator: env.Migrations,
		Upper:    env.Migrations,
		Seeders: map[string]reset.Seeder{
			reset.DefaultSeeder: registrationservice.NewSeeder(env.Registration, demoTenant),
		},
		BasePath: env.Config.Migrations.BasePath,
		Logger:   env.Logger,
		Close:    env.Close,
	}, nil
}

func freshWithTenantsCommand(open Opener) *cobra.Command {
	var (
		database   string
		opts       reset.Options
		paths      []string
		realPath   bool
		schemaPath string
	)

	c := &cobra.Command{
		Use:   "fresh-with-tenants",
		Short: "Drop all tenant databases, then drop and re-migrate the central database",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			backend, err := open(ctx, database)
			if err != nil {
				return err
			}
			defer backend.Close()

			orchestrator := reset.New(backend.Dropper, backend.Migrator, promptConfirmer(cmd.InOrStdin(), out), out, backend.Logger)
			for name, s := range backend.Seeders {
				orchestrator.RegisterSeeder(name, s)
			}

			opts.Fresh.SourceOptions = migrations.SourceOptions{
				Paths:    paths,
				RealPath: realPath,
				BasePath: backend.BasePath,
			}
			opts.Fresh.SchemaPath = schemaPath

			err = orchestrator.Run(ctx, opts)
			if errors.Is(err, reset.ErrAborted) {
				fmt.Fprintln(out, "Command cancelled.")
			}
			return err
		},
	}

	c.Flags().StringVar(&database, "database", "", "Named database connection (see DB_CONNECTIONS)")
	c.Flags().BoolVar(&opts.Fresh.DropViews, "drop-views", false, "Drop all views as well")
	c.Flags().BoolVar(&opts.Fresh.DropTypes, "drop-types", false, "Drop all custom types as well")
	c.Flags().BoolVar(&opts.Force, "force", false, "Skip the confirmation prompt")
	c.Flags().StringArrayVar(&paths, "path", nil, "Migration directory (repeatable); defaults to the embedded migrations")
	c.Flags().BoolVar(&realPath, "realpath", false, "Use --path values as given instead of relative to MIGRATIONS_BASE_PATH")
	c.Flags().StringVar(&schemaPath, "schema-path", "", "SQL schema dump loaded before migrating")
	c.Flags().BoolVar(&opts.Seed, "seed", false, "Run the default seeder after migrating")
	c.Flags().StringVar(&opts.Seeder, "seeder", "", "Seeder to run after migrating")
	c.Flags().BoolVar(&opts.Fresh.Step, "step", false, "Apply migrations one at a time (also accepts a value, e.g. --step=1)")

	return c
}

func upCommand(open Opener) *cobra.Command {
	var (
		database string
		paths    []string
		realPath bool
		step     bool
	)

	c := &cobra.Command{
		Use:   "up",
		Short: "Apply pending central database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			backend, err := open(ctx, database)
			if err != nil {
				return err
			}
			defer backend.Close()

			err = backend.Upper.Up(ctx, migrations.SourceOptions{
				Paths:    paths,
				RealPath: realPath,
				BasePath: backend.BasePath,
			}, step)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied.")
			return nil
		},
	}

	c.Flags().StringVar(&database, "database", "", "Named database connection (see DB_CONNECTIONS)")
	c.Flags().StringArrayVar(&paths, "path", nil, "Migration directory (repeatable); defaults to the embedded migrations")
	c.Flags().BoolVar(&realPath, "realpath", false, "Use --path values as given instead of relative to MIGRATIONS_BASE_PATH")
	c.Flags().BoolVar(&step, "step", false, "Apply migrations one at a time (also accepts a value, e.g. --step=1)")

	return c
}

// promptConfirmer asks on out and reads a yes/no answer from in. Anything but
// "y" or "yes" declines.
func promptConfirmer(in io.Reader, out io.Writer) reset.Confirmer {
	reader := bufio.NewReader(in)
	return func(prompt string) (bool, error) {
		fmt.Fprintf(out, "%s (yes/no) [no]:\n> ", prompt)
		answer, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return false, err
		}
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes":
			return true, nil
		default:
			return false, nil
		}
	}
}
