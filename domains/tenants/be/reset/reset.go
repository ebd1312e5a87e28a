// Package reset drops every tenant database and rebuilds the central catalog from its
// migrations.
package reset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/service"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/migrations"
)

// ConfirmPrompt is asked before anything is dropped unless Options.Force is set.
const ConfirmPrompt = "This will drop all tables in the central database and delete all tenant databases. Do you really wish to run this command?"

// DefaultSeeder is the seeder run by Options.Seed when none is named.
const DefaultSeeder = "database"

// ErrAborted is returned when the operator declines the confirmation.
var ErrAborted = errors.New("reset aborted")

// MigrationError reports that the central fresh migration (or its seeding) failed.
// Tenant drop failures never produce it.
type MigrationError struct {
	Err error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("central database migration failed: %v", e.Err)
}

func (e *MigrationError) Unwrap() error {
	return e.Err
}

// Dropper drops every tenant database known to the catalog.
type Dropper interface {
	DropAll(ctx context.Context) service.DropReport
}

// Migrator rebuilds the central database.
type Migrator interface {
	Fresh(ctx context.Context, opts migrations.FreshOptions) error
}

// Seeder populates the freshly migrated central database.
type Seeder interface {
	Seed(ctx context.Context) error
}

// SeederFunc adapts a function to Seeder.
type SeederFunc func(ctx context.Context) error

func (f SeederFunc) Seed(ctx context.Context) error {
	return f(ctx)
}

// Confirmer asks the operator a yes/no question.
type Confirmer func(prompt string) (bool, error)

// Options mirror the flags of the fresh-with-tenants command.
type Options struct {
	Fresh  migrations.FreshOptions
	Force  bool
	Seed   bool
	Seeder string
}

// Orchestrator runs the reset sequence: confirm, drop tenant databases, migrate fresh.
type Orchestrator struct {
	dropper  Dropper
	migrator Migrator
	confirm  Confirmer
	seeders  map[string]Seeder
	out      io.Writer
	logger   *zap.Logger
}

// New constructs an Orchestrator writing progress lines to out.
func New(dropper Dropper, migrator Migrator, confirm Confirmer, out io.Writer, logger *zap.Logger) *Orchestrator {
	if dropper == nil {
		panic("reset requires a tenant database dropper")
	}
	if migrator == nil {
		panic("reset requires a migrator")
	}
	if out == nil {
		out = io.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		dropper:  dropper,
		migrator: migrator,
		confirm:  confirm,
		seeders:  make(map[string]Seeder),
		out:      out,
		logger:   logger,
	}
}

// RegisterSeeder makes s selectable by name.
func (o *Orchestrator) RegisterSeeder(name string, s Seeder) {
	o.seeders[name] = s
}

// Seeders lists registered seeder names.
func (o *Orchestrator) Seeders() []string {
	names := make([]string, 0, len(o.seeders))
	for name := range o.seeders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes the reset. Only the central migration decides the outcome: tenant
// database drop failures are reported as warnings and never returned.
func (o *Orchestrator) Run(ctx context.Context, opts Options) error {
	var seeder Seeder
	if opts.Seed || opts.Seeder != "" {
		name := opts.Seeder
		if name == "" {
			name = DefaultSeeder
		}
		s, ok := o.seeders[name]
		if !ok {
			return fmt.Errorf("unknown seeder %q", name)
		}
		seeder = s
	}

	if !opts.Force {
		if o.confirm == nil {
			return fmt.Errorf("%w: confirmation required (use --force)", ErrAborted)
		}
		ok, err := o.confirm(ConfirmPrompt)
		if err != nil {
			return fmt.Errorf("read confirmation: %w", err)
		}
		if !ok {
			return ErrAborted
		}
	}

	o.printf("Dropping all tenant databases...")
	o.dropTenantDatabases(ctx)

	o.printf("Running migrate:fresh on central database...")
	if err := o.migrator.Fresh(ctx, opts.Fresh); err != nil {
		o.logger.Error("central fresh migration", zap.Error(err))
		o.printf("Central database migration failed.")
		return &MigrationError{Err: err}
	}

	if seeder != nil {
		if err := seeder.Seed(ctx); err != nil {
			o.logger.Error("seed central database", zap.Error(err))
			o.printf("Central database migration failed.")
			return &MigrationError{Err: fmt.Errorf("seed: %w", err)}
		}
	}

	o.printf("Central database migration completed successfully.")
	return nil
}

func (o *Orchestrator) dropTenantDatabases(ctx context.Context) {
	report := o.dropper.DropAll(ctx)
	if report.ListErr != nil {
		o.printf("Failed to retrieve tenants: %v", report.ListErr)
	}
	for _, name := range report.Dropped {
		o.printf("Dropped tenant database: %s", name)
	}
	for _, f := range report.Failed {
		o.printf("Failed to drop tenant database %s: %v", f.Database, f.Err)
	}
	if err := report.Err(); err != nil {
		o.logger.Warn("tenant databases not fully dropped", zap.Error(err))
	}
}

func (o *Orchestrator) printf(format string, args ...any) {
	fmt.Fprintf(o.out, format+"\n", args...)
}
