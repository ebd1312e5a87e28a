// Package wiring assembles the services shared by CLI commands.
package wiring

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	registrationrepo "github.com/zenGate-Global/palmyra-tenancy/domains/registration/be/repo"
	registrationservice "github.com/zenGate-Global/palmyra-tenancy/domains/registration/be/service"
	tenantsprov "github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/provisioning"
	tenantsrepo "github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/repo"
	tenantsservice "github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/service"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/config"
	platformlogging "github.com/zenGate-Global/palmyra-tenancy/platform/go/logging"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/migrations"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/persistence"
)

// Env holds a database connection and the services built on it.
type Env struct {
	Config       config.CLI
	Logger       *zap.Logger
	Catalog      *persistence.CatalogDB
	Tenants      *tenantsservice.Service
	Provisioner  *tenantsprov.DBProvisioner
	Migrations   *migrations.Runner
	Registration *registrationservice.Service
}

// Open loads the CLI configuration and connects to the named database connection
// ("" or "default" selects DATABASE_URL).
func Open(ctx context.Context, database string) (*Env, error) {
	cfg, err := config.LoadCLI()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "cli",
		Level:     cfg.LogLevel,
		Format:    cfg.LogFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	connCfg, err := cfg.Database.ConnConfig(database, "palmyra-tenancy-cli")
	if err != nil {
		return nil, err
	}
	catalogDB, err := persistence.OpenCatalog(ctx, connCfg)
	if err != nil {
		return nil, err
	}

	tenantRepo := tenantsrepo.NewPostgresRepository(catalogDB)
	dbProv := tenantsprov.NewDBProvisioner(catalogDB, cfg.Tenancy, logger, nil)
	tenants := tenantsservice.New(tenantRepo, dbProv, tenantsrepo.NewAdvisoryLocker(catalogDB), cfg.Tenancy, logger)

	registration := registrationservice.New(
		tenants,
		registrationrepo.NewPostgresUsers(catalogDB),
		tenantRepo,
		registrationservice.Config{Naming: cfg.Tenancy},
		logger,
	)

	return &Env{
		Config:       cfg,
		Logger:       logger,
		Catalog:      catalogDB,
		Tenants:      tenants,
		Provisioner:  dbProv,
		Migrations:   migrations.NewRunner(catalogDB.Pool(), logger),
		Registration: registration,
	}, nil
}

// Close releases the catalog connection and flushes the logger.
func (e *Env) Close() {
	e.Catalog.Close()
	_ = e.Logger.Sync()
}
