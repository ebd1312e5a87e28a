package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	registrationrepo "github.com/zenGate-Global/palmyra-tenancy/domains/registration/be/repo"
	registrationservice "github.com/zenGate-Global/palmyra-tenancy/domains/registration/be/service"
	subdomainsservice "github.com/zenGate-Global/palmyra-tenancy/domains/subdomains/be/service"
	tenantsprov "github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/provisioning"
	tenantsrepo "github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/repo"
	tenantsservice "github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/service"
	usersrepo "github.com/zenGate-Global/palmyra-tenancy/domains/users/be/repo"
	usersservice "github.com/zenGate-Global/palmyra-tenancy/domains/users/be/service"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/cache"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/config"
	platformlogging "github.com/zenGate-Global/palmyra-tenancy/platform/go/logging"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/metrics"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/persistence"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadAPI()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "api-server",
		Level:     cfg.LogLevel,
		Format:    cfg.LogFormat,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	connCfg, err := cfg.Database.ConnConfig(config.DefaultConnection, "palmyra-tenancy-api")
	if err != nil {
		logger.Fatal("resolve database", zap.Error(err))
	}
	catalogDB, err := persistence.OpenCatalog(ctx, connCfg)
	if err != nil {
		logger.Fatal("open catalog", zap.Error(err))
	}
	defer catalogDB.Close()

	var domainCache cache.Cache = cache.NewMemoryCache()
	if cfg.RedisURL != "" {
		redisCache, err := cache.NewRedisCache(cfg.RedisURL)
		if err != nil {
			logger.Fatal("init redis cache", zap.Error(err))
		}
		defer redisCache.Close()
		domainCache = redisCache
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	provMetrics := metrics.NewProvisioningMetrics()
	registry.MustRegister(provMetrics.PrometheusCollectors()...)

	tenantRepo := tenantsrepo.NewPostgresRepository(catalogDB)
	dbProv := tenantsprov.NewDBProvisioner(catalogDB, cfg.Tenancy, logger, provMetrics)
	tenantService := tenantsservice.New(tenantRepo, dbProv, tenantsrepo.NewAdvisoryLocker(catalogDB), cfg.Tenancy, logger)

	subdomainService := subdomainsservice.New(tenantRepo, tenantService, domainCache, subdomainsservice.Config{
		Naming:   cfg.Tenancy,
		CacheTTL: cfg.DomainCacheTTL,
	}, logger)

	registrationService := registrationservice.New(
		tenantService,
		registrationrepo.NewPostgresUsers(catalogDB),
		tenantRepo,
		registrationservice.Config{Naming: cfg.Tenancy},
		logger,
	)

	userService := usersservice.New(usersrepo.NewPostgresRepository(persistence.NewCentralUserStore(catalogDB.Pool())))

	router := newRouter(routerDeps{
		logger:         logger,
		requestTimeout: cfg.RequestTimeout,
		corsOrigins:    cfg.CORSOrigins,
		auth:           buildAuthMiddleware(ctx, cfg, logger),
		tenants:        tenantService,
		subdomains:     subdomainService,
		registration:   registrationService,
		users:          userService,
		gatherer:       registry,
		ready: func(ctx context.Context) error {
			if err := catalogDB.Ping(ctx); err != nil {
				return err
			}
			return domainCache.Ping(ctx)
		},
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting api server", zap.String("port", cfg.Port), zap.String("base_domain", cfg.Tenancy.BaseDomain))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
