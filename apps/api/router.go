package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	oapimiddleware "github.com/oapi-codegen/nethttp-middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-tenancy/contracts"
	registrationhandler "github.com/zenGate-Global/palmyra-tenancy/domains/registration/be/handler"
	subdomainshandler "github.com/zenGate-Global/palmyra-tenancy/domains/subdomains/be/handler"
	subdomainsservice "github.com/zenGate-Global/palmyra-tenancy/domains/subdomains/be/service"
	tenantshandler "github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/handler"
	usershandler "github.com/zenGate-Global/palmyra-tenancy/domains/users/be/handler"
	usersservice "github.com/zenGate-Global/palmyra-tenancy/domains/users/be/service"
	platformauth "github.com/zenGate-Global/palmyra-tenancy/platform/go/auth"
	platformlogging "github.com/zenGate-Global/palmyra-tenancy/platform/go/logging"
	platformmiddleware "github.com/zenGate-Global/palmyra-tenancy/platform/go/middleware"
	tenantmiddleware "github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant/middleware"
)

type routerDeps struct {
	logger         *zap.Logger
	requestTimeout time.Duration
	corsOrigins    []string
	auth           func(http.Handler) http.Handler
	tenants        tenantshandler.Service
	subdomains     subdomainsservice.Service
	registration   registrationhandler.Registrar
	users          usersservice.Service
	gatherer       prometheus.Gatherer
	ready          func(ctx context.Context) error
}

func newRouter(deps routerDeps) http.Handler {
	rootRouter := chi.NewRouter()

	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Timeout(deps.requestTimeout),
		platformmiddleware.CORS(deps.corsOrigins),
	)
	rootRouter.Use(platformlogging.RequestLogger(deps.logger))

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if deps.ready != nil {
			if err := deps.ready(r.Context()); err != nil {
				platformlogging.FromRequest(r, deps.logger).Warn("not ready", zap.Error(err))
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	if deps.gatherer != nil {
		rootRouter.Handle("/metrics", promhttp.HandlerFor(deps.gatherer, promhttp.HandlerOpts{}))
	}

	// ---- Swagger UI + OpenAPI JSON (public) ----
	registerDocsRoutes(rootRouter, deps.logger)

	rootRouter.Route("/api", func(api chi.Router) {
		api.Use(deps.auth)
		api.Use(platformmiddleware.ActorLogger)
		api.Use(tenantmiddleware.WithTenantSpace(deps.subdomains, tenantmiddleware.Config{}))

		api.Group(func(r chi.Router) {
			r.Use(mustNewSpecValidator(deps.logger, "subdomains"))
			subdomainshandler.New(deps.subdomains, deps.users, deps.logger).Routes(r)
		})
		api.Group(func(r chi.Router) {
			r.Use(mustNewSpecValidator(deps.logger, "registration"))
			registrationhandler.New(deps.registration, deps.logger).Routes(r)
		})
		api.Group(func(r chi.Router) {
			r.Use(mustNewSpecValidator(deps.logger, "tenants"))
			tenantshandler.New(deps.tenants, deps.logger).Routes(r)
		})
		api.Group(func(r chi.Router) {
			r.Use(mustNewSpecValidator(deps.logger, "users"))
			usershandler.New(deps.users, deps.logger).Routes(r)
		})
	})

	return rootRouter
}

// mustNewSpecValidator builds request validation middleware from an embedded contract.
// Bodies are decoded by the handlers, which answer malformed input in each endpoint's
// own response shape; the validator covers routes, parameters and security.
func mustNewSpecValidator(logger *zap.Logger, name string) func(http.Handler) http.Handler {
	spec := mustLoadSpec(logger, name)
	return oapimiddleware.OapiRequestValidatorWithOptions(spec, &oapimiddleware.Options{
		Options: openapi3filter.Options{
			ExcludeRequestBody: true,
			AuthenticationFunc: platformmiddleware.ValidateAuthenticationViaSwagger,
		},
		ErrorHandler: writeValidationError,
	})
}

// mustLoadSpec loads and returns the OpenAPI document for docs serving.
func mustLoadSpec(logger *zap.Logger, name string) *openapi3.T {
	spec, err := contracts.Load(name)
	if err != nil {
		logger.Fatal("load openapi spec", zap.String("name", name), zap.Error(err))
	}
	logSecuritySchemes(logger, name, spec)
	return spec
}

func logSecuritySchemes(logger *zap.Logger, name string, spec *openapi3.T) {
	if spec.Components == nil || len(spec.Components.SecuritySchemes) == 0 {
		return
	}
	schemes := make([]string, 0, len(spec.Components.SecuritySchemes))
	for scheme := range spec.Components.SecuritySchemes {
		schemes = append(schemes, scheme)
	}
	logger.Debug("openapi security schemes", zap.String("name", name), zap.Strings("schemes", schemes))
}

type validationErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func writeValidationError(w http.ResponseWriter, message string, statusCode int) {
	if statusCode == http.StatusUnauthorized {
		message = platformauth.MessageUnauthenticated
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(validationErrorResponse{Message: message})
}
