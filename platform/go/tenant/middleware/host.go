package middleware

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	platformlogging "github.com/zenGate-Global/palmyra-tenancy/platform/go/logging"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

// Resolver identifies the tenant serving a host. Implemented by the subdomain binder.
type Resolver interface {
	ResolveHost(ctx context.Context, host string) (tenant.Space, error)
}

// Config controls middleware behavior.
type Config struct {
	// Required rejects requests whose host maps to no tenant with 404.
	// When false such requests continue without a Space on the context.
	Required bool
}

// WithTenantSpace resolves the tenant from the request host and attaches tenant.Space to context.
func WithTenantSpace(resolver Resolver, cfg Config) func(http.Handler) http.Handler {
	if resolver == nil {
		panic("tenant middleware: resolver is required")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host := tenant.NormalizeHost(r.Host)

			space, err := resolver.ResolveHost(r.Context(), host)
			switch {
			case err == nil:
				platformlogging.TagTenant(r.Context(), space)
				next.ServeHTTP(w, r.WithContext(tenant.WithSpace(r.Context(), space)))
				return
			case errors.Is(err, tenant.ErrSpaceNotFound):
				if cfg.Required {
					http.Error(w, "tenant not found", http.StatusNotFound)
					return
				}
			default:
				logger := platformlogging.FromRequest(r, zap.NewNop())
				logger.Error("resolve tenant host", zap.String("host", host), zap.Error(err))
				if cfg.Required {
					http.Error(w, "tenant lookup failed", http.StatusInternalServerError)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}
