package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	tenantsservice "github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/service"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/cache"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

// User-facing messages returned by the subdomain endpoints.
const (
	MessageInvalidFormat   = "Invalid subdomain format. Use only lowercase letters, numbers, and hyphens. Must start and end with a letter or number."
	MessageTaken           = "This subdomain is already taken."
	MessageAvailable       = "This subdomain is available."
	MessageUpdated         = "Subdomain updated successfully."
	MessageCurrentNotFound = "Current domain not found."
)

// Domain sentinel errors.
var (
	ErrInvalidSubdomain = errors.New("invalid subdomain")
	ErrSubdomainTaken   = errors.New("subdomain already taken")
	ErrDomainNotFound   = errors.New("domain not found")
)

// UpdateError reports a failed tenant rename during Update. The domain row has been
// restored to its previous value unless Restored is false.
type UpdateError struct {
	Err      error
	Restored bool
}

func (e *UpdateError) Error() string {
	return e.Err.Error()
}

func (e *UpdateError) Unwrap() error {
	return e.Err
}

// Availability is the outcome of a subdomain check.
type Availability struct {
	Available bool
	Message   string
}

// DomainRepository is the catalog surface the binder needs.
type DomainRepository interface {
	// SubdomainTaken reports whether a domain other than exclude's uses subdomain.
	SubdomainTaken(ctx context.Context, subdomain, exclude string) (bool, error)
	FindBySubdomain(ctx context.Context, subdomain string) (tenantsservice.Domain, error)
	FindByHost(ctx context.Context, host string) (tenantsservice.Domain, error)
	FindByTenant(ctx context.Context, tenantID string) (tenantsservice.Domain, error)
	UpdateDomain(ctx context.Context, id int64, domain string) (tenantsservice.Domain, error)
}

// TenantRenamer renames tenants together with their databases.
type TenantRenamer interface {
	Rename(ctx context.Context, oldID, newID string) (tenantsservice.Tenant, error)
}

// Service binds subdomains to tenants.
type Service interface {
	Check(ctx context.Context, subdomain string) (Availability, error)
	Update(ctx context.Context, currentSubdomain, newSubdomain string) (tenantsservice.Domain, error)
	// Owner returns the tenant bound to subdomain, or ErrDomainNotFound.
	Owner(ctx context.Context, subdomain string) (string, error)
	// Current returns the domain of tenantID, or host when there is none.
	Current(ctx context.Context, tenantID *string, host string) (string, error)
	ResolveHost(ctx context.Context, host string) (tenant.Space, error)
}

// Config tunes lookup caching.
type Config struct {
	Naming   tenant.Config
	CacheTTL time.Duration
}

type binder struct {
	domains DomainRepository
	tenants TenantRenamer
	cache   cache.Cache
	cfg     Config
	logger  *zap.Logger
}

// New constructs a Service. A nil cache falls back to a process-local one.
func New(domains DomainRepository, tenants TenantRenamer, c cache.Cache, cfg Config, logger *zap.Logger) Service {
	if domains == nil {
		panic("domain repository is required")
	}
	if tenants == nil {
		panic("tenant renamer is required")
	}
	if c == nil {
		c = cache.NewMemoryCache()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &binder{domains: domains, tenants: tenants, cache: c, cfg: cfg, logger: logger}
}

func (b *binder) Check(ctx context.Context, subdomain string) (Availability, error) {
	if err := b.cfg.Naming.ValidateSubdomain(subdomain); err != nil {
		return Availability{Available: false, Message: MessageInvalidFormat}, nil
	}

	taken, err := b.domains.SubdomainTaken(ctx, subdomain, "")
	if err != nil {
		return Availability{}, fmt.Errorf("check subdomain: %w", err)
	}
	if taken {
		return Availability{Available: false, Message: MessageTaken}, nil
	}
	return Availability{Available: true, Message: MessageAvailable}, nil
}

// Update moves the domain bound to currentSubdomain to newSubdomain under the same base.
// When the tenant id was derived from the current subdomain the tenant is renamed too;
// if that fails the domain row is put back to its previous value.
func (b *binder) Update(ctx context.Context, currentSubdomain, newSubdomain string) (tenantsservice.Domain, error) {
	if currentSubdomain == "" || len(currentSubdomain) > tenant.MaxSubdomainLength {
		return tenantsservice.Domain{}, fmt.Errorf("%w: current subdomain", ErrInvalidSubdomain)
	}
	if err := b.cfg.Naming.ValidateSubdomain(newSubdomain); err != nil {
		return tenantsservice.Domain{}, fmt.Errorf("%w: new subdomain: %v", ErrInvalidSubdomain, err)
	}

	taken, err := b.domains.SubdomainTaken(ctx, newSubdomain, currentSubdomain)
	if err != nil {
		return tenantsservice.Domain{}, fmt.Errorf("check subdomain: %w", err)
	}
	if taken {
		return tenantsservice.Domain{}, ErrSubdomainTaken
	}

	current, err := b.domains.FindBySubdomain(ctx, currentSubdomain)
	if err != nil {
		if errors.Is(err, tenantsservice.ErrDomainNotFound) {
			return tenantsservice.Domain{}, ErrDomainNotFound
		}
		return tenantsservice.Domain{}, err
	}
	if currentSubdomain == newSubdomain {
		return current, nil
	}

	updated, err := b.domains.UpdateDomain(ctx, current.ID, b.cfg.Naming.ReplaceSubdomain(current.Domain, newSubdomain))
	if err != nil {
		if errors.Is(err, tenantsservice.ErrDomainTaken) {
			return tenantsservice.Domain{}, ErrSubdomainTaken
		}
		return tenantsservice.Domain{}, fmt.Errorf("update domain: %w", err)
	}

	logger := b.logger.With(
		zap.String("tenant_id", current.TenantID),
		zap.String("old_domain", current.Domain),
		zap.String("new_domain", updated.Domain),
	)

	if current.TenantID == b.cfg.Naming.TenantIDFor(currentSubdomain) {
		newID := b.cfg.Naming.TenantIDFor(newSubdomain)
		if _, err := b.tenants.Rename(ctx, current.TenantID, newID); err != nil {
			logger.Error("tenant rename failed; restoring domain", zap.Error(err))
			if _, restoreErr := b.domains.UpdateDomain(context.WithoutCancel(ctx), current.ID, current.Domain); restoreErr != nil {
				logger.Error("restore domain", zap.Error(restoreErr))
				return tenantsservice.Domain{}, &UpdateError{Err: multierr.Append(err, restoreErr)}
			}
			if errors.Is(err, tenantsservice.ErrConflict) {
				return tenantsservice.Domain{}, ErrSubdomainTaken
			}
			return tenantsservice.Domain{}, &UpdateError{Err: err, Restored: true}
		}
		updated.TenantID = newID
	}

	b.invalidate(ctx, current, updated)
	logger.Info("subdomain updated")
	return updated, nil
}

func (b *binder) Owner(ctx context.Context, subdomain string) (string, error) {
	d, err := b.domains.FindBySubdomain(ctx, subdomain)
	if err != nil {
		if errors.Is(err, tenantsservice.ErrDomainNotFound) {
			return "", ErrDomainNotFound
		}
		return "", fmt.Errorf("find domain: %w", err)
	}
	return d.TenantID, nil
}

func (b *binder) Current(ctx context.Context, tenantID *string, host string) (string, error) {
	host = tenant.NormalizeHost(host)
	if tenantID == nil || *tenantID == "" {
		return host, nil
	}

	key := cache.DomainByTenantKey(*tenantID)
	var cached string
	if found, err := cache.GetJSON(ctx, b.cache, key, &cached); err != nil {
		b.logger.Warn("read domain cache", zap.String("key", key), zap.Error(err))
	} else if found {
		return cached, nil
	}

	d, err := b.domains.FindByTenant(ctx, *tenantID)
	if err != nil {
		if errors.Is(err, tenantsservice.ErrDomainNotFound) {
			return host, nil
		}
		return "", fmt.Errorf("find tenant domain: %w", err)
	}

	if err := cache.SetJSON(ctx, b.cache, key, d.Domain, b.cfg.CacheTTL); err != nil {
		b.logger.Warn("write domain cache", zap.String("key", key), zap.Error(err))
	}
	return d.Domain, nil
}

// ResolveHost identifies the tenant serving host. Unknown hosts return tenant.ErrSpaceNotFound.
func (b *binder) ResolveHost(ctx context.Context, host string) (tenant.Space, error) {
	host = tenant.NormalizeHost(host)
	key := cache.SpaceByHostKey(host)

	var space tenant.Space
	if found, err := cache.GetJSON(ctx, b.cache, key, &space); err != nil {
		b.logger.Warn("read space cache", zap.String("key", key), zap.Error(err))
	} else if found {
		return space, nil
	}

	d, err := b.domains.FindByHost(ctx, host)
	if err != nil {
		if errors.Is(err, tenantsservice.ErrDomainNotFound) {
			return tenant.Space{}, tenant.ErrSpaceNotFound
		}
		return tenant.Space{}, fmt.Errorf("resolve host %s: %w", host, err)
	}

	dbName, err := b.cfg.Naming.DatabaseName(d.TenantID)
	if err != nil {
		return tenant.Space{}, err
	}
	space = tenant.Space{TenantID: d.TenantID, Domain: d.Domain, DatabaseName: dbName}

	if err := cache.SetJSON(ctx, b.cache, key, space, b.cfg.CacheTTL); err != nil {
		b.logger.Warn("write space cache", zap.String("key", key), zap.Error(err))
	}
	return space, nil
}

// invalidate drops cached lookups touched by an update.
func (b *binder) invalidate(ctx context.Context, before, after tenantsservice.Domain) {
	keys := []string{
		cache.DomainByTenantKey(before.TenantID),
		cache.DomainByTenantKey(after.TenantID),
		cache.SpaceByHostKey(before.Domain),
		cache.SpaceByHostKey(after.Domain),
	}
	if err := b.cache.Delete(ctx, keys...); err != nil {
		b.logger.Warn("invalidate domain cache", zap.Strings("keys", keys), zap.Error(err))
	}
}
