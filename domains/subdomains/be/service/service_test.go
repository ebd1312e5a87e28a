package service_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zenGate-Global/palmyra-tenancy/domains/subdomains/be/service"
	"github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/provisioning"
	"github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/repo"
	tenantsservice "github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/service"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/cache"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

type fixture struct {
	repo    *repo.MemoryRepository
	db      *provisioning.MemoryProvisioner
	tenants *tenantsservice.Service
	svc     service.Service
}

func newFixture(t *testing.T, naming tenant.Config) fixture {
	t.Helper()
	r := repo.NewMemoryRepository()
	db := provisioning.NewMemoryProvisioner(naming, r)
	tenants := tenantsservice.New(r, db, repo.NewMemoryLocker(), naming, zaptest.NewLogger(t))
	svc := service.New(r, tenants, cache.NewMemoryCache(), service.Config{Naming: naming, CacheTTL: time.Minute}, zaptest.NewLogger(t))
	return fixture{repo: r, db: db, tenants: tenants, svc: svc}
}

func defaultNaming() tenant.Config {
	return tenant.Config{DatabasePrefix: "tenant_", BaseDomain: "localhost"}
}

// register creates a tenant bound to subdomain the way registration does.
func (f fixture) register(t *testing.T, naming tenant.Config, subdomain string) {
	t.Helper()
	_, _, err := f.tenants.CreateWithDomain(context.Background(), naming.TenantIDFor(subdomain), naming.DomainFor(subdomain), nil)
	require.NoError(t, err)
}

// countingRepo counts domain lookups by tenant.
type countingRepo struct {
	*repo.MemoryRepository
	byTenant atomic.Int32
}

func (r *countingRepo) FindByTenant(ctx context.Context, tenantID string) (tenantsservice.Domain, error) {
	r.byTenant.Add(1)
	return r.MemoryRepository.FindByTenant(ctx, tenantID)
}

func TestCheck(t *testing.T) {
	t.Parallel()

	naming := defaultNaming()
	f := newFixture(t, naming)
	f.register(t, naming, "taken")
	ctx := context.Background()

	tests := []struct {
		name      string
		subdomain string
		available bool
		message   string
	}{
		{name: "invalid characters", subdomain: "Foo_Bar", message: service.MessageInvalidFormat},
		{name: "leading hyphen", subdomain: "-acme", message: service.MessageInvalidFormat},
		{name: "empty", subdomain: "", message: service.MessageInvalidFormat},
		{name: "database name too long", subdomain: strings.Repeat("a", 60), message: service.MessageInvalidFormat},
		{name: "free", subdomain: "acme", available: true, message: service.MessageAvailable},
		{name: "taken", subdomain: "taken", message: service.MessageTaken},
		{name: "prefix of taken", subdomain: "take", available: true, message: service.MessageAvailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.Check(ctx, tt.subdomain)
			require.NoError(t, err)
			require.Equal(t, tt.available, got.Available)
			require.Equal(t, tt.message, got.Message)
		})
	}
}

func TestUpdateRenamesDerivedTenant(t *testing.T) {
	t.Parallel()

	naming := defaultNaming()
	naming.IDPrefix = "tenant_"
	f := newFixture(t, naming)
	f.register(t, naming, "acme")
	ctx := context.Background()

	updated, err := f.svc.Update(ctx, "acme", "globex")
	require.NoError(t, err)
	require.Equal(t, "globex.localhost", updated.Domain)
	require.Equal(t, "tenant_globex", updated.TenantID)

	_, err = f.tenants.Find(ctx, "tenant_acme")
	require.ErrorIs(t, err, tenantsservice.ErrNotFound)
	_, err = f.tenants.Find(ctx, "tenant_globex")
	require.NoError(t, err)
	require.Equal(t, []string{"tenant_tenant_globex"}, f.db.Databases())
}

func TestUpdateKeepsCustomTenantID(t *testing.T) {
	t.Parallel()

	naming := defaultNaming()
	f := newFixture(t, naming)
	ctx := context.Background()

	_, _, err := f.tenants.CreateWithDomain(ctx, "customer-42", "acme.example.test", nil)
	require.NoError(t, err)

	updated, err := f.svc.Update(ctx, "acme", "globex")
	require.NoError(t, err)
	require.Equal(t, "globex.example.test", updated.Domain)
	require.Equal(t, "customer-42", updated.TenantID)
	require.Equal(t, []string{"tenant_customer-42"}, f.db.Databases())
}

func TestUpdateValidation(t *testing.T) {
	t.Parallel()

	naming := defaultNaming()
	f := newFixture(t, naming)
	f.register(t, naming, "acme")
	f.register(t, naming, "globex")
	ctx := context.Background()

	_, err := f.svc.Update(ctx, "acme", "Bad_Name")
	require.ErrorIs(t, err, service.ErrInvalidSubdomain)

	_, err = f.svc.Update(ctx, "", "fresh")
	require.ErrorIs(t, err, service.ErrInvalidSubdomain)

	_, err = f.svc.Update(ctx, "acme", "globex")
	require.ErrorIs(t, err, service.ErrSubdomainTaken)

	_, err = f.svc.Update(ctx, "missing", "fresh")
	require.ErrorIs(t, err, service.ErrDomainNotFound)

	same, err := f.svc.Update(ctx, "acme", "acme")
	require.NoError(t, err)
	require.Equal(t, "acme.localhost", same.Domain)

	_, err = f.svc.Update(ctx, "acme", strings.Repeat("a", 60))
	require.ErrorIs(t, err, service.ErrInvalidSubdomain)
	bound, err := f.repo.FindByTenant(ctx, "acme")
	require.NoError(t, err)
	require.Equal(t, "acme.localhost", bound.Domain)
	require.ElementsMatch(t, []string{"tenant_acme", "tenant_globex"}, f.db.Databases())
}

func TestUpdateRestoresDomainWhenRenameFails(t *testing.T) {
	t.Parallel()

	naming := defaultNaming()
	f := newFixture(t, naming)
	f.register(t, naming, "acme")
	require.NoError(t, f.db.SetRows("acme", "orders", 4))
	ctx := context.Background()

	before := f.repo.Domains()
	f.db.FailOn("rename", "acme", errors.New("disk full"))

	_, err := f.svc.Update(ctx, "acme", "globex")
	var updateErr *service.UpdateError
	require.ErrorAs(t, err, &updateErr)
	require.True(t, updateErr.Restored)
	require.Contains(t, err.Error(), "disk full")

	after := f.repo.Domains()
	require.Len(t, after, 1)
	require.Equal(t, before[0].Domain, after[0].Domain)
	require.Equal(t, before[0].TenantID, after[0].TenantID)

	require.Equal(t, []string{"tenant_acme"}, f.db.Databases())
	inv, err := f.db.Inventory(ctx, "acme")
	require.NoError(t, err)
	require.Equal(t, map[string]int64{"users": 0, "orders": 4}, inv)
}

func TestUpdateRoundTripPreservesDatabase(t *testing.T) {
	t.Parallel()

	naming := defaultNaming()
	f := newFixture(t, naming)
	f.register(t, naming, "alpha")
	require.NoError(t, f.db.SetRows("alpha", "users", 2))
	require.NoError(t, f.db.SetRows("alpha", "invoices", 9))
	ctx := context.Background()

	before, err := f.db.Inventory(ctx, "alpha")
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, "alpha", "beta")
	require.NoError(t, err)
	_, err = f.svc.Update(ctx, "beta", "alpha")
	require.NoError(t, err)

	after, err := f.db.Inventory(ctx, "alpha")
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestUpdatesKeepSubdomainsUnique(t *testing.T) {
	t.Parallel()

	naming := defaultNaming()
	f := newFixture(t, naming)
	ctx := context.Background()

	pool := []string{"a", "b", "c", "d", "e", "f"}
	for _, s := range pool[:3] {
		f.register(t, naming, s)
	}

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		from := pool[rng.Intn(len(pool))]
		to := pool[rng.Intn(len(pool))]
		_, err := f.svc.Update(ctx, from, to)
		if err != nil {
			require.True(t,
				errors.Is(err, service.ErrSubdomainTaken) || errors.Is(err, service.ErrDomainNotFound),
				"unexpected error %v", err)
		}

		seen := make(map[string]bool)
		for _, d := range f.repo.Domains() {
			require.False(t, seen[d.Subdomain], fmt.Sprintf("duplicate subdomain %q after step %d", d.Subdomain, i))
			seen[d.Subdomain] = true
		}
	}
	require.Len(t, f.repo.Domains(), 3)
}

func TestOwner(t *testing.T) {
	t.Parallel()

	naming := defaultNaming()
	f := newFixture(t, naming)
	ctx := context.Background()

	_, _, err := f.tenants.CreateWithDomain(ctx, "customer-42", "acme.example.test", nil)
	require.NoError(t, err)

	owner, err := f.svc.Owner(ctx, "acme")
	require.NoError(t, err)
	require.Equal(t, "customer-42", owner)

	_, err = f.svc.Owner(ctx, "ghost")
	require.ErrorIs(t, err, service.ErrDomainNotFound)
}

func TestCurrent(t *testing.T) {
	t.Parallel()

	naming := defaultNaming()
	mem := repo.NewMemoryRepository()
	counting := &countingRepo{MemoryRepository: mem}
	db := provisioning.NewMemoryProvisioner(naming, mem)
	tenants := tenantsservice.New(mem, db, repo.NewMemoryLocker(), naming, zaptest.NewLogger(t))
	svc := service.New(counting, tenants, cache.NewMemoryCache(), service.Config{Naming: naming, CacheTTL: time.Minute}, zaptest.NewLogger(t))
	ctx := context.Background()

	_, _, err := tenants.CreateWithDomain(ctx, "acme", "acme.localhost", nil)
	require.NoError(t, err)

	host, err := svc.Current(ctx, nil, "Portal.Example.com:8080")
	require.NoError(t, err)
	require.Equal(t, "portal.example.com", host)

	orphan := "orphan"
	host, err = svc.Current(ctx, &orphan, "portal.example.com")
	require.NoError(t, err)
	require.Equal(t, "portal.example.com", host)

	id := "acme"
	for i := 0; i < 3; i++ {
		domain, err := svc.Current(ctx, &id, "portal.example.com")
		require.NoError(t, err)
		require.Equal(t, "acme.localhost", domain)
	}
	require.Equal(t, int32(2), counting.byTenant.Load(), "second and third lookups hit the cache")

	_, err = svc.Update(ctx, "acme", "globex")
	require.NoError(t, err)

	newID := "globex"
	domain, err := svc.Current(ctx, &newID, "portal.example.com")
	require.NoError(t, err)
	require.Equal(t, "globex.localhost", domain)
}

func TestResolveHost(t *testing.T) {
	t.Parallel()

	naming := defaultNaming()
	f := newFixture(t, naming)
	f.register(t, naming, "acme")
	ctx := context.Background()

	space, err := f.svc.ResolveHost(ctx, "ACME.localhost:3000")
	require.NoError(t, err)
	require.Equal(t, tenant.Space{TenantID: "acme", Domain: "acme.localhost", DatabaseName: "tenant_acme"}, space)

	_, err = f.svc.ResolveHost(ctx, "nobody.localhost")
	require.ErrorIs(t, err, tenant.ErrSpaceNotFound)

	_, err = f.svc.Update(ctx, "acme", "globex")
	require.NoError(t, err)

	_, err = f.svc.ResolveHost(ctx, "acme.localhost")
	require.ErrorIs(t, err, tenant.ErrSpaceNotFound, "update must invalidate the cached space")
}
