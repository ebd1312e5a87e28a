package repo

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/service"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

// MemoryRepository is an in-memory catalog suitable for tests and early development.
// Renames and deletes cascade to domains like the database foreign keys do; other
// in-memory tables referencing tenants follow through OnTenantChange.
type MemoryRepository struct {
	mu      sync.RWMutex
	tenants map[string]service.Tenant
	domains map[int64]service.Domain
	nextID  int64
	now     func() time.Time
	follow  []func(oldID, newID string)
}

// NewMemoryRepository constructs a MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		tenants: make(map[string]service.Tenant),
		domains: make(map[int64]service.Domain),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// OnTenantChange registers fn to run after every rename and delete. A deleted tenant
// is reported with an empty newID.
func (r *MemoryRepository) OnTenantChange(fn func(oldID, newID string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.follow = append(r.follow, fn)
}

func (r *MemoryRepository) notify(oldID, newID string) {
	r.mu.RLock()
	follow := append(([]func(string, string))(nil), r.follow...)
	r.mu.RUnlock()
	for _, fn := range follow {
		fn(oldID, newID)
	}
}

func (r *MemoryRepository) Create(ctx context.Context, id string, data map[string]any) (service.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.createLocked(id, data)
}

func (r *MemoryRepository) createLocked(id string, data map[string]any) (service.Tenant, error) {
	if _, exists := r.tenants[id]; exists {
		return service.Tenant{}, service.ErrConflict
	}
	if data == nil {
		data = map[string]any{}
	}
	now := r.now()
	t := service.Tenant{ID: id, Data: data, CreatedAt: now, UpdatedAt: now}
	r.tenants[id] = t
	return t, nil
}

func (r *MemoryRepository) CreateWithDomain(ctx context.Context, id, domain string, data map[string]any) (service.Tenant, service.Domain, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tenants[id]; exists {
		return service.Tenant{}, service.Domain{}, service.ErrConflict
	}
	if r.domainClashLocked(domain, 0) {
		return service.Tenant{}, service.Domain{}, service.ErrDomainTaken
	}

	t, err := r.createLocked(id, data)
	if err != nil {
		return service.Tenant{}, service.Domain{}, err
	}

	r.nextID++
	d := service.Domain{
		ID:        r.nextID,
		Domain:    domain,
		Subdomain: tenant.SubdomainOf(domain),
		TenantID:  id,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.CreatedAt,
	}
	r.domains[d.ID] = d
	return t, d, nil
}

// AddDomain binds an extra domain to an existing tenant.
func (r *MemoryRepository) AddDomain(ctx context.Context, domain, tenantID string) (service.Domain, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tenants[tenantID]; !ok {
		return service.Domain{}, service.ErrNotFound
	}
	if r.domainClashLocked(domain, 0) {
		return service.Domain{}, service.ErrDomainTaken
	}

	r.nextID++
	now := r.now()
	d := service.Domain{ID: r.nextID, Domain: domain, Subdomain: tenant.SubdomainOf(domain), TenantID: tenantID, CreatedAt: now, UpdatedAt: now}
	r.domains[d.ID] = d
	return d, nil
}

func (r *MemoryRepository) Get(ctx context.Context, id string) (service.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tenants[id]
	if !ok {
		return service.Tenant{}, service.ErrNotFound
	}
	return t, nil
}

func (r *MemoryRepository) List(ctx context.Context, opts service.ListOptions) ([]service.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]service.Tenant, 0, len(r.tenants))
	for _, t := range r.tenants {
		if opts.IDPrefix != nil && !strings.HasPrefix(t.ID, *opts.IDPrefix) {
			continue
		}
		items = append(items, t)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })

	start := opts.Offset
	if start > len(items) {
		start = len(items)
	}
	end := len(items)
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}
	return items[start:end], nil
}

func (r *MemoryRepository) Rename(ctx context.Context, oldID, newID string) (service.Tenant, error) {
	t, err := r.renameTenant(oldID, newID)
	if err != nil {
		return service.Tenant{}, err
	}
	r.notify(oldID, newID)
	return t, nil
}

func (r *MemoryRepository) renameTenant(oldID, newID string) (service.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tenants[oldID]
	if !ok {
		return service.Tenant{}, service.ErrNotFound
	}
	if _, exists := r.tenants[newID]; exists {
		return service.Tenant{}, service.ErrConflict
	}

	delete(r.tenants, oldID)
	t.ID = newID
	t.UpdatedAt = r.now()
	r.tenants[newID] = t

	for id, d := range r.domains {
		if d.TenantID == oldID {
			d.TenantID = newID
			r.domains[id] = d
		}
	}
	return t, nil
}

func (r *MemoryRepository) Delete(ctx context.Context, id string) error {
	if err := r.deleteTenant(id); err != nil {
		return err
	}
	r.notify(id, "")
	return nil
}

func (r *MemoryRepository) deleteTenant(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tenants[id]; !ok {
		return service.ErrNotFound
	}
	delete(r.tenants, id)
	for domainID, d := range r.domains {
		if d.TenantID == id {
			delete(r.domains, domainID)
		}
	}
	return nil
}

func (r *MemoryRepository) SubdomainTaken(ctx context.Context, subdomain, exclude string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, d := range r.domains {
		if d.Subdomain != subdomain {
			continue
		}
		if exclude != "" && d.Subdomain == exclude {
			continue
		}
		return true, nil
	}
	return false, nil
}

func (r *MemoryRepository) FindBySubdomain(ctx context.Context, subdomain string) (service.Domain, error) {
	return r.findFirst(func(d service.Domain) bool { return d.Subdomain == subdomain })
}

func (r *MemoryRepository) FindByHost(ctx context.Context, host string) (service.Domain, error) {
	host = strings.ToLower(host)
	return r.findFirst(func(d service.Domain) bool { return d.Domain == host })
}

func (r *MemoryRepository) FindByTenant(ctx context.Context, tenantID string) (service.Domain, error) {
	return r.findFirst(func(d service.Domain) bool { return d.TenantID == tenantID })
}

func (r *MemoryRepository) UpdateDomain(ctx context.Context, id int64, domain string) (service.Domain, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.domains[id]
	if !ok {
		return service.Domain{}, service.ErrDomainNotFound
	}
	if r.domainClashLocked(domain, id) {
		return service.Domain{}, service.ErrDomainTaken
	}

	d.Domain = domain
	d.Subdomain = tenant.SubdomainOf(domain)
	d.UpdatedAt = r.now()
	r.domains[id] = d
	return d, nil
}

// Domains returns every domain ordered by id.
func (r *MemoryRepository) Domains() []service.Domain {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]service.Domain, 0, len(r.domains))
	for _, d := range r.domains {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *MemoryRepository) findFirst(match func(service.Domain) bool) (service.Domain, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		found service.Domain
		ok    bool
	)
	for _, d := range r.domains {
		if match(d) && (!ok || d.ID < found.ID) {
			found, ok = d, true
		}
	}
	if !ok {
		return service.Domain{}, service.ErrDomainNotFound
	}
	return found, nil
}

// domainClashLocked mirrors the unique constraints on domain and its generated subdomain.
func (r *MemoryRepository) domainClashLocked(domain string, self int64) bool {
	sub := tenant.SubdomainOf(domain)
	for id, d := range r.domains {
		if id == self {
			continue
		}
		if d.Domain == domain || d.Subdomain == sub {
			return true
		}
	}
	return false
}

// Ensure interface compliance.
var _ service.Repository = (*MemoryRepository)(nil)
