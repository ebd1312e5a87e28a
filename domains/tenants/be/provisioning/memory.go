package provisioning

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/service"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

// TenantLister enumerates catalog tenants for DropAll.
type TenantLister interface {
	List(ctx context.Context, opts service.ListOptions) ([]service.Tenant, error)
}

// MemoryProvisioner keeps tenant databases as table -> row count maps. It is meant for
// tests and dry runs; failures can be injected per operation and tenant.
type MemoryProvisioner struct {
	mu        sync.Mutex
	naming    tenant.Config
	tenants   TenantLister
	databases map[string]map[string]int64
	failures  map[string]error
}

// NewMemoryProvisioner builds a provisioner. tenants may be nil when DropAll is unused.
func NewMemoryProvisioner(naming tenant.Config, tenants TenantLister) *MemoryProvisioner {
	return &MemoryProvisioner{
		naming:    naming,
		tenants:   tenants,
		databases: make(map[string]map[string]int64),
		failures:  make(map[string]error),
	}
}

// FailOn makes op ("create", "rename", "drop" or "list") fail with err for tenantID.
// A rename failure is raised after the first table was copied, leaving a partial target.
func (p *MemoryProvisioner) FailOn(op, tenantID string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[op+":"+tenantID] = err
}

// SetRows seeds table of the tenant database with n rows, creating the table if needed.
func (p *MemoryProvisioner) SetRows(tenantID, table string, n int64) error {
	name, err := p.naming.DatabaseName(tenantID)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	db, ok := p.databases[name]
	if !ok {
		return fmt.Errorf("%w: %s", service.ErrDatabaseMissing, name)
	}
	db[table] = n
	return nil
}

// Databases lists existing database names.
func (p *MemoryProvisioner) Databases() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	names := make([]string, 0, len(p.databases))
	for name := range p.databases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (p *MemoryProvisioner) Create(ctx context.Context, tenantID string) error {
	name, err := p.naming.DatabaseName(tenantID)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failures["create:"+tenantID]; err != nil {
		return err
	}
	if _, exists := p.databases[name]; exists {
		return fmt.Errorf("%w: %s", service.ErrDatabaseExists, name)
	}
	p.databases[name] = map[string]int64{"users": 0}
	return nil
}

func (p *MemoryProvisioner) Exists(ctx context.Context, tenantID string) (bool, error) {
	name, err := p.naming.DatabaseName(tenantID)
	if err != nil {
		return false, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.databases[name]
	return ok, nil
}

func (p *MemoryProvisioner) Rename(ctx context.Context, oldID, newID string) error {
	src, err := p.naming.DatabaseName(oldID)
	if err != nil {
		return err
	}
	dst, err := p.naming.DatabaseName(newID)
	if err != nil {
		return err
	}
	if src == dst {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	source, srcOK := p.databases[src]
	_, dstOK := p.databases[dst]
	switch {
	case !srcOK && dstOK:
		return nil
	case !srcOK:
		return fmt.Errorf("%w: %s", service.ErrDatabaseMissing, src)
	case dstOK:
		return fmt.Errorf("%w: %s", service.ErrDatabaseExists, dst)
	}

	tables := make([]string, 0, len(source))
	for table := range source {
		tables = append(tables, table)
	}
	sort.Strings(tables)

	target := make(map[string]int64, len(source))
	p.databases[dst] = target
	for i, table := range tables {
		if err := p.failures["rename:"+oldID]; err != nil && i == 1 {
			return err
		}
		target[table] = source[table]
	}
	if err := p.failures["rename:"+oldID]; err != nil {
		return err
	}

	delete(p.databases, src)
	return nil
}

func (p *MemoryProvisioner) Drop(ctx context.Context, tenantID string) error {
	name, err := p.naming.DatabaseName(tenantID)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failures["drop:"+tenantID]; err != nil {
		return err
	}
	delete(p.databases, name)
	return nil
}

func (p *MemoryProvisioner) DropAll(ctx context.Context) service.DropReport {
	var report service.DropReport
	if p.tenants == nil {
		report.ListErr = fmt.Errorf("no tenant lister configured")
		return report
	}

	p.mu.Lock()
	listErr := p.failures["list:"]
	p.mu.Unlock()
	if listErr != nil {
		report.ListErr = listErr
		return report
	}

	tenants, err := p.tenants.List(ctx, service.ListOptions{})
	if err != nil {
		report.ListErr = err
		return report
	}
	for _, t := range tenants {
		name, _ := p.naming.DatabaseName(t.ID)
		if err := p.Drop(ctx, t.ID); err != nil {
			report.Failed = append(report.Failed, service.DropFailure{TenantID: t.ID, Database: name, Err: err})
			continue
		}
		report.Dropped = append(report.Dropped, name)
	}
	return report
}

func (p *MemoryProvisioner) Inventory(ctx context.Context, tenantID string) (map[string]int64, error) {
	name, err := p.naming.DatabaseName(tenantID)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	db, ok := p.databases[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", service.ErrDatabaseMissing, name)
	}
	out := make(map[string]int64, len(db))
	for table, n := range db {
		out[table] = n
	}
	return out, nil
}

var _ service.DatabaseProvisioner = (*MemoryProvisioner)(nil)
