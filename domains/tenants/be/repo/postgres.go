package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/service"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/persistence"
)

// PostgresRepository implements the tenant catalog (tenants and their domains) on the
// central database.
type PostgresRepository struct {
	db      *persistence.CatalogDB
	tenants *persistence.TenantStore
	domains *persistence.DomainStore
}

// NewPostgresRepository constructs a repository backed by the catalog stores.
func NewPostgresRepository(db *persistence.CatalogDB) *PostgresRepository {
	if db == nil {
		panic("catalog db is required")
	}
	return &PostgresRepository{
		db:      db,
		tenants: persistence.NewTenantStore(db.Pool()),
		domains: persistence.NewDomainStore(db.Pool()),
	}
}

func (r *PostgresRepository) Create(ctx context.Context, id string, data map[string]any) (service.Tenant, error) {
	rec, err := r.tenants.Create(ctx, id, data)
	if err != nil {
		return service.Tenant{}, mapTenantErr(err)
	}
	return toServiceTenant(rec), nil
}

func (r *PostgresRepository) CreateWithDomain(ctx context.Context, id, domain string, data map[string]any) (service.Tenant, service.Domain, error) {
	var (
		t service.Tenant
		d service.Domain
	)
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		rec, err := persistence.NewTenantStore(tx).Create(ctx, id, data)
		if err != nil {
			return mapTenantErr(err)
		}
		dom, err := persistence.NewDomainStore(tx).Create(ctx, domain, rec.ID)
		if err != nil {
			return mapDomainErr(err)
		}
		t, d = toServiceTenant(rec), toServiceDomain(dom)
		return nil
	})
	if err != nil {
		return service.Tenant{}, service.Domain{}, err
	}
	return t, d, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (service.Tenant, error) {
	rec, err := r.tenants.Get(ctx, id)
	if err != nil {
		return service.Tenant{}, mapTenantErr(err)
	}
	return toServiceTenant(rec), nil
}

func (r *PostgresRepository) List(ctx context.Context, opts service.ListOptions) ([]service.Tenant, error) {
	params := persistence.ListTenantsParams{IDPrefix: opts.IDPrefix}
	if opts.Limit > 0 {
		params.Limit = uint64(opts.Limit)
	}
	if opts.Offset > 0 {
		params.Offset = uint64(opts.Offset)
	}

	rows, err := r.tenants.List(ctx, params)
	if err != nil {
		return nil, err
	}

	tenants := make([]service.Tenant, 0, len(rows))
	for _, rec := range rows {
		tenants = append(tenants, toServiceTenant(rec))
	}
	return tenants, nil
}

func (r *PostgresRepository) Rename(ctx context.Context, oldID, newID string) (service.Tenant, error) {
	rec, err := r.tenants.Rename(ctx, oldID, newID)
	if err != nil {
		return service.Tenant{}, mapTenantErr(err)
	}
	return toServiceTenant(rec), nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	return mapTenantErr(r.tenants.Delete(ctx, id))
}

// SubdomainTaken reports whether a domain other than exclude's already uses subdomain.
func (r *PostgresRepository) SubdomainTaken(ctx context.Context, subdomain, exclude string) (bool, error) {
	return r.domains.SubdomainTaken(ctx, subdomain, exclude)
}

func (r *PostgresRepository) FindBySubdomain(ctx context.Context, subdomain string) (service.Domain, error) {
	rec, err := r.domains.FindBySubdomain(ctx, subdomain)
	if err != nil {
		return service.Domain{}, mapDomainErr(err)
	}
	return toServiceDomain(rec), nil
}

func (r *PostgresRepository) FindByHost(ctx context.Context, host string) (service.Domain, error) {
	rec, err := r.domains.FindByHost(ctx, host)
	if err != nil {
		return service.Domain{}, mapDomainErr(err)
	}
	return toServiceDomain(rec), nil
}

func (r *PostgresRepository) FindByTenant(ctx context.Context, tenantID string) (service.Domain, error) {
	rec, err := r.domains.FindByTenant(ctx, tenantID)
	if err != nil {
		return service.Domain{}, mapDomainErr(err)
	}
	return toServiceDomain(rec), nil
}

func (r *PostgresRepository) UpdateDomain(ctx context.Context, id int64, domain string) (service.Domain, error) {
	rec, err := r.domains.UpdateDomain(ctx, id, domain)
	if err != nil {
		return service.Domain{}, mapDomainErr(err)
	}
	return toServiceDomain(rec), nil
}

func toServiceTenant(rec persistence.TenantRecord) service.Tenant {
	return service.Tenant{
		ID:        rec.ID,
		Data:      rec.Data,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}

func toServiceDomain(rec persistence.DomainRecord) service.Domain {
	return service.Domain{
		ID:        rec.ID,
		Domain:    rec.Domain,
		Subdomain: rec.Subdomain,
		TenantID:  rec.TenantID,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}

func mapTenantErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, persistence.ErrNotFound):
		return service.ErrNotFound
	case errors.Is(err, persistence.ErrConflict):
		return service.ErrConflict
	default:
		return err
	}
}

func mapDomainErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, persistence.ErrNotFound):
		return service.ErrDomainNotFound
	case errors.Is(err, persistence.ErrConflict):
		return service.ErrDomainTaken
	default:
		return err
	}
}

var _ service.Repository = (*PostgresRepository)(nil)
