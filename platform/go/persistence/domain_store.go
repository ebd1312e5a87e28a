package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
)

// DomainsTable is the catalog table binding hostnames to tenants.
const DomainsTable = "domains"

const domainColumns = "id, domain, subdomain, tenant_id, created_at, updated_at"

// DomainRecord represents a domains row. Subdomain is generated from Domain by the database.
type DomainRecord struct {
	ID        int64     `db:"id"`
	Domain    string    `db:"domain"`
	Subdomain string    `db:"subdomain"`
	TenantID  string    `db:"tenant_id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// ListDomainsParams filters List.
type ListDomainsParams struct {
	TenantID *string
}

// DomainStore provides access to the domains table.
type DomainStore struct {
	db Querier
}

// NewDomainStore wraps db, which may be a pool or an open transaction.
func NewDomainStore(db Querier) *DomainStore {
	if db == nil {
		panic("domain store requires querier")
	}
	return &DomainStore{db: db}
}

// Create binds domain to tenantID. A taken domain or subdomain returns ErrConflict.
func (s *DomainStore) Create(ctx context.Context, domain, tenantID string) (DomainRecord, error) {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return DomainRecord{}, errors.New("domain is required")
	}

	row := s.db.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (domain, tenant_id)
        VALUES ($1, $2)
        RETURNING %s
    `, DomainsTable, domainColumns), domain, tenantID)

	rec, err := scanDomainRecord(row)
	if err != nil {
		if isUniqueViolation(err) {
			return DomainRecord{}, ErrConflict
		}
		return DomainRecord{}, err
	}
	return rec, nil
}

// SubdomainTaken reports whether any domain starts with subdomain + ".".
// Domains starting with exclude + "." are ignored when exclude is non-empty.
func (s *DomainStore) SubdomainTaken(ctx context.Context, subdomain, exclude string) (bool, error) {
	inner := psql.Select("1").From(DomainsTable).
		Where(sq.Like{"domain": EscapeLike(subdomain) + ".%"})
	if exclude != "" {
		inner = inner.Where(sq.NotLike{"domain": EscapeLike(exclude) + ".%"})
	}

	query, args, err := psql.Select().Column(sq.Expr("EXISTS (?)", inner)).ToSql()
	if err != nil {
		return false, fmt.Errorf("build subdomain query: %w", err)
	}

	var taken bool
	if err := s.db.QueryRow(ctx, query, args...).Scan(&taken); err != nil {
		return false, err
	}
	return taken, nil
}

// FindBySubdomain returns the first domain starting with subdomain + ".".
func (s *DomainStore) FindBySubdomain(ctx context.Context, subdomain string) (DomainRecord, error) {
	query, args, err := psql.Select(domainColumns).From(DomainsTable).
		Where(sq.Like{"domain": EscapeLike(subdomain) + ".%"}).
		OrderBy("id").
		Limit(1).
		ToSql()
	if err != nil {
		return DomainRecord{}, fmt.Errorf("build domain query: %w", err)
	}
	return scanDomainRecord(s.db.QueryRow(ctx, query, args...))
}

// FindByHost returns the domain row matching host exactly.
func (s *DomainStore) FindByHost(ctx context.Context, host string) (DomainRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE domain = $1`, domainColumns, DomainsTable)
	return scanDomainRecord(s.db.QueryRow(ctx, query, strings.ToLower(host)))
}

// FindByTenant returns the oldest domain bound to tenantID.
func (s *DomainStore) FindByTenant(ctx context.Context, tenantID string) (DomainRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE tenant_id = $1 ORDER BY id LIMIT 1`, domainColumns, DomainsTable)
	return scanDomainRecord(s.db.QueryRow(ctx, query, tenantID))
}

// Get fetches a domain row by id.
func (s *DomainStore) Get(ctx context.Context, id int64) (DomainRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, domainColumns, DomainsTable)
	return scanDomainRecord(s.db.QueryRow(ctx, query, id))
}

// UpdateDomain rewrites the hostname of a domain row.
func (s *DomainStore) UpdateDomain(ctx context.Context, id int64, domain string) (DomainRecord, error) {
	row := s.db.QueryRow(ctx, fmt.Sprintf(`
        UPDATE %s SET domain = $2, updated_at = now()
        WHERE id = $1
        RETURNING %s
    `, DomainsTable, domainColumns), id, strings.TrimSpace(domain))

	rec, err := scanDomainRecord(row)
	if err != nil {
		if isUniqueViolation(err) {
			return DomainRecord{}, ErrConflict
		}
		return DomainRecord{}, err
	}
	return rec, nil
}

// List returns domains ordered by id.
func (s *DomainStore) List(ctx context.Context, params ListDomainsParams) ([]DomainRecord, error) {
	q := psql.Select(domainColumns).From(DomainsTable).OrderBy("id")
	if params.TenantID != nil {
		q = q.Where(sq.Eq{"tenant_id": *params.TenantID})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build domains query: %w", err)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []DomainRecord
	for rows.Next() {
		rec, err := scanDomainRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func scanDomainRecord(row pgx.Row) (DomainRecord, error) {
	var rec DomainRecord
	if err := row.Scan(&rec.ID, &rec.Domain, &rec.Subdomain, &rec.TenantID, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DomainRecord{}, ErrNotFound
		}
		return DomainRecord{}, err
	}
	return rec, nil
}
