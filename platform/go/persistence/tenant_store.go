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

// TenantsTable is the catalog table of tenants.
const TenantsTable = "tenants"

const tenantColumns = "id, data, created_at, updated_at"

// psql builds Postgres-flavoured ($n) statements.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// TenantRecord represents a tenants row.
type TenantRecord struct {
	ID        string         `db:"id"`
	Data      map[string]any `db:"data"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

// ListTenantsParams filters ListTenants. Zero values list everything ordered by id.
type ListTenantsParams struct {
	IDPrefix *string
	Limit    uint64
	Offset   uint64
}

// TenantStore provides access to the tenants table.
type TenantStore struct {
	db Querier
}

// NewTenantStore wraps db, which may be a pool or an open transaction.
func NewTenantStore(db Querier) *TenantStore {
	if db == nil {
		panic("tenant store requires querier")
	}
	return &TenantStore{db: db}
}

// Create inserts a tenant row. Duplicate ids return ErrConflict.
func (s *TenantStore) Create(ctx context.Context, id string, data map[string]any) (TenantRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return TenantRecord{}, errors.New("tenant id is required")
	}
	if data == nil {
		data = map[string]any{}
	}

	row := s.db.QueryRow(ctx, fmt.Sprintf(`
        INSERT INTO %s (id, data)
        VALUES ($1, $2)
        RETURNING %s
    `, TenantsTable, tenantColumns), id, data)

	rec, err := scanTenantRecord(row)
	if err != nil {
		if isUniqueViolation(err) {
			return TenantRecord{}, ErrConflict
		}
		return TenantRecord{}, err
	}
	return rec, nil
}

// Get fetches a tenant by id.
func (s *TenantStore) Get(ctx context.Context, id string) (TenantRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, tenantColumns, TenantsTable)
	return scanTenantRecord(s.db.QueryRow(ctx, query, id))
}

// List returns tenants ordered by id.
func (s *TenantStore) List(ctx context.Context, params ListTenantsParams) ([]TenantRecord, error) {
	q := psql.Select(tenantColumns).From(TenantsTable).OrderBy("id")
	if params.IDPrefix != nil && *params.IDPrefix != "" {
		q = q.Where(sq.Like{"id": EscapeLike(*params.IDPrefix) + "%"})
	}
	if params.Limit > 0 {
		q = q.Limit(params.Limit)
	}
	if params.Offset > 0 {
		q = q.Offset(params.Offset)
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build tenants query: %w", err)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []TenantRecord
	for rows.Next() {
		rec, err := scanTenantRecord(rows)
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

// Rename changes a tenant id. Foreign keys cascade to domains and central users.
func (s *TenantStore) Rename(ctx context.Context, oldID, newID string) (TenantRecord, error) {
	newID = strings.TrimSpace(newID)
	if newID == "" {
		return TenantRecord{}, errors.New("new tenant id is required")
	}

	row := s.db.QueryRow(ctx, fmt.Sprintf(`
        UPDATE %s SET id = $2, updated_at = now()
        WHERE id = $1
        RETURNING %s
    `, TenantsTable, tenantColumns), oldID, newID)

	rec, err := scanTenantRecord(row)
	if err != nil {
		if isUniqueViolation(err) {
			return TenantRecord{}, ErrConflict
		}
		return TenantRecord{}, err
	}
	return rec, nil
}

// Delete removes a tenant row; domains cascade.
func (s *TenantStore) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, TenantsTable), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTenantRecord(row pgx.Row) (TenantRecord, error) {
	var rec TenantRecord
	if err := row.Scan(&rec.ID, &rec.Data, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TenantRecord{}, ErrNotFound
		}
		return TenantRecord{}, err
	}
	return rec, nil
}

// EscapeLike escapes LIKE wildcards so value matches literally.
func EscapeLike(value string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(value)
}
