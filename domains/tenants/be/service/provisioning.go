package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

// Errors returned by database provisioners.
var (
	// ErrDatabaseExists is returned when creating (or renaming into) a tenant database that
	// already exists and is not a resumable copy.
	ErrDatabaseExists = errors.New("tenant database already exists")
	// ErrDatabaseMissing is returned when the source of a rename does not exist.
	ErrDatabaseMissing = errors.New("tenant database does not exist")
)

// DatabaseProvisioner creates, renames and drops the isolated database of a tenant.
// Implementations compute database names from tenant ids.
type DatabaseProvisioner interface {
	Create(ctx context.Context, tenantID string) error
	// Rename copies every table of oldID's database into newID's and drops the source
	// only after all copies are verified. Calling it again after an interruption resumes
	// the copy; calling it once the rename already completed is a no-op.
	Rename(ctx context.Context, oldID, newID string) error
	// Drop removes the tenant database; a missing database is not an error.
	Drop(ctx context.Context, tenantID string) error
}

// CatalogRenamer is implemented by provisioners whose databases live beside the catalog.
// RenameWithCatalog behaves like Rename and also switches the catalog tenant id in the
// transaction that drops the source, so the catalog never names a missing database.
type CatalogRenamer interface {
	RenameWithCatalog(ctx context.Context, oldID, newID string) error
}

// Locker serializes operations on one tenant id across processes.
type Locker interface {
	WithTenantLock(ctx context.Context, tenantID string, fn func(ctx context.Context) error) error
}

// ProvisioningError reports a failed database step. The catalog has already been
// restored to its state before the call when it is returned.
type ProvisioningError struct {
	Op       string
	TenantID string
	Err      error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("%s tenant database %q: %v", e.Op, e.TenantID, e.Err)
}

func (e *ProvisioningError) Unwrap() error {
	return e.Err
}

// DropFailure records one tenant database that could not be dropped.
type DropFailure struct {
	TenantID string
	Database string
	Err      error
}

// DropReport summarizes a best-effort drop of every tenant database.
type DropReport struct {
	Dropped []string
	Failed  []DropFailure
	// ListErr is set when the catalog could not be enumerated; nothing was dropped.
	ListErr error
}

// Err combines every failure in the report, or returns nil.
func (r DropReport) Err() error {
	var err error
	if r.ListErr != nil {
		err = multierr.Append(err, fmt.Errorf("list tenants: %w", r.ListErr))
	}
	for _, f := range r.Failed {
		err = multierr.Append(err, fmt.Errorf("drop %s: %w", f.Database, f.Err))
	}
	return err
}
