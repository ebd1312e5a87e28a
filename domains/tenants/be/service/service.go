package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

// Errors returned by the service layer.
var (
	ErrNotFound       = errors.New("tenant not found")
	ErrConflict       = errors.New("tenant already exists")
	ErrInvalidID      = errors.New("invalid tenant id")
	ErrDomainTaken    = errors.New("domain already taken")
	ErrDomainNotFound = errors.New("domain not found")
)

// Tenant represents a catalog tenant together with its computed database name.
type Tenant struct {
	ID           string
	Data         map[string]any
	DatabaseName string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Domain binds a fully qualified domain to a tenant. Subdomain is its leading label.
type Domain struct {
	ID        int64
	Domain    string
	Subdomain string
	TenantID  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ListOptions captures filters and pagination. A zero Limit lists everything.
type ListOptions struct {
	IDPrefix *string
	Limit    int
	Offset   int
}

// Repository abstracts catalog persistence. Implementations cascade renames and deletes
// to the tenant's domains.
type Repository interface {
	Create(ctx context.Context, id string, data map[string]any) (Tenant, error)
	// CreateWithDomain inserts the tenant and its domain atomically.
	CreateWithDomain(ctx context.Context, id, domain string, data map[string]any) (Tenant, Domain, error)
	Get(ctx context.Context, id string) (Tenant, error)
	List(ctx context.Context, opts ListOptions) ([]Tenant, error)
	Rename(ctx context.Context, oldID, newID string) (Tenant, error)
	Delete(ctx context.Context, id string) error
}

// Service provides tenant lifecycle operations: every mutation keeps the catalog row and
// the tenant database in step.
type Service struct {
	repo   Repository
	db     DatabaseProvisioner
	locker Locker
	naming tenant.Config
	logger *zap.Logger
}

// New constructs a Service with required dependencies.
func New(repo Repository, db DatabaseProvisioner, locker Locker, naming tenant.Config, logger *zap.Logger) *Service {
	if repo == nil {
		panic("tenants repo is required")
	}
	if db == nil {
		panic("tenants database provisioner is required")
	}
	if locker == nil {
		panic("tenants locker is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, db: db, locker: locker, naming: naming, logger: logger}
}

// Naming exposes the naming conventions in use.
func (s *Service) Naming() tenant.Config {
	return s.naming
}

// Create inserts the tenant row and provisions its database. If provisioning fails the
// row is removed again.
func (s *Service) Create(ctx context.Context, id string, data map[string]any) (Tenant, error) {
	id, err := s.validateID(id)
	if err != nil {
		return Tenant{}, err
	}

	created, err := s.repo.Create(ctx, id, data)
	if err != nil {
		return Tenant{}, err
	}

	if err := s.provision(ctx, id); err != nil {
		return Tenant{}, err
	}

	s.logger.Info("tenant created", zap.String("tenant_id", id))
	return s.withDatabaseName(created), nil
}

// CreateWithDomain inserts the tenant and its domain, then provisions the database.
// If provisioning fails both rows are removed again.
func (s *Service) CreateWithDomain(ctx context.Context, id, domain string, data map[string]any) (Tenant, Domain, error) {
	id, err := s.validateID(id)
	if err != nil {
		return Tenant{}, Domain{}, err
	}
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return Tenant{}, Domain{}, fmt.Errorf("domain is required")
	}

	created, bound, err := s.repo.CreateWithDomain(ctx, id, domain, data)
	if err != nil {
		return Tenant{}, Domain{}, err
	}

	if err := s.provision(ctx, id); err != nil {
		return Tenant{}, Domain{}, err
	}

	s.logger.Info("tenant created", zap.String("tenant_id", id), zap.String("domain", bound.Domain))
	return s.withDatabaseName(created), bound, nil
}

func (s *Service) provision(ctx context.Context, id string) error {
	if err := s.db.Create(ctx, id); err != nil {
		if delErr := s.repo.Delete(context.WithoutCancel(ctx), id); delErr != nil && !errors.Is(delErr, ErrNotFound) {
			s.logger.Error("remove tenant row after failed provisioning",
				zap.String("tenant_id", id), zap.Error(delErr))
		}
		return &ProvisioningError{Op: "create", TenantID: id, Err: err}
	}
	return nil
}

// Find returns the tenant with id or ErrNotFound.
func (s *Service) Find(ctx context.Context, id string) (Tenant, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return Tenant{}, err
	}
	return s.withDatabaseName(t), nil
}

// List returns tenants ordered by id.
func (s *Service) List(ctx context.Context, opts ListOptions) ([]Tenant, error) {
	items, err := s.repo.List(ctx, opts)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i] = s.withDatabaseName(items[i])
	}
	return items, nil
}

// Rename moves a tenant to newID. Both ids are locked for the duration. The database is
// copied first; the catalog id (and, through cascading keys, its domains and users) is
// switched only once the copy is complete, in the same transaction that drops the source
// when the provisioner is a CatalogRenamer. Otherwise a failed catalog update renames the
// database back so the call leaves no partial state behind.
func (s *Service) Rename(ctx context.Context, oldID, newID string) (Tenant, error) {
	newID, err := s.validateID(newID)
	if err != nil {
		return Tenant{}, err
	}
	if oldID == newID {
		return s.Find(ctx, oldID)
	}

	var renamed Tenant
	err = s.withTenantLocks(ctx, []string{oldID, newID}, func(ctx context.Context) error {
		if _, err := s.repo.Get(ctx, oldID); err != nil {
			return err
		}
		if _, err := s.repo.Get(ctx, newID); err == nil {
			return ErrConflict
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}

		if cr, ok := s.db.(CatalogRenamer); ok {
			if err := cr.RenameWithCatalog(ctx, oldID, newID); err != nil {
				s.dropPartialCopy(ctx, newID, err)
				if errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) {
					return err
				}
				return &ProvisioningError{Op: "rename", TenantID: oldID, Err: err}
			}
			t, err := s.repo.Get(ctx, newID)
			if err != nil {
				return err
			}
			renamed = t
			return nil
		}

		if err := s.db.Rename(ctx, oldID, newID); err != nil {
			s.dropPartialCopy(ctx, newID, err)
			return &ProvisioningError{Op: "rename", TenantID: oldID, Err: err}
		}

		t, err := s.repo.Rename(ctx, oldID, newID)
		if err != nil {
			if rbErr := s.db.Rename(context.WithoutCancel(ctx), newID, oldID); rbErr != nil {
				s.logger.Error("restore tenant database after failed catalog rename",
					zap.String("tenant_id", oldID), zap.Error(rbErr))
				return &ProvisioningError{Op: "rename", TenantID: oldID, Err: multierr.Append(err, rbErr)}
			}
			return err
		}

		renamed = t
		return nil
	})
	if err != nil {
		return Tenant{}, err
	}

	s.logger.Info("tenant renamed", zap.String("old_tenant_id", oldID), zap.String("new_tenant_id", newID))
	return s.withDatabaseName(renamed), nil
}

// Delete drops the tenant database, then removes the row (domains cascade). When the
// drop fails the row is kept so the tenant can be retried.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.locker.WithTenantLock(ctx, id, func(ctx context.Context) error {
		if _, err := s.repo.Get(ctx, id); err != nil {
			return err
		}
		if err := s.db.Drop(ctx, id); err != nil {
			return &ProvisioningError{Op: "drop", TenantID: id, Err: err}
		}
		if err := s.repo.Delete(ctx, id); err != nil {
			return err
		}
		s.logger.Info("tenant deleted", zap.String("tenant_id", id))
		return nil
	})
}

// dropPartialCopy removes what a failed rename left under newID. The source is still intact.
func (s *Service) dropPartialCopy(ctx context.Context, newID string, cause error) {
	if errors.Is(cause, ErrDatabaseExists) {
		return
	}
	if err := s.db.Drop(context.WithoutCancel(ctx), newID); err != nil {
		s.logger.Warn("drop partial tenant database copy",
			zap.String("tenant_id", newID), zap.Error(err))
	}
}

// withTenantLocks acquires the locks of ids in sorted order so two renames touching the
// same pair of ids cannot deadlock.
func (s *Service) withTenantLocks(ctx context.Context, ids []string, fn func(ctx context.Context) error) error {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	var run func(ctx context.Context, i int) error
	run = func(ctx context.Context, i int) error {
		if i == len(sorted) {
			return fn(ctx)
		}
		return s.locker.WithTenantLock(ctx, sorted[i], func(ctx context.Context) error {
			return run(ctx, i+1)
		})
	}
	return run(ctx, 0)
}

func (s *Service) validateID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("%w: id is required", ErrInvalidID)
	}
	if _, err := s.naming.DatabaseName(id); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidID, err)
	}
	return id, nil
}

func (s *Service) withDatabaseName(t Tenant) Tenant {
	if name, err := s.naming.DatabaseName(t.ID); err == nil {
		t.DatabaseName = name
	}
	return t
}
