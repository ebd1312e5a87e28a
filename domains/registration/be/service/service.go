package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	tenantsservice "github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/service"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

const (
	maxNameLength     = 255
	maxEmailLength    = 255
	minPasswordLength = 8
)

// ErrEmailTaken is returned by Users when the central users table already holds the email.
var ErrEmailTaken = errors.New("email already registered")

// FieldErrors maps request fields to validation issues.
type FieldErrors map[string][]string

func (f FieldErrors) add(field, msg string) {
	f[field] = append(f[field], msg)
}

// ValidationError is returned when the input payload is invalid.
type ValidationError struct {
	Fields FieldErrors
}

func (v *ValidationError) Error() string {
	return "validation error"
}

func fieldError(field, msg string) *ValidationError {
	return &ValidationError{Fields: FieldErrors{field: {msg}}}
}

// Input is a registration request.
type Input struct {
	Name     string
	Email    string
	Password string
	// PasswordConfirmation must equal Password when set.
	PasswordConfirmation string
	Subdomain            string
}

// Result identifies what a successful registration created.
type Result struct {
	TenantID string
	Domain   string
	UserID   uuid.UUID
}

// NewUser is the user row written to both the tenant database and the central catalog.
type NewUser struct {
	ID           uuid.UUID
	Name         string
	Email        string
	PasswordHash string
}

// Tenants creates and removes tenants together with their databases.
type Tenants interface {
	CreateWithDomain(ctx context.Context, id, domain string, data map[string]any) (tenantsservice.Tenant, tenantsservice.Domain, error)
	Delete(ctx context.Context, id string) error
}

// Users persists registered users.
type Users interface {
	EmailTaken(ctx context.Context, email string) (bool, error)
	// CreateTenantUser writes user into the given tenant database.
	CreateTenantUser(ctx context.Context, databaseName string, user NewUser) error
	// CreateCentralUser writes user into the central catalog, linked to tenantID.
	CreateCentralUser(ctx context.Context, tenantID string, user NewUser) error
}

// SubdomainChecker reports whether a subdomain is free.
type SubdomainChecker interface {
	SubdomainTaken(ctx context.Context, subdomain, exclude string) (bool, error)
}

// Config tunes registration.
type Config struct {
	Naming tenant.Config
	// HashCost is the bcrypt cost; zero uses bcrypt.DefaultCost.
	HashCost int
}

// Service registers new tenants with their owner account.
type Service struct {
	tenants    Tenants
	users      Users
	subdomains SubdomainChecker
	cfg        Config
	logger     *zap.Logger
}

// New constructs a Service with required dependencies.
func New(tenants Tenants, users Users, subdomains SubdomainChecker, cfg Config, logger *zap.Logger) *Service {
	if tenants == nil {
		panic("tenants service is required")
	}
	if users == nil {
		panic("users store is required")
	}
	if subdomains == nil {
		panic("subdomain checker is required")
	}
	if cfg.HashCost == 0 {
		cfg.HashCost = bcrypt.DefaultCost
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{tenants: tenants, users: users, subdomains: subdomains, cfg: cfg, logger: logger}
}

// Register validates input, then creates the tenant with its domain and database, the
// owner inside the tenant database and the owner in the central catalog. A failing step
// undoes the earlier ones.
func (s *Service) Register(ctx context.Context, in Input) (Result, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Subdomain = strings.TrimSpace(in.Subdomain)

	if err := s.validate(ctx, in); err != nil {
		return Result{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cfg.HashCost)
	if err != nil {
		return Result{}, fmt.Errorf("hash password: %w", err)
	}
	user := NewUser{ID: uuid.New(), Name: in.Name, Email: in.Email, PasswordHash: string(hash)}

	tenantID := s.cfg.Naming.TenantIDFor(in.Subdomain)
	domain := s.cfg.Naming.DomainFor(in.Subdomain)

	created, bound, err := s.tenants.CreateWithDomain(ctx, tenantID, domain, nil)
	if err != nil {
		if errors.Is(err, tenantsservice.ErrDomainTaken) || errors.Is(err, tenantsservice.ErrConflict) {
			return Result{}, fieldError("subdomain", "The subdomain has already been taken.")
		}
		return Result{}, fmt.Errorf("create tenant: %w", err)
	}

	logger := s.logger.With(zap.String("tenant_id", created.ID), zap.String("user_id", user.ID.String()))

	if err := s.users.CreateTenantUser(ctx, created.DatabaseName, user); err != nil {
		s.compensate(ctx, logger, created.ID)
		return Result{}, fmt.Errorf("create tenant user: %w", err)
	}

	if err := s.users.CreateCentralUser(ctx, created.ID, user); err != nil {
		s.compensate(ctx, logger, created.ID)
		if errors.Is(err, ErrEmailTaken) {
			return Result{}, fieldError("email", "The email has already been taken.")
		}
		return Result{}, fmt.Errorf("create central user: %w", err)
	}

	logger.Info("tenant registered", zap.String("domain", bound.Domain))
	return Result{TenantID: created.ID, Domain: bound.Domain, UserID: user.ID}, nil
}

// compensate removes the tenant (row, domain and database) created earlier in Register.
func (s *Service) compensate(ctx context.Context, logger *zap.Logger, tenantID string) {
	if err := s.tenants.Delete(context.WithoutCancel(ctx), tenantID); err != nil {
		logger.Error("remove tenant after failed registration", zap.Error(err))
	}
}

func (s *Service) validate(ctx context.Context, in Input) error {
	fields := FieldErrors{}

	switch {
	case in.Name == "":
		fields.add("name", "The name field is required.")
	case len(in.Name) > maxNameLength:
		fields.add("name", fmt.Sprintf("The name field must not be greater than %d characters.", maxNameLength))
	}

	emailValid := false
	switch {
	case in.Email == "":
		fields.add("email", "The email field is required.")
	case len(in.Email) > maxEmailLength:
		fields.add("email", fmt.Sprintf("The email field must not be greater than %d characters.", maxEmailLength))
	case in.Email != strings.ToLower(in.Email):
		fields.add("email", "The email field must be lowercase.")
	default:
		if addr, err := mail.ParseAddress(in.Email); err != nil || addr.Address != in.Email {
			fields.add("email", "The email field must be a valid email address.")
		} else {
			emailValid = true
		}
	}

	switch {
	case in.Password == "":
		fields.add("password", "The password field is required.")
	case len(in.Password) < minPasswordLength:
		fields.add("password", fmt.Sprintf("The password field must be at least %d characters.", minPasswordLength))
	case in.PasswordConfirmation != "" && in.PasswordConfirmation != in.Password:
		fields.add("password", "The password field confirmation does not match.")
	}

	subdomainValid := false
	switch {
	case in.Subdomain == "":
		fields.add("subdomain", "The subdomain field is required.")
	case tenant.ValidateSubdomain(in.Subdomain) != nil:
		fields.add("subdomain", "The subdomain may only contain lowercase letters, numbers, and hyphens, and must start and end with a letter or number.")
	case s.cfg.Naming.ValidateSubdomain(in.Subdomain) != nil:
		fields.add("subdomain", fmt.Sprintf("The subdomain field must not be greater than %d characters.", s.cfg.Naming.SubdomainLimit()))
	default:
		subdomainValid = true
	}

	if emailValid {
		taken, err := s.users.EmailTaken(ctx, in.Email)
		if err != nil {
			return fmt.Errorf("check email: %w", err)
		}
		if taken {
			fields.add("email", "The email has already been taken.")
		}
	}
	if subdomainValid {
		taken, err := s.subdomains.SubdomainTaken(ctx, in.Subdomain, "")
		if err != nil {
			return fmt.Errorf("check subdomain: %w", err)
		}
		if taken {
			fields.add("subdomain", "The subdomain has already been taken.")
		}
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
