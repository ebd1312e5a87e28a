package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-tenancy/domains/users/be/repo"
	platformauth "github.com/zenGate-Global/palmyra-tenancy/platform/go/auth"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/persistence"
)

// Domain sentinel errors.
var (
	ErrNotFound        = errors.New("user not found")
	ErrUnauthenticated = errors.New("unauthenticated")
)

// User represents the domain view of a central user record.
type User struct {
	ID        uuid.UUID
	Name      string
	Email     string
	TenantID  *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Service defines the business operations for the users domain.
type Service interface {
	// Me returns the central user behind the verified credentials, matched by email.
	Me(ctx context.Context, creds *platformauth.UserCredentials) (User, error)
}

type service struct {
	repo repo.Repository
}

// New constructs a users Service instance backed by the provided repository.
func New(r repo.Repository) Service {
	if r == nil {
		panic("users repository is required")
	}
	return &service{repo: r}
}

func (s *service) Me(ctx context.Context, creds *platformauth.UserCredentials) (User, error) {
	if creds == nil {
		return User{}, ErrUnauthenticated
	}
	email := strings.TrimSpace(creds.Email)
	if email == "" {
		return User{}, ErrNotFound
	}

	record, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return mapUser(record), nil
}

func mapUser(record persistence.User) User {
	return User{
		ID:        record.ID,
		Name:      record.Name,
		Email:     record.Email,
		TenantID:  record.TenantID,
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}
}
