package repo

import (
	"context"
	"sync"

	"github.com/zenGate-Global/palmyra-tenancy/domains/registration/be/service"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

// MemoryUser is a user held by MemoryUsers. An empty TenantID means the tenant was deleted.
type MemoryUser struct {
	service.NewUser
	TenantID string
}

// MemoryUsers keeps users in process; tenant users are grouped by database name.
type MemoryUsers struct {
	mu      sync.Mutex
	central map[string]MemoryUser
	tenants map[string]map[string]service.NewUser
}

// NewMemoryUsers returns an empty store.
func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{
		central: make(map[string]MemoryUser),
		tenants: make(map[string]map[string]service.NewUser),
	}
}

var _ service.Users = (*MemoryUsers)(nil)

func (m *MemoryUsers) EmailTaken(_ context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.central[email]
	return ok, nil
}

func (m *MemoryUsers) CreateTenantUser(_ context.Context, databaseName string, user service.NewUser) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	users := m.tenants[databaseName]
	if users == nil {
		users = make(map[string]service.NewUser)
		m.tenants[databaseName] = users
	}
	users[user.Email] = user
	return nil
}

func (m *MemoryUsers) CreateCentralUser(_ context.Context, tenantID string, user service.NewUser) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.central[user.Email]; ok {
		return service.ErrEmailTaken
	}
	m.central[user.Email] = MemoryUser{NewUser: user, TenantID: tenantID}
	return nil
}

// Central returns the central user with email.
func (m *MemoryUsers) Central(email string) (MemoryUser, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.central[email]
	return u, ok
}

// TenantUsers returns the users stored for databaseName.
func (m *MemoryUsers) TenantUsers(databaseName string) []service.NewUser {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]service.NewUser, 0, len(m.tenants[databaseName]))
	for _, u := range m.tenants[databaseName] {
		out = append(out, u)
	}
	return out
}

// FollowTenants returns a callback for MemoryRepository.OnTenantChange that mirrors the
// catalog foreign keys: central users move with a renamed tenant and are detached from a
// deleted one, tenant users move with the tenant database.
func (m *MemoryUsers) FollowTenants(naming tenant.Config) func(oldID, newID string) {
	return func(oldID, newID string) {
		m.mu.Lock()
		defer m.mu.Unlock()

		for email, u := range m.central {
			if u.TenantID == oldID {
				u.TenantID = newID
				m.central[email] = u
			}
		}

		oldDB, err := naming.DatabaseName(oldID)
		if err != nil {
			return
		}
		users, ok := m.tenants[oldDB]
		if !ok {
			return
		}
		delete(m.tenants, oldDB)
		if newID == "" {
			return
		}
		if newDB, err := naming.DatabaseName(newID); err == nil {
			m.tenants[newDB] = users
		}
	}
}
