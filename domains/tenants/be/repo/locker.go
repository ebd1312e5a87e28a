package repo

import (
	"context"
	"sync"

	"github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/service"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/persistence"
)

// LockKeyPrefix namespaces tenant advisory locks.
const LockKeyPrefix = "tenancy:tenant:"

// AdvisoryLocker serializes tenant operations with PostgreSQL advisory locks, so the
// guarantee holds across API replicas and CLI invocations.
type AdvisoryLocker struct {
	db *persistence.CatalogDB
}

func NewAdvisoryLocker(db *persistence.CatalogDB) *AdvisoryLocker {
	if db == nil {
		panic("catalog db is required")
	}
	return &AdvisoryLocker{db: db}
}

func (l *AdvisoryLocker) WithTenantLock(ctx context.Context, tenantID string, fn func(ctx context.Context) error) error {
	return l.db.WithAdvisoryLock(ctx, LockKeyPrefix+tenantID, fn)
}

// MemoryLocker is an in-process Locker for tests and single-process tooling.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *MemoryLocker) WithTenantLock(ctx context.Context, tenantID string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	m, ok := l.locks[tenantID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[tenantID] = m
	}
	l.mu.Unlock()

	m.Lock()
	defer m.Unlock()
	return fn(ctx)
}

var (
	_ service.Locker = (*AdvisoryLocker)(nil)
	_ service.Locker = (*MemoryLocker)(nil)
)
