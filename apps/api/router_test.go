package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	registrationrepo "github.com/zenGate-Global/palmyra-tenancy/domains/registration/be/repo"
	registrationservice "github.com/zenGate-Global/palmyra-tenancy/domains/registration/be/service"
	subdomainsservice "github.com/zenGate-Global/palmyra-tenancy/domains/subdomains/be/service"
	tenantsprov "github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/provisioning"
	tenantsrepo "github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/repo"
	tenantsservice "github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/service"
	usersservice "github.com/zenGate-Global/palmyra-tenancy/domains/users/be/service"
	platformauth "github.com/zenGate-Global/palmyra-tenancy/platform/go/auth"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/auth/devtoken"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/metrics"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

var naming = tenant.Config{DatabasePrefix: "tenant_", BaseDomain: "localhost"}

// centralUsers reads registered users back from the in-memory registration store.
type centralUsers struct {
	users *registrationrepo.MemoryUsers
}

func (c centralUsers) GetByEmail(_ context.Context, email string) (persistence.User, error) {
	u, ok := c.users.Central(email)
	if !ok {
		return persistence.User{}, persistence.ErrNotFound
	}
	rec := persistence.User{ID: u.ID, Name: u.Name, Email: u.Email, PasswordHash: u.PasswordHash}
	if u.TenantID != "" {
		rec.TenantID = &u.TenantID
	}
	return rec, nil
}

type testServer struct {
	handler http.Handler
	db      *tenantsprov.MemoryProvisioner
}

func newTestServer(t *testing.T, ready func(context.Context) error) testServer {
	t.Helper()
	logger := zaptest.NewLogger(t)

	catalog := tenantsrepo.NewMemoryRepository()
	db := tenantsprov.NewMemoryProvisioner(naming, catalog)
	tenants := tenantsservice.New(catalog, db, tenantsrepo.NewMemoryLocker(), naming, logger)
	subdomains := subdomainsservice.New(catalog, tenants, nil, subdomainsservice.Config{Naming: naming, CacheTTL: time.Minute}, logger)
	users := registrationrepo.NewMemoryUsers()
	catalog.OnTenantChange(users.FollowTenants(naming))
	registration := registrationservice.New(tenants, users, catalog, registrationservice.Config{
		Naming:   naming,
		HashCost: bcrypt.MinCost,
	}, logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(metrics.NewProvisioningMetrics().PrometheusCollectors()...)

	return testServer{
		db: db,
		handler: newRouter(routerDeps{
			logger:         logger,
			requestTimeout: 5 * time.Second,
			auth:           platformauth.JWT(platformauth.UnsignedTokenVerifier(), nil),
			tenants:        tenants,
			subdomains:     subdomains,
			registration:   registration,
			users:          usersservice.New(centralUsers{users: users}),
			gatherer:       registry,
			ready:          ready,
		}),
	}
}

func (s testServer) do(t *testing.T, method, host, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Host = host
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func tokenFor(t *testing.T, tenantID string) string {
	t.Helper()
	token, err := devtoken.BuildUnsignedFirebaseToken(devtoken.Params{
		ProjectID: "palmyra-test",
		TenantID:  tenantID,
		UserID:    "user-1",
		Email:     "ada@example.test",
	}, time.Time{})
	require.NoError(t, err)
	return token
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, func(context.Context) error { return errors.New("db down") })
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "localhost", "/healthz", "", "").Code)
	require.Equal(t, http.StatusServiceUnavailable, s.do(t, http.MethodGet, "localhost", "/readyz", "", "").Code)

	rec := s.do(t, http.MethodGet, "localhost", "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "tenancy_provisioning_tables_copied_total")
}

func TestDocs(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodGet, "localhost", "/docs", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "/openapi/subdomains.json")

	rec = s.do(t, http.MethodGet, "localhost", "/openapi/registration.json", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "/api/register")

	require.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "localhost", "/openapi/missing.json", "", "").Code)
}

func TestRegisterAndMoveSubdomain(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "localhost", "/api/subdomain/check", `{"subdomain":"acme"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, decode(t, rec)["available"])

	rec = s.do(t, http.MethodPost, "localhost", "/api/register",
		`{"name":"Ada","email":"ada@example.test","password":"correct-horse","subdomain":"acme"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, "acme.localhost", decode(t, rec)["domain"])

	rec = s.do(t, http.MethodPost, "localhost", "/api/subdomain/check", `{"subdomain":"acme"}`, "")
	require.Equal(t, false, decode(t, rec)["available"])

	rec = s.do(t, http.MethodGet, "acme.localhost", "/api/tenant", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "tenant_acme", decode(t, rec)["database_name"])

	rec = s.do(t, http.MethodGet, "acme.localhost", "/api/user", "", tokenFor(t, "acme"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "acme", decode(t, rec)["tenant_id"])

	rec = s.do(t, http.MethodGet, "acme.localhost", "/api/user", "", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "acme.localhost", "/api/subdomain/update",
		`{"current_subdomain":"acme","new_subdomain":"globex"}`, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "Unauthenticated.", decode(t, rec)["message"])

	rec = s.do(t, http.MethodPost, "acme.localhost", "/api/subdomain/update",
		`{"current_subdomain":"acme","new_subdomain":"globex"}`, tokenFor(t, "acme"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "globex.localhost", decode(t, rec)["new_domain"])
	require.Equal(t, []string{"tenant_globex"}, s.db.Databases())

	rec = s.do(t, http.MethodGet, "acme.localhost", "/api/tenant", "", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "globex.localhost", "/api/tenant", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "globex", decode(t, rec)["id"])

	rec = s.do(t, http.MethodGet, "localhost", "/api/subdomain/current", "", tokenFor(t, "globex"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "globex.localhost", decode(t, rec)["domain"])

	// A token issued before the rename still carries the old tenant claim.
	rec = s.do(t, http.MethodGet, "localhost", "/api/subdomain/current", "", tokenFor(t, "acme"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "globex.localhost", decode(t, rec)["domain"])

	rec = s.do(t, http.MethodGet, "globex.localhost", "/api/user", "", tokenFor(t, "acme"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "globex", decode(t, rec)["tenant_id"])

	rec = s.do(t, http.MethodGet, "localhost:8080", "/api/subdomain/current", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "localhost", decode(t, rec)["domain"])
}

func TestRegisterValidationThroughRouter(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil)
	rec := s.do(t, http.MethodPost, "localhost", "/api/register",
		`{"name":"Ada","email":"Ada@Example.test","password":"short","subdomain":"-bad"}`, "")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	errs, ok := decode(t, rec)["errors"].(map[string]any)
	require.True(t, ok)
	require.Contains(t, errs, "email")
	require.Contains(t, errs, "password")
	require.Contains(t, errs, "subdomain")
	require.Empty(t, s.db.Databases())
}

func TestLongSubdomainIsRejectedWithoutChanges(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil)
	long := strings.Repeat("a", 60)

	rec := s.do(t, http.MethodPost, "localhost", "/api/subdomain/check", `{"subdomain":"`+long+`"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, false, decode(t, rec)["available"])

	rec = s.do(t, http.MethodPost, "localhost", "/api/register",
		`{"name":"Ada","email":"ada@example.test","password":"correct-horse","subdomain":"`+long+`"}`, "")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Empty(t, s.db.Databases())

	rec = s.do(t, http.MethodPost, "localhost", "/api/register",
		`{"name":"Ada","email":"ada@example.test","password":"correct-horse","subdomain":"acme"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "acme.localhost", "/api/subdomain/update",
		`{"current_subdomain":"acme","new_subdomain":"`+long+`"}`, tokenFor(t, "acme"))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, []string{"tenant_acme"}, s.db.Databases())

	rec = s.do(t, http.MethodGet, "acme.localhost", "/api/tenant", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestUpdateRejectsSubdomainOfAnotherTenant(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil)
	rec := s.do(t, http.MethodPost, "localhost", "/api/register",
		`{"name":"Ada","email":"ada@example.test","password":"correct-horse","subdomain":"acme"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = s.do(t, http.MethodPost, "localhost", "/api/register",
		`{"name":"Bob","email":"bob@example.test","password":"correct-horse","subdomain":"globex"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// The token claims globex but its email belongs to acme's owner.
	rec = s.do(t, http.MethodPost, "globex.localhost", "/api/subdomain/update",
		`{"current_subdomain":"globex","new_subdomain":"initech"}`, tokenFor(t, "globex"))
	require.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())
	require.Equal(t, false, decode(t, rec)["success"])
	require.Equal(t, []string{"tenant_acme", "tenant_globex"}, s.db.Databases())

	rec = s.do(t, http.MethodGet, "globex.localhost", "/api/tenant", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestMalformedBodiesKeepEndpointShape(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "localhost", "/api/subdomain/check", `{"subdomain":`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	require.Equal(t, false, body["available"])
	require.Equal(t, subdomainsservice.MessageInvalidFormat, body["message"])

	rec = s.do(t, http.MethodPost, "localhost", "/api/register", `[]`, "")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, "The request body must be a JSON object.", decode(t, rec)["message"])
}

func TestAdminTenantsRequiresAdmin(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, nil)
	rec := s.do(t, http.MethodGet, "localhost", "/api/admin/tenants", "", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodGet, "localhost", "/api/admin/tenants", "", tokenFor(t, "acme"))
	require.Equal(t, http.StatusForbidden, rec.Code)
}
