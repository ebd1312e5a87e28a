package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zenGate-Global/palmyra-tenancy/domains/users/be/service"
	platformauth "github.com/zenGate-Global/palmyra-tenancy/platform/go/auth"
)

type mockService struct {
	meFn func(ctx context.Context, creds *platformauth.UserCredentials) (service.User, error)
}

func (m *mockService) Me(ctx context.Context, creds *platformauth.UserCredentials) (service.User, error) {
	if m.meFn == nil {
		panic("meFn not configured")
	}
	return m.meFn(ctx, creds)
}

func get(t *testing.T, svc service.Service, creds *platformauth.UserCredentials) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Route("/api", New(svc, zaptest.NewLogger(t)).Routes)

	req := httptest.NewRequest(http.MethodGet, "/api/user", nil)
	if creds != nil {
		req = req.WithContext(platformauth.WithUser(req.Context(), creds))
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestMeSuccess(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	id := uuid.New()
	tenantID := "acme"
	svc := &mockService{meFn: func(_ context.Context, creds *platformauth.UserCredentials) (service.User, error) {
		require.Equal(t, "ada@example.test", creds.Email)
		return service.User{ID: id, Name: "Ada", Email: creds.Email, TenantID: &tenantID, CreatedAt: now, UpdatedAt: now}, nil
	}}

	rec := get(t, svc, &platformauth.UserCredentials{Email: "ada@example.test"})
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, id.String(), body["id"])
	require.Equal(t, "acme", body["tenant_id"])
}

func TestMeErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "unauthenticated", err: service.ErrUnauthenticated, wantStatus: http.StatusUnauthorized},
		{name: "not found", err: service.ErrNotFound, wantStatus: http.StatusNotFound},
		{name: "internal", err: errors.New("boom"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc := &mockService{meFn: func(context.Context, *platformauth.UserCredentials) (service.User, error) {
				return service.User{}, tt.err
			}}
			rec := get(t, svc, nil)
			require.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}
