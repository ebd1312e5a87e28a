package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	platformauth "github.com/zenGate-Global/palmyra-tenancy/platform/go/auth"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/persistence"
)

type mockRepository struct {
	getByEmailFn func(ctx context.Context, email string) (persistence.User, error)
}

func (m *mockRepository) GetByEmail(ctx context.Context, email string) (persistence.User, error) {
	if m.getByEmailFn == nil {
		panic("getByEmailFn not configured")
	}
	return m.getByEmailFn(ctx, email)
}

func TestServiceMe(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	id := uuid.New()
	tenantID := "acme"

	repo := &mockRepository{getByEmailFn: func(_ context.Context, email string) (persistence.User, error) {
		require.Equal(t, "ada@example.test", email)
		return persistence.User{
			ID:        id,
			Name:      "Ada",
			Email:     email,
			TenantID:  &tenantID,
			CreatedAt: now,
			UpdatedAt: now,
		}, nil
	}}

	user, err := New(repo).Me(context.Background(), &platformauth.UserCredentials{Email: " ada@example.test "})
	require.NoError(t, err)
	require.Equal(t, id, user.ID)
	require.Equal(t, "acme", *user.TenantID)
}

func TestServiceMeErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		creds   *platformauth.UserCredentials
		repoErr error
		want    error
	}{
		{name: "no credentials", want: ErrUnauthenticated},
		{name: "no email claim", creds: &platformauth.UserCredentials{}, want: ErrNotFound},
		{name: "unknown email", creds: &platformauth.UserCredentials{Email: "x@example.test"}, repoErr: persistence.ErrNotFound, want: ErrNotFound},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			repo := &mockRepository{getByEmailFn: func(context.Context, string) (persistence.User, error) {
				return persistence.User{}, tt.repoErr
			}}
			_, err := New(repo).Me(context.Background(), tt.creds)
			require.ErrorIs(t, err, tt.want)
		})
	}

	repo := &mockRepository{getByEmailFn: func(context.Context, string) (persistence.User, error) {
		return persistence.User{}, errors.New("connection reset")
	}}
	_, err := New(repo).Me(context.Background(), &platformauth.UserCredentials{Email: "x@example.test"})
	require.ErrorContains(t, err, "get user: connection reset")
}
