package repo

import (
	"context"

	"github.com/zenGate-Global/palmyra-tenancy/platform/go/persistence"
)

// Repository defines the persistence operations required by the users service.
type Repository interface {
	GetByEmail(ctx context.Context, email string) (persistence.User, error)
}

type postgresRepository struct {
	store *persistence.UserStore
}

// NewPostgresRepository constructs a repository over the central users table.
func NewPostgresRepository(store *persistence.UserStore) Repository {
	if store == nil {
		panic("user store is required")
	}
	return &postgresRepository{store: store}
}

func (r *postgresRepository) GetByEmail(ctx context.Context, email string) (persistence.User, error) {
	return r.store.GetUserByEmail(ctx, email)
}
