package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/zenGate-Global/palmyra-tenancy/domains/registration/be/service"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/persistence"
)

// PostgresUsers writes registered users to the central users table and to the users
// table inside each tenant schema.
type PostgresUsers struct {
	db *persistence.CatalogDB
}

// NewPostgresUsers constructs the store.
func NewPostgresUsers(db *persistence.CatalogDB) *PostgresUsers {
	if db == nil {
		panic("registration repo requires catalog db")
	}
	return &PostgresUsers{db: db}
}

var _ service.Users = (*PostgresUsers)(nil)

func (r *PostgresUsers) EmailTaken(ctx context.Context, email string) (bool, error) {
	return persistence.NewCentralUserStore(r.db.Pool()).EmailTaken(ctx, email)
}

func (r *PostgresUsers) CreateTenantUser(ctx context.Context, databaseName string, user service.NewUser) error {
	return r.db.WithSchema(ctx, databaseName, func(tx pgx.Tx) error {
		_, err := persistence.NewTenantUserStore(tx).CreateUser(ctx, params(user, nil))
		return err
	})
}

func (r *PostgresUsers) CreateCentralUser(ctx context.Context, tenantID string, user service.NewUser) error {
	_, err := persistence.NewCentralUserStore(r.db.Pool()).CreateUser(ctx, params(user, &tenantID))
	if errors.Is(err, persistence.ErrConflict) {
		return service.ErrEmailTaken
	}
	return err
}

func params(user service.NewUser, tenantID *string) persistence.CreateUserParams {
	return persistence.CreateUserParams{
		ID:           user.ID,
		Name:         user.Name,
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		TenantID:     tenantID,
	}
}
