package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const UsersTable = "users"

// User represents a row in a users table, central or tenant-local.
// TenantID is only populated for central rows.
type User struct {
	ID           uuid.UUID `db:"id"`
	Name         string    `db:"name"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	TenantID     *string   `db:"tenant_id"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// CreateUserParams captures the fields required to insert a user.
type CreateUserParams struct {
	ID           uuid.UUID
	Name         string
	Email        string
	PasswordHash string
	TenantID     *string
}

// UserStore exposes persistence helpers for a users table. Central stores carry the tenant_id column;
// tenant stores run inside a transaction scoped to the tenant database.
type UserStore struct {
	db      Querier
	central bool
}

// NewCentralUserStore targets the catalog users table.
func NewCentralUserStore(db Querier) *UserStore {
	if db == nil {
		panic("user store requires querier")
	}
	return &UserStore{db: db, central: true}
}

// NewTenantUserStore targets the users table visible on the search_path of db.
func NewTenantUserStore(db Querier) *UserStore {
	if db == nil {
		panic("user store requires querier")
	}
	return &UserStore{db: db}
}

func (s *UserStore) columns() string {
	if s.central {
		return "id, name, email, password_hash, tenant_id, created_at, updated_at"
	}
	return "id, name, email, password_hash, created_at, updated_at"
}

// CreateUser inserts a user. Duplicate ids or emails return ErrConflict.
func (s *UserStore) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	if params.ID == uuid.Nil {
		return User{}, errors.New("user id is required")
	}

	email := strings.ToLower(strings.TrimSpace(params.Email))
	name := strings.TrimSpace(params.Name)

	var row pgx.Row
	if s.central {
		row = s.db.QueryRow(ctx, fmt.Sprintf(`
            INSERT INTO %s (id, name, email, password_hash, tenant_id)
            VALUES ($1, $2, $3, $4, $5)
            RETURNING %s
        `, UsersTable, s.columns()), params.ID, name, email, params.PasswordHash, params.TenantID)
	} else {
		row = s.db.QueryRow(ctx, fmt.Sprintf(`
            INSERT INTO %s (id, name, email, password_hash)
            VALUES ($1, $2, $3, $4)
            RETURNING %s
        `, UsersTable, s.columns()), params.ID, name, email, params.PasswordHash)
	}

	user, err := s.scan(row)
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, ErrConflict
		}
		return User{}, err
	}
	return user, nil
}

// GetUser returns a single user by identifier.
func (s *UserStore) GetUser(ctx context.Context, id uuid.UUID) (User, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, s.columns(), UsersTable)
	return s.scan(s.db.QueryRow(ctx, query, id))
}

// GetUserByEmail returns the user registered with email.
func (s *UserStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE email = $1`, s.columns(), UsersTable)
	return s.scan(s.db.QueryRow(ctx, query, strings.ToLower(strings.TrimSpace(email))))
}

// EmailTaken reports whether email is already registered.
func (s *UserStore) EmailTaken(ctx context.Context, email string) (bool, error) {
	var taken bool
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE email = $1)`, UsersTable)
	if err := s.db.QueryRow(ctx, query, strings.ToLower(strings.TrimSpace(email))).Scan(&taken); err != nil {
		return false, err
	}
	return taken, nil
}

// DeleteUser removes a user by identifier.
func (s *UserStore) DeleteUser(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return ErrNotFound
	}

	tag, err := s.db.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, UsersTable), id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *UserStore) scan(row pgx.Row) (User, error) {
	var user User

	dest := []any{&user.ID, &user.Name, &user.Email, &user.PasswordHash}
	if s.central {
		dest = append(dest, &user.TenantID)
	}
	dest = append(dest, &user.CreatedAt, &user.UpdatedAt)

	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}

	return user, nil
}
