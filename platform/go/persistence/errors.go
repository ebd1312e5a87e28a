package persistence

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound indicates a missing catalog row.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a uniqueness violation.
	ErrConflict = errors.New("record conflict")
)

const (
	pgUniqueViolation = "23505"
	pgDuplicateSchema = "42P06"
	pgInvalidSchema   = "3F000"
)

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return pgErrorCode(err) == pgUniqueViolation
}

// IsDuplicateSchema reports whether err is a CREATE SCHEMA collision.
func IsDuplicateSchema(err error) bool {
	return pgErrorCode(err) == pgDuplicateSchema
}

// IsMissingSchema reports whether err references a schema that does not exist.
func IsMissingSchema(err error) bool {
	return pgErrorCode(err) == pgInvalidSchema
}
