package sqlassets

import (
	"embed"
	"io/fs"
)

//go:embed migrations/central/*.sql
var centralMigrations embed.FS

//go:embed schema/tenant_space/users.sql
var UsersSQL string

// CentralMigrationsDir is the directory inside CentralMigrations holding the versioned files.
const CentralMigrationsDir = "migrations/central"

// CentralMigrations exposes the embedded golang-migrate files for the central catalog.
func CentralMigrations() fs.FS {
	return centralMigrations
}

// TenantSpaceStatements lists the DDL applied to every freshly provisioned tenant database.
func TenantSpaceStatements() []string {
	return []string{UsersSQL}
}
