package tenant

import (
	"fmt"
	"strings"
)

// MaxDatabaseNameLength is the PostgreSQL identifier limit (NAMEDATALEN - 1).
const MaxDatabaseNameLength = 63

// Config carries the naming conventions shared by every tenancy component.
// A tenant with id T lives in the database prefix + T + suffix.
type Config struct {
	DatabasePrefix string `env:"TENANCY_DB_PREFIX" envDefault:"tenant_"`
	DatabaseSuffix string `env:"TENANCY_DB_SUFFIX"`
	// IDPrefix is prepended to a subdomain to derive the tenant id.
	IDPrefix   string `env:"TENANCY_ID_PREFIX"`
	BaseDomain string `env:"TENANCY_BASE_DOMAIN" envDefault:"localhost"`
}

// DatabaseName returns the tenant database (schema) name for tenantID.
func (c Config) DatabaseName(tenantID string) (string, error) {
	if strings.TrimSpace(tenantID) == "" {
		return "", fmt.Errorf("tenant id is required")
	}
	name := c.DatabasePrefix + tenantID + c.DatabaseSuffix
	if len(name) > MaxDatabaseNameLength {
		return "", fmt.Errorf("tenant database name %q exceeds %d bytes", name, MaxDatabaseNameLength)
	}
	return name, nil
}

// TenantIDFor derives the tenant id bound to subdomain.
func (c Config) TenantIDFor(subdomain string) string {
	return c.IDPrefix + subdomain
}

// DomainFor builds the fully qualified domain for subdomain under BaseDomain.
func (c Config) DomainFor(subdomain string) string {
	base := strings.Trim(c.BaseDomain, ".")
	if base == "" {
		return subdomain
	}
	return subdomain + "." + base
}

// SubdomainOf returns the leading label of domain.
func SubdomainOf(domain string) string {
	if i := strings.IndexByte(domain, '.'); i >= 0 {
		return domain[:i]
	}
	return domain
}

// BaseOf returns everything after the leading label of domain, or "" when domain has a single label.
func BaseOf(domain string) string {
	if i := strings.IndexByte(domain, '.'); i >= 0 {
		return domain[i+1:]
	}
	return ""
}

// ReplaceSubdomain swaps the leading label of domain, keeping its base.
// A single-label domain falls back to the configured BaseDomain.
func (c Config) ReplaceSubdomain(domain, subdomain string) string {
	if base := BaseOf(domain); base != "" {
		return subdomain + "." + base
	}
	return c.DomainFor(subdomain)
}
