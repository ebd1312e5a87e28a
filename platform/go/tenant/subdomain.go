package tenant

import (
	"errors"
	"fmt"
	"regexp"
)

// MaxSubdomainLength is the DNS label limit.
const MaxSubdomainLength = 63

var (
	// ErrInvalidSubdomain is returned when a value is not a lowercase DNS label.
	ErrInvalidSubdomain = errors.New("invalid subdomain")
	// ErrSubdomainTooLong is returned when the tenant database derived from a subdomain
	// would exceed MaxDatabaseNameLength. It wraps ErrInvalidSubdomain.
	ErrSubdomainTooLong = fmt.Errorf("%w: tenant database name too long", ErrInvalidSubdomain)
)

var subdomainPattern = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?$`)

// ValidateSubdomain checks input against the lowercase DNS label rules:
// letters, digits and hyphens, starting and ending with a letter or digit.
// No normalization is applied.
func ValidateSubdomain(input string) error {
	if !subdomainPattern.MatchString(input) {
		return ErrInvalidSubdomain
	}
	return nil
}

// SubdomainLimit returns the longest subdomain whose tenant database name still fits.
func (c Config) SubdomainLimit() int {
	n := MaxDatabaseNameLength - len(c.DatabasePrefix) - len(c.IDPrefix) - len(c.DatabaseSuffix)
	if n > MaxSubdomainLength {
		return MaxSubdomainLength
	}
	return n
}

// ValidateSubdomain checks input as a DNS label and as the source of a tenant id whose
// database name fits the identifier limit.
func (c Config) ValidateSubdomain(input string) error {
	if err := ValidateSubdomain(input); err != nil {
		return err
	}
	if _, err := c.DatabaseName(c.TenantIDFor(input)); err != nil {
		return ErrSubdomainTooLong
	}
	return nil
}
