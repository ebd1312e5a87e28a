package tenant

import (
	"context"
	"errors"
	"net"
	"strings"
)

// ErrSpaceNotFound reports that no tenant serves the requested host.
var ErrSpaceNotFound = errors.New("tenant space not found")

// Space captures the resolved tenant routing metadata for a request.
// It is attached to the context by the host middleware once the tenant
// serving the request host has been identified.
type Space struct {
	TenantID     string `json:"tenant_id"`
	Domain       string `json:"domain"`
	DatabaseName string `json:"database_name"`
}

type ctxKey string

const spaceKey ctxKey = "TENANCY_TENANT_SPACE"

// WithSpace returns a derived context carrying the tenant Space.
func WithSpace(ctx context.Context, space Space) context.Context {
	return context.WithValue(ctx, spaceKey, space)
}

// FromContext extracts the tenant Space and a boolean indicating presence.
func FromContext(ctx context.Context) (Space, bool) {
	v := ctx.Value(spaceKey)
	if v == nil {
		return Space{}, false
	}

	space, ok := v.(Space)
	return space, ok
}

// NormalizeHost lowercases host and strips any port and trailing dot.
func NormalizeHost(host string) string {
	host = strings.TrimSpace(host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.TrimSuffix(strings.ToLower(host), ".")
}
