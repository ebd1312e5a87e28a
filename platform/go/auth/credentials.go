package auth

import (
	"context"
	"errors"
	"strings"
)

type ctxKey struct{}

// UserCredentials is the verified identity attached to a request. Email is lower-cased
// so it matches central user rows. TenantID is the tenant named by the token when it was
// issued; after a rename the central user row is authoritative.
type UserCredentials struct {
	UserID        string
	Email         string
	EmailVerified bool
	Name          *string
	IsAdmin       bool
	TenantID      *string
}

// WithUser stores creds on ctx.
func WithUser(ctx context.Context, creds *UserCredentials) context.Context {
	return context.WithValue(ctx, ctxKey{}, creds)
}

// UserFromContext returns the credentials attached by JWT. A nil entry counts as absent.
func UserFromContext(ctx context.Context) (*UserCredentials, bool) {
	creds, ok := ctx.Value(ctxKey{}).(*UserCredentials)
	return creds, ok && creds != nil
}

// Claims is a decoded token payload.
type Claims = map[string]any

// tenantClaims are checked in order. Firebase multi-tenancy nests the tenant under "firebase".
var tenantClaims = []string{"tenantId", "tenant_id"}

// CredentialsFromClaims maps token claims onto UserCredentials. A token without any user
// identifier is rejected.
func CredentialsFromClaims(claims Claims) (*UserCredentials, error) {
	if claims == nil {
		return nil, errors.New("missing claims")
	}

	userID := firstString(claims, "uid", "user_id", "sub")
	if userID == "" {
		return nil, errors.New("token names no user")
	}

	return &UserCredentials{
		UserID:        userID,
		Email:         strings.ToLower(firstString(claims, "email")),
		EmailVerified: boolClaim(claims, "email_verified"),
		Name:          optionalString(firstString(claims, "name")),
		IsAdmin:       boolClaim(claims, "isAdmin"),
		TenantID:      tenantFromClaims(claims),
	}, nil
}

func tenantFromClaims(claims Claims) *string {
	if tenantID := firstString(claims, tenantClaims...); tenantID != "" {
		return &tenantID
	}
	if nested, ok := claims["firebase"].(map[string]any); ok {
		return optionalString(firstString(nested, "tenant"))
	}
	return nil
}

func firstString(claims Claims, keys ...string) string {
	for _, key := range keys {
		if v, ok := claims[key].(string); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}

func boolClaim(claims Claims, key string) bool {
	v, _ := claims[key].(bool)
	return v
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
