package middleware

import (
	"context"
	"errors"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3filter"

	platformauth "github.com/zenGate-Global/palmyra-tenancy/platform/go/auth"
)

// ErrUnauthenticated is returned to the OpenAPI validator when an operation declares
// bearerAuth and the request carries no verified credentials.
var ErrUnauthenticated = errors.New("authentication required")

// ValidateAuthenticationViaSwagger satisfies operations that declare bearerAuth.
// The JWT middleware must run first; it has already rejected invalid tokens, so here
// only the presence of verified credentials is checked.
func ValidateAuthenticationViaSwagger(ctx context.Context, input *openapi3filter.AuthenticationInput) error {
	if input == nil || input.SecuritySchemeName != "bearerAuth" {
		return nil
	}

	r := input.RequestValidationInput.Request
	if r == nil {
		return fmt.Errorf("no request in validation input")
	}
	if creds, ok := platformauth.UserFromContext(r.Context()); !ok || creds == nil {
		return ErrUnauthenticated
	}
	return nil
}
