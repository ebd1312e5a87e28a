package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Messages of the JSON error bodies written by this package.
const (
	MessageUnauthenticated = "Unauthenticated."
	MessageForbidden       = "This action is unauthorized."
)

// VerifyFunc validates a bearer token and returns its claims.
type VerifyFunc func(ctx context.Context, token string) (Claims, error)

// ExtractFunc maps verified claims onto UserCredentials.
type ExtractFunc func(claims Claims) (*UserCredentials, error)

// JWT attaches UserCredentials for requests carrying a valid bearer token. Requests
// without one continue anonymously; each endpoint decides whether it needs a user.
// A present but invalid token is answered with 401.
func JWT(verify VerifyFunc, extract ExtractFunc) func(http.Handler) http.Handler {
	if verify == nil {
		panic("auth.JWT: verify func must not be nil")
	}
	if extract == nil {
		extract = CredentialsFromClaims
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, found := ExtractJWTToken(r)
			if r.Method == http.MethodOptions || !found || token == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := verify(r.Context(), token)
			if err != nil {
				rejectToken(w, err.Error())
				return
			}
			creds, err := extract(claims)
			if err != nil {
				rejectToken(w, "invalid claims")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), creds)))
		})
	}
}

// RequireAdmin answers 401 without credentials and 403 for non-admin users.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		creds, ok := UserFromContext(r.Context())
		switch {
		case !ok:
			writeMessage(w, http.StatusUnauthorized, MessageUnauthenticated)
		case !creds.IsAdmin:
			writeMessage(w, http.StatusForbidden, MessageForbidden)
		default:
			next.ServeHTTP(w, r)
		}
	})
}

func rejectToken(w http.ResponseWriter, reason string) {
	w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Bearer realm="api", error="invalid_token", error_description=%q`, reason))
	writeMessage(w, http.StatusUnauthorized, MessageUnauthenticated)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": message})
}
