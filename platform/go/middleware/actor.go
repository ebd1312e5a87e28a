package middleware

import (
	"net/http"

	"go.uber.org/zap"

	platformauth "github.com/zenGate-Global/palmyra-tenancy/platform/go/auth"
	platformlogging "github.com/zenGate-Global/palmyra-tenancy/platform/go/logging"
)

// ActorLogger tags the request-scoped logger with who made the call. It runs after the
// JWT middleware so credentials are available when present.
func ActorLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fields := []zap.Field{zap.String("actor_kind", "anonymous")}
		if creds, ok := platformauth.UserFromContext(r.Context()); ok && creds != nil {
			fields = []zap.Field{zap.String("actor_kind", "user"), zap.String("user_id", creds.UserID)}
			if creds.TenantID != nil {
				fields = append(fields, zap.String("user_tenant_id", *creds.TenantID))
			}
		}

		platformlogging.Tag(r.Context(), fields...)
		next.ServeHTTP(w, r)
	})
}
