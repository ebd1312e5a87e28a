package logging

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

// scope holds the logger of one request. Middleware further down the chain tag it in
// place, so the completion line carries the tenant and actor resolved for the request.
type scope struct {
	mu     sync.Mutex
	logger *zap.Logger
}

type scopeKey struct{}

// WithLogger starts a new logging scope on ctx.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, scopeKey{}, &scope{logger: logger})
}

// FromContext returns the scoped logger with every tag added so far.
func FromContext(ctx context.Context) (*zap.Logger, bool) {
	s, ok := ctx.Value(scopeKey{}).(*scope)
	if !ok {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logger, true
}

// FromRequest returns the request logger, or fallback outside RequestLogger.
func FromRequest(r *http.Request, fallback *zap.Logger) *zap.Logger {
	if logger, ok := FromContext(r.Context()); ok {
		return logger
	}
	return fallback
}

// Tag adds fields to the scoped logger in ctx. It reports false when ctx has no scope.
func Tag(ctx context.Context, fields ...zap.Field) bool {
	s, ok := ctx.Value(scopeKey{}).(*scope)
	if !ok {
		return false
	}
	s.mu.Lock()
	s.logger = s.logger.With(fields...)
	s.mu.Unlock()
	return true
}

// TagTenant tags the scope with the tenant serving the request.
func TagTenant(ctx context.Context, space tenant.Space) bool {
	return Tag(ctx,
		zap.String("tenant_id", space.TenantID),
		zap.String("tenant_domain", space.Domain),
		zap.String("tenant_database", space.DatabaseName),
	)
}

// RequestLogger opens a logging scope per request and writes one completion line when
// the handler returns. Server errors are logged at error level.
func RequestLogger(base *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			logger := base.With(
				zap.String("http_method", r.Method),
				zap.String("host", r.Host),
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
			)
			if requestID := middleware.GetReqID(r.Context()); requestID != "" {
				logger = logger.With(zap.String("request_id", requestID))
			}

			ctx := WithLogger(r.Context(), logger)
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			level := zapcore.InfoLevel
			if ww.Status() >= http.StatusInternalServerError {
				level = zapcore.ErrorLevel
			}
			done, _ := FromContext(ctx)
			done.Log(level, "request completed",
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
