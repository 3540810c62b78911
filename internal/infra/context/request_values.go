// Package context carries request-scoped values between the transport, the
// route guard and logging.
package context

import (
	"context"

	"github.com/mkrupp/apptemplate/internal/domain"
)

type contextKey string

const (
	contextKeyTraceID = contextKey("traceID")
	contextKeySession = contextKey("session")
)

func value[T any](ctx context.Context, key contextKey) (T, bool) {
	v, ok := ctx.Value(key).(T)

	return v, ok
}

// TraceIDFromContext extracts the trace ID assigned by the HTTP transport.
func TraceIDFromContext(ctx context.Context) (string, bool) {
	return value[string](ctx, contextKeyTraceID)
}

// WithTraceID returns a context carrying traceID.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, contextKeyTraceID, traceID)
}

// SessionFromContext extracts the session resolved for the current request.
func SessionFromContext(ctx context.Context) (domain.Session, bool) {
	return value[domain.Session](ctx, contextKeySession)
}

// WithSession returns a context carrying the session the route guard resolved.
func WithSession(ctx context.Context, session domain.Session) context.Context {
	return context.WithValue(ctx, contextKeySession, session)
}

// UserIDFromContext returns the id of the signed-in user of the request, if any.
func UserIDFromContext(ctx context.Context) (string, bool) {
	session, ok := SessionFromContext(ctx)
	if !ok || session.User == nil || session.User.ID == "" {
		return "", false
	}

	return session.User.ID, true
}
