package internal

import (
	"context"
	"time"
)

// DefaultCallTimeout bounds a call to a dependency when no timeout is configured.
const DefaultCallTimeout = 5 * time.Second

type ctxKey string

const ctxSubjectKey ctxKey = "subject"

// UserIDFromContext returns the verified token subject, or "" for anonymous requests.
func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if sub, ok := ctx.Value(ctxSubjectKey).(string); ok {
		return sub
	}
	return ""
}

func ContextWithUserID(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, ctxSubjectKey, subject)
}

// WithCallTimeout bounds one call to postgres, redis or a payment provider.
// A non-positive d falls back to DefaultCallTimeout.
func WithCallTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = DefaultCallTimeout
	}
	return context.WithTimeout(ctx, d)
}
