package internal

import (
	"context"
	"time"
)

type ctxKey string

const (
	ContextUserKey     ctxKey = "userID"
	ContextClientIPKey ctxKey = "clientIP"
)

// UserIDFromContext returns the acting back-office user, if any. Webhooks and
// background sweeps run without one.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	if ctx == nil {
		return 0, false
	}
	userID, ok := ctx.Value(ContextUserKey).(int64)
	return userID, ok
}

func ContextWithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, ContextUserKey, userID)
}

func ClientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if ip, ok := ctx.Value(ContextClientIPKey).(string); ok {
		return ip
	}
	return ""
}

func ContextWithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ContextClientIPKey, ip)
}

// WithTimeout returns a context with timeout, defaulting to 5 seconds if duration is zero or negative.
func WithTimeout(ctx context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	if duration <= 0 {
		duration = 5 * time.Second
	}
	return context.WithTimeout(ctx, duration)
}
