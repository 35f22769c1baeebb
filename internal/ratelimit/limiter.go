package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"carhistory/internal/util"
)

// CounterStore increments a fixed-window counter and returns the new count.
type CounterStore interface {
	Increment(ctx context.Context, operation, hashedIdent string, window time.Duration) (int64, error)
}

// Limiter applies a fixed-window limit per (operation, hashed identity) key.
//
// Fixed window, not sliding: up to 2x the limit can pass around a window
// boundary. That imprecision is accepted for the simplicity of a single
// atomic increment.
//
// Fail-closed: if the counter store is unavailable the request is denied.
// Silently allowing unlimited authentication attempts during a storage outage
// is the higher-severity failure.
type Limiter struct {
	store  CounterStore
	logger *zap.Logger
}

func NewLimiter(store CounterStore, logger *zap.Logger) *Limiter {
	return &Limiter{store: store, logger: logger}
}

// Allow increments the counter for the key and reports whether the caller is
// within budget for the current window.
func (l *Limiter) Allow(ctx context.Context, operation, hashedIdent string, window time.Duration, limit int) bool {
	count, err := l.store.Increment(ctx, operation, hashedIdent, window)
	if err != nil {
		l.logger.Error("rate limit store unavailable, denying request",
			util.String("operation", operation),
			util.ErrorField(err),
		)
		return false
	}
	return count <= int64(limit)
}
