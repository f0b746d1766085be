package internal

import (
	"context"
	"time"
)

// DefaultStoreTimeout bounds every persistence call made while serving a request.
const DefaultStoreTimeout = 5 * time.Second

// WithTimeout returns a context with timeout, defaulting to DefaultStoreTimeout if duration is zero or negative.
func WithTimeout(ctx context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	if duration <= 0 {
		duration = DefaultStoreTimeout
	}
	return context.WithTimeout(ctx, duration)
}
