package domain

import (
	"context"
	"time"
)

// RateLimiter admits at most a configured number of requests per key within a
// rolling window. Acquire blocks until a slot is free and consumes it.
type RateLimiter interface {
	Acquire(ctx context.Context, key string) error
}

// LockManager provides mutual exclusion across processes.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}
