// Package ratelimit implements an in-process rolling-window request limiter
// shared by every caller of a gateway.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alanyoungcy/exchangegate/internal/domain"
)

const (
	// DefaultLimit is the number of requests admitted per window when the
	// caller does not configure one.
	DefaultLimit  = 60
	DefaultWindow = time.Minute
)

// Limiter implements domain.RateLimiter. Each key keeps the times of its
// consumed slots; at most limit of them fall within any window-long interval.
//
// A caller over the limit reserves the earliest admissible slot while holding
// the lock and then sleeps until it, so concurrent callers are queued in
// arrival order and never over-admit.
type Limiter struct {
	limit  int
	window time.Duration
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error

	mu    sync.Mutex
	slots map[string][]time.Time
}

// Option customises a Limiter.
type Option func(*Limiter)

// WithClock replaces the wall clock and the sleep function, mainly for tests.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(l *Limiter) {
		l.now = now
		l.sleep = sleep
	}
}

// New creates a Limiter admitting limit requests per window. Non-positive
// values fall back to DefaultLimit and DefaultWindow.
func New(limit int, window time.Duration, opts ...Option) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	l := &Limiter{
		limit:  limit,
		window: window,
		now:    time.Now,
		sleep:  sleepContext,
		slots:  make(map[string][]time.Time),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire blocks until a slot for key is available and consumes it. If ctx is
// cancelled while waiting the reserved slot is given back.
func (l *Limiter) Acquire(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("ratelimit: acquire %s: %w", key, err)
	}

	at := l.reserve(key)
	wait := at.Sub(l.now())
	if wait <= 0 {
		return nil
	}
	if err := l.sleep(ctx, wait); err != nil {
		l.release(key, at)
		return fmt.Errorf("ratelimit: acquire %s: %w", key, err)
	}
	return nil
}

// InWindow returns the number of slots for key that currently count against
// the limit, including reservations not yet reached.
func (l *Limiter) InWindow(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.slots[key] = l.prune(l.slots[key], l.now())
	return len(l.slots[key])
}

func (l *Limiter) reserve(key string) time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	slots := l.prune(l.slots[key], now)

	at := now
	if len(slots) >= l.limit {
		// The slot limit positions back must leave the window first.
		if next := slots[len(slots)-l.limit].Add(l.window); next.After(at) {
			at = next
		}
	}
	l.slots[key] = append(slots, at)
	return at
}

func (l *Limiter) release(key string, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	slots := l.slots[key]
	for i := len(slots) - 1; i >= 0; i-- {
		if slots[i].Equal(at) {
			l.slots[key] = append(slots[:i], slots[i+1:]...)
			return
		}
	}
}

// prune drops slots that no longer fall within the window ending at now.
func (l *Limiter) prune(slots []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(slots) && !slots[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return slots
	}
	return append(slots[:0:0], slots[i:]...)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ domain.RateLimiter = (*Limiter)(nil)
