package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2021, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Sleep records the requested delay without advancing the clock, so every
// caller observes the same instant.
func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()
	return ctx.Err()
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

func TestLimiter_DelaysBeyondLimit(t *testing.T) {
	clock := newFakeClock()
	l := New(60, time.Minute, WithClock(clock.Now, clock.Sleep))
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		require.NoError(t, l.Acquire(ctx, "bittrex"))
		clock.Advance(500 * time.Millisecond)
	}
	assert.Empty(t, clock.Sleeps(), "first 60 acquisitions must not wait")

	// 30s have elapsed; the 61st slot opens when the first leaves the window.
	require.NoError(t, l.Acquire(ctx, "bittrex"))
	require.Len(t, clock.Sleeps(), 1)
	assert.Equal(t, 30*time.Second, clock.Sleeps()[0])

	// The 62nd waits for the second slot, half a second later.
	require.NoError(t, l.Acquire(ctx, "bittrex"))
	require.Len(t, clock.Sleeps(), 2)
	assert.Equal(t, 30*time.Second+500*time.Millisecond, clock.Sleeps()[1])
}

func TestLimiter_DisjointMinuteNotDelayed(t *testing.T) {
	clock := newFakeClock()
	l := New(60, time.Minute, WithClock(clock.Now, clock.Sleep))
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		require.NoError(t, l.Acquire(ctx, "bittrex"))
	}
	clock.Advance(61 * time.Second)
	for i := 0; i < 60; i++ {
		require.NoError(t, l.Acquire(ctx, "bittrex"))
	}
	assert.Empty(t, clock.Sleeps())
	assert.Equal(t, 60, l.InWindow("bittrex"))
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	clock := newFakeClock()
	l := New(2, time.Minute, WithClock(clock.Now, clock.Sleep))
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx, "bittrex"))
	require.NoError(t, l.Acquire(ctx, "bittrex"))
	require.NoError(t, l.Acquire(ctx, "poloniex"))
	assert.Empty(t, clock.Sleeps())
}

func TestLimiter_ConcurrentCallersNeverOverAdmit(t *testing.T) {
	clock := newFakeClock()
	l := New(60, time.Minute, WithClock(clock.Now, clock.Sleep))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 150; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.Acquire(ctx, "bittrex"))
		}()
	}
	wg.Wait()

	sleeps := clock.Sleeps()
	require.Len(t, sleeps, 90)
	var oneMinute, twoMinutes int
	for _, d := range sleeps {
		switch d {
		case time.Minute:
			oneMinute++
		case 2 * time.Minute:
			twoMinutes++
		default:
			t.Fatalf("unexpected delay %s", d)
		}
	}
	assert.Equal(t, 60, oneMinute)
	assert.Equal(t, 30, twoMinutes)
}

func TestLimiter_CancelledWaitReleasesSlot(t *testing.T) {
	clock := newFakeClock()
	l := New(1, time.Minute, WithClock(clock.Now, clock.Sleep))

	require.NoError(t, l.Acquire(context.Background(), "bittrex"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := l.Acquire(ctx, "bittrex")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, l.InWindow("bittrex"))
}

func TestLimiter_RealSleepHonoursContext(t *testing.T) {
	l := New(1, time.Hour)
	require.NoError(t, l.Acquire(context.Background(), "bittrex"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := l.Acquire(ctx, "bittrex")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), time.Second)
}
