package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/exchangegate/internal/domain"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("EXGATE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("EXGATE_TEST_REDIS_ADDR not set")
	}
	c, err := New(context.Background(), ClientConfig{
		Addr:      addr,
		PoolSize:  4,
		KeyPrefix: "exgate-test-" + uuid.NewString(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestKeyNamespace(t *testing.T) {
	c := &Client{prefix: "exgate"}
	assert.Equal(t, "exgate:ratelimit:bittrex", c.key("ratelimit", "bittrex"))

	bare := &Client{}
	assert.Equal(t, "lock:bundle", bare.key("lock", "bundle"))
}

func TestRateLimiter_AllowUpToLimit(t *testing.T) {
	c := newTestClient(t)
	rl := NewRateLimiter(c, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, _, err := rl.Allow(ctx, "bittrex")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, wait, err := rl.Allow(ctx, "bittrex")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Greater(t, wait, 50*time.Second)
}

func TestRateLimiter_AcquireHonoursContext(t *testing.T) {
	c := newTestClient(t)
	rl := NewRateLimiter(c, 1, time.Minute)

	require.NoError(t, rl.Acquire(context.Background(), "bittrex"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.Error(t, rl.Acquire(ctx, "bittrex"))
}

func TestLockManager_Exclusive(t *testing.T) {
	c := newTestClient(t)
	lm := NewLockManager(c)
	ctx := context.Background()

	unlock, err := lm.Acquire(ctx, "bundle", time.Minute)
	require.NoError(t, err)

	_, err = lm.Acquire(ctx, "bundle", time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	unlock()
	unlock()

	unlock2, err := lm.Acquire(ctx, "bundle", time.Minute)
	require.NoError(t, err)
	unlock2()
}
