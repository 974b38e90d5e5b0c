package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemorySetGet(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Set(ctx, "key", "value", time.Minute))

	value, ok, err := c.Get(ctx, "key")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "value", value)

	has, err := c.Has(ctx, "key")
	require.NoError(t, err)
	require.True(t, has)

	require.NoError(t, c.Del(ctx, "key"))
	has, err = c.Has(ctx, "key")
	require.NoError(t, err)
	require.False(t, has)
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	current := time.Now()
	c.now = func() time.Time { return current }

	require.NoError(t, c.Set(ctx, "key", "value", time.Minute))

	current = current.Add(30 * time.Second)
	has, err := c.Has(ctx, "key")
	require.NoError(t, err)
	require.True(t, has)

	current = current.Add(31 * time.Second)
	has, err = c.Has(ctx, "key")
	require.NoError(t, err)
	require.False(t, has)
}

func TestMemoryRateLimit(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	for i := 0; i < 3; i++ {
		allowed, err := c.CheckRateLimit(ctx, "user", 3, time.Minute)
		require.NoError(t, err)
		require.True(t, allowed, "request %d should be allowed", i+1)
	}

	allowed, err := c.CheckRateLimit(ctx, "user", 3, time.Minute)
	require.NoError(t, err)
	require.False(t, allowed)
}

// The window is fixed, not sliding: the TTL is set when the counter is
// created and never extended, so a caller can spend the full allowance at the
// end of one window and again at the start of the next. That burst at the
// boundary is an accepted approximation of the limiter, not a bug.
func TestMemoryRateLimitFixedWindowBoundary(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	current := time.Now()
	c.now = func() time.Time { return current }

	// The window opens at the first increment and runs for a minute.
	allowed, err := c.CheckRateLimit(ctx, "user", 2, time.Minute)
	require.NoError(t, err)
	require.True(t, allowed)

	// Spend the rest of the allowance just before the window closes.
	current = current.Add(59 * time.Second)
	allowed, err = c.CheckRateLimit(ctx, "user", 2, time.Minute)
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, err = c.CheckRateLimit(ctx, "user", 2, time.Minute)
	require.NoError(t, err)
	require.False(t, allowed)

	// Two seconds later the counter has expired and the full allowance is
	// available again, back-to-back with the spend above.
	current = current.Add(2 * time.Second)
	for i := 0; i < 2; i++ {
		allowed, err := c.CheckRateLimit(ctx, "user", 2, time.Minute)
		require.NoError(t, err)
		require.True(t, allowed)
	}
}
