package redislock

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Требует запущенный Redis: REDIS_TEST_ADDR=localhost:6379.
func TestLease_ExclusiveUntilReleased(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR не задан")
	}
	ctx := context.Background()
	client, err := Connect(ctx, addr, "")
	require.NoError(t, err)
	defer client.Close()

	key := "escrow:test:lease:" + uuid.NewString()
	a, b := NewLease(client, key), NewLease(client, key)

	ok, err := a.Acquire(ctx, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Acquire(ctx, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// чужая аренда не снимается
	require.NoError(t, b.Release(ctx))
	ok, err = b.Acquire(ctx, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, a.Release(ctx))
	ok, err = b.Acquire(ctx, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, b.Release(ctx))
}
