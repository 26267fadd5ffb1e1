package lock

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testManager(t *testing.T) (*Manager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewManager(client, zap.NewNop()), mr
}

func TestMutualExclusion(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()

	first, ok := m.Acquire(ctx, "job", time.Minute)
	require.True(t, ok)
	require.NotNil(t, first)

	second, ok := m.Acquire(ctx, "job", time.Minute)
	assert.False(t, ok)
	assert.Nil(t, second)

	first.Release(ctx)

	third, ok := m.Acquire(ctx, "job", time.Minute)
	assert.True(t, ok)
	require.NotNil(t, third)
	third.Release(ctx)
}

func TestIndependentNames(t *testing.T) {
	m, _ := testManager(t)
	ctx := context.Background()

	a, ok := m.Acquire(ctx, "job-a", time.Minute)
	require.True(t, ok)
	defer a.Release(ctx)

	b, ok := m.Acquire(ctx, "job-b", time.Minute)
	assert.True(t, ok)
	b.Release(ctx)
}

func TestStaleLockRecovery(t *testing.T) {
	m, mr := testManager(t)
	ctx := context.Background()

	// Simulate a crashed holder: lock key present, metadata start
	// time far beyond 1.5x TTL.
	require.NoError(t, mr.Set("dms:lock:job", "dead-token"))
	old := time.Now().Add(-10 * time.Minute).Unix()
	mr.HSet("dms:lock:job:meta", "start_time", strconv.FormatInt(old, 10))
	mr.HSet("dms:lock:job:meta", "hostname", "crashed-host")

	lease, ok := m.Acquire(ctx, "job", time.Minute)
	assert.True(t, ok)
	require.NotNil(t, lease)
	lease.Release(ctx)
}

func TestFreshLockNotCleared(t *testing.T) {
	m, mr := testManager(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("dms:lock:job", "live-token"))
	mr.HSet("dms:lock:job:meta", "start_time", strconv.FormatInt(time.Now().Unix(), 10))

	lease, ok := m.Acquire(ctx, "job", time.Minute)
	assert.False(t, ok)
	assert.Nil(t, lease)
}

func TestFailOpenOnBackendOutage(t *testing.T) {
	m, mr := testManager(t)
	mr.Close()

	lease, ok := m.Acquire(context.Background(), "job", time.Minute)
	assert.True(t, ok)
	require.NotNil(t, lease)
	// Release on a fail-open lease must be a no-op, not a panic.
	lease.Release(context.Background())
}

func TestReleaseOnlyWhenOwned(t *testing.T) {
	m, mr := testManager(t)
	ctx := context.Background()

	lease, ok := m.Acquire(ctx, "job", time.Minute)
	require.True(t, ok)

	// Another process took over after our TTL would have expired.
	require.NoError(t, mr.Set("dms:lock:job", "other-token"))

	lease.Release(ctx)

	val, err := mr.Get("dms:lock:job")
	require.NoError(t, err)
	assert.Equal(t, "other-token", val)
}
