package guard_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"state-connector/guard"
	"state-connector/models"
)

func held(t *testing.T, g guard.Guard, chain string) bool {
	t.Helper()
	ok, err := g.Held(context.Background(), chain)
	require.NoError(t, err)
	return ok
}

func TestMemoryExclusive(t *testing.T) {
	g := guard.NewMemory(nil)
	ctx := context.Background()

	token, err := g.Acquire(ctx, "xrp", time.Minute)
	require.NoError(t, err)
	assert.True(t, held(t, g, "xrp"))

	_, err = g.Acquire(ctx, "xrp", time.Minute)
	require.ErrorIs(t, err, models.ErrClaimsInProgress)

	_, err = g.Acquire(ctx, "btc", time.Minute)
	require.NoError(t, err, "chains are independent")

	require.NoError(t, g.Release(ctx, "xrp", token))
	assert.False(t, held(t, g, "xrp"))
	_, err = g.Acquire(ctx, "xrp", time.Minute)
	require.NoError(t, err)
}

func TestMemoryLeaseExpires(t *testing.T) {
	now := time.Unix(1000, 0)
	var mu sync.Mutex
	g := guard.NewMemory(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	})
	ctx := context.Background()

	stale, err := g.Acquire(ctx, "xrp", 10*time.Minute)
	require.NoError(t, err)

	mu.Lock()
	now = now.Add(10 * time.Minute)
	mu.Unlock()

	fresh, err := g.Acquire(ctx, "xrp", 10*time.Minute)
	require.NoError(t, err)

	// the expired holder must not free the new lease
	require.NoError(t, g.Release(ctx, "xrp", stale))
	assert.True(t, held(t, g, "xrp"))
	require.NoError(t, g.Release(ctx, "xrp", fresh))
	assert.False(t, held(t, g, "xrp"))
}

func TestMemoryConcurrentAcquire(t *testing.T) {
	g := guard.NewMemory(nil)
	var wg sync.WaitGroup
	var mu sync.Mutex
	won := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := g.Acquire(context.Background(), "doge", time.Minute); err == nil {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, won)
}

// TestRedisGuard needs a live server: STATECO_TEST_REDIS=localhost:6379.
func TestRedisGuard(t *testing.T) {
	addr := os.Getenv("STATECO_TEST_REDIS")
	if addr == "" {
		t.Skip("STATECO_TEST_REDIS not set")
	}
	g, err := guard.NewRedis(addr, "", 0, "stateco-test:"+t.Name()+":")
	require.NoError(t, err)
	defer g.Close()
	ctx := context.Background()
	require.NoError(t, g.Ping(ctx))

	token, err := g.Acquire(ctx, "xrp", time.Minute)
	require.NoError(t, err)
	_, err = g.Acquire(ctx, "xrp", time.Minute)
	require.ErrorIs(t, err, models.ErrClaimsInProgress)

	require.NoError(t, g.Release(ctx, "xrp", "not-the-owner"))
	_, err = g.Acquire(ctx, "xrp", time.Minute)
	require.ErrorIs(t, err, models.ErrClaimsInProgress)

	require.NoError(t, g.Release(ctx, "xrp", token))
	assert.False(t, held(t, g, "xrp"))
	token, err = g.Acquire(ctx, "xrp", time.Minute)
	require.NoError(t, err)
	assert.True(t, held(t, g, "xrp"))
	require.NoError(t, g.Release(ctx, "xrp", token))
}

func TestNewRedisRequiresAddr(t *testing.T) {
	_, err := guard.NewRedis("", "", 0, "")
	require.Error(t, err)
}
