package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "cinebook:v1:show:42:available", KeyShowAvailable(42))
	assert.Equal(t, "cinebook:v1:show:42:version", KeyShowVersion(42))
	assert.Equal(t, "cinebook:v1:rl:bookings:1.2.3.4", KeyRateLimit("bookings", "1.2.3.4"))
	assert.Equal(t, "cinebook:v1:idem:bookings:7:abc", KeyIdemBooking(7, "abc"))
	assert.Equal(t, "cinebook:v1:shows:changed", ChannelShowsChanged())
}

func TestVerdict(t *testing.T) {
	ok, n, retry, err := verdict([]int64{0, 10, 1500})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(10), n)
	assert.Equal(t, 1500*time.Millisecond, retry)

	ok, _, _, err = verdict([]int64{1, 1, 0})
	require.NoError(t, err)
	assert.True(t, ok)

	_, _, _, err = verdict([]int64{1})
	assert.Error(t, err)
}

func skipIfNoIntegration(t *testing.T) {
	if os.Getenv("INTEGRATION_TEST") != "true" {
		t.Skip("Skipping integration test. Set INTEGRATION_TEST=true to run")
	}
}

func newTestClient(t *testing.T) *goredis.Client {
	t.Helper()
	skipIfNoIntegration(t)

	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	rdb := goredis.NewClient(&goredis.Options{Addr: addr, DB: 15})
	require.NoError(t, rdb.Ping(context.Background()).Err())
	t.Cleanup(func() { _ = rdb.Close() })

	return rdb
}

func TestCache_ShowAvailableCount(t *testing.T) {
	rdb := newTestClient(t)
	ctx := context.Background()
	c := New(rdb)

	showID := time.Now().UnixNano()
	loads := 0
	load := func(context.Context) (int, error) {
		loads++
		return 17, nil
	}

	n, err := c.ShowAvailableCount(ctx, showID, time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, 17, n)

	n, err = c.ShowAvailableCount(ctx, showID, time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, 17, n)
	assert.Equal(t, 1, loads)

	require.NoError(t, c.InvalidateShow(ctx, showID))
	_, err = c.ShowAvailableCount(ctx, showID, time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, 2, loads)
}

func TestSlidingWindowLimiter_Allow(t *testing.T) {
	rdb := newTestClient(t)
	ctx := context.Background()
	l := NewSlidingWindowLimiter(rdb, "test", 2, time.Minute)
	id := uuid.NewString()

	for range 2 {
		ok, _, _, err := l.Allow(ctx, id)
		require.NoError(t, err)
		assert.True(t, ok)
	}

	ok, current, retry, err := l.Allow(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(2), current)
	assert.Greater(t, retry, time.Duration(0))
}

func TestIdempotencyStore(t *testing.T) {
	rdb := newTestClient(t)
	ctx := context.Background()
	s := NewIdempotencyStore(rdb, time.Minute)
	key := KeyIdemBooking(1, uuid.NewString())

	ok, err := s.AcquireLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.AcquireLock(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SaveResult(ctx, key, StoredResponse{Status: 201, Body: []byte(`{"reference":"CB-1"}`)}))
	res, found, err := s.GetResult(ctx, key)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 201, res.Status)
	assert.JSONEq(t, `{"reference":"CB-1"}`, string(res.Body))

	// A stored result survives Release.
	require.NoError(t, s.Release(ctx, key))
	_, found, err = s.GetResult(ctx, key)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestCache_InvalidationDuringLoadIsNotOverwritten(t *testing.T) {
	rdb := newTestClient(t)
	ctx := context.Background()
	c := New(rdb)

	showID := time.Now().UnixNano()
	loads := 0
	load := func(ctx context.Context) (int, error) {
		loads++
		if loads == 1 {
			// a booking commits while the first count is being read
			require.NoError(t, c.InvalidateShow(ctx, showID))
			return 5, nil
		}
		return 4, nil
	}

	n, err := c.ShowAvailableCount(ctx, showID, time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	exists, err := rdb.Exists(ctx, KeyShowAvailable(showID)).Result()
	require.NoError(t, err)
	assert.Zero(t, exists, "stale count must not be cached")

	n, err = c.ShowAvailableCount(ctx, showID, time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	n, err = c.ShowAvailableCount(ctx, showID, time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 2, loads)
}
