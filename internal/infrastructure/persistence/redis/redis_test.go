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

	"github.com/satriyop/enteraksi/internal/application/query"
	"github.com/satriyop/enteraksi/internal/domain/state"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "enteraksi:path_progress:pe-1", PathProgressKey("pe-1"))
	assert.Equal(t, "enteraksi:pubsub:events", PubSubChannel("events"))
	assert.Equal(t, "localhost:6379", DefaultConfig().Addr())
}

func TestCacheRejectsBadInput(t *testing.T) {
	c := NewCacheFromClient(goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1"}))
	defer c.Close()
	ctx := context.Background()

	assert.ErrorIs(t, c.Set(ctx, "", 1, time.Minute), ErrCacheKeyEmpty)
	assert.ErrorIs(t, c.Set(ctx, "k", nil, time.Minute), ErrCacheNilValue)
	assert.ErrorIs(t, c.Set(ctx, "k", 1, -time.Second), ErrCacheInvalidTTL)
	assert.ErrorIs(t, c.Get(ctx, "", new(int)), ErrCacheKeyEmpty)
	assert.NoError(t, c.Delete(ctx))
	assert.ErrorIs(t, NewPathProgressCache(c, 0).Set(ctx, nil), ErrCacheNilValue)
}

// Integration tests run against ENTERAKSI_TEST_REDIS_ADDR when set.
func integrationCache(t *testing.T) *Cache {
	t.Helper()
	addr := os.Getenv("ENTERAKSI_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("ENTERAKSI_TEST_REDIS_ADDR not set")
	}
	c := NewCacheFromClient(goredis.NewClient(&goredis.Options{Addr: addr}))
	require.NoError(t, c.Ping(context.Background()))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestIntegration_PathProgressCache(t *testing.T) {
	c := integrationCache(t)
	cache := NewPathProgressCache(c, time.Minute)
	ctx := context.Background()
	id := uuid.NewString()

	_, ok, err := cache.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	view := &query.PathProgressView{
		PathEnrollmentID: id,
		State:            state.PathActive,
		Percentage:       50,
		Courses:          []query.PathCourseView{{CourseID: "c1", State: state.ProgressCompleted}},
	}
	require.NoError(t, cache.Set(ctx, view))

	got, ok, err := cache.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 50, got.Percentage)
	assert.Equal(t, state.ProgressCompleted, got.Courses[0].State)

	ttl, err := c.TTL(ctx, PathProgressKey(id))
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, cache.Invalidate(ctx, id))
	_, ok, err = cache.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIntegration_PathProgressCacheDropsCorruptEntries(t *testing.T) {
	c := integrationCache(t)
	cache := NewPathProgressCache(c, time.Minute)
	ctx := context.Background()
	id := uuid.NewString()

	require.NoError(t, c.Client().Set(ctx, PathProgressKey(id), "not json", time.Minute).Err())
	_, ok, err := cache.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	exists, err := c.Exists(ctx, PathProgressKey(id))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestIntegration_PubSub(t *testing.T) {
	c := integrationCache(t)
	ps := NewPubSub(c)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	channel := PubSubChannel(uuid.NewString())
	msgs, err := ps.Subscribe(ctx, channel)
	require.NoError(t, err)

	require.NoError(t, ps.Publish(ctx, channel, []byte(`{"x":1}`)))

	select {
	case m := <-msgs:
		assert.Equal(t, channel, m.Channel)
		assert.JSONEq(t, `{"x":1}`, m.Payload)
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
	}

	cancel()
	for range msgs {
	}
}
