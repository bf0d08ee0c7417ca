package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *memoryCache {
	t.Helper()
	c := newMemoryCache(time.Hour) // janitor effectively off, reads handle expiry
	t.Cleanup(c.Close)
	return c
}

func TestMemoryCacheSetGet(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "session:tok", "42", 0))
	v, err := c.Get(ctx, "session:tok")
	require.NoError(t, err)
	assert.Equal(t, "42", v)

	_, err = c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryCacheTTLExpiry(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", 10*time.Millisecond))

	ok, err := c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	time.Sleep(20 * time.Millisecond)

	ok, err = c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryCacheDel(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", "1", 0))
	require.NoError(t, c.Set(ctx, "b", "2", 0))
	require.NoError(t, c.Del(ctx, "a", "b"))

	_, err := c.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = c.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryCacheListHistory(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	key := "announce:history"

	// Newest first, the way the announcement history is written.
	require.NoError(t, c.LPush(ctx, key, "first"))
	require.NoError(t, c.LPush(ctx, key, "second"))
	require.NoError(t, c.LPush(ctx, key, "third"))

	all, err := c.LRange(ctx, key, 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"third", "second", "first"}, all)

	// Trim to the two most recent.
	require.NoError(t, c.LTrim(ctx, key, 0, 1))
	all, err = c.LRange(ctx, key, 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"third", "second"}, all)

	// Range past the end is empty, not an error.
	out, err := c.LRange(ctx, key, 5, 10)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestMemoryCacheTrimPastEndClears(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.LPush(ctx, "l", "x"))
	require.NoError(t, c.LTrim(ctx, "l", 5, 10))

	out, err := c.LRange(ctx, "l", 0, -1)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestMemoryPubSubFanOut(t *testing.T) {
	ps := newMemoryPubSub(8)
	ctx := context.Background()

	ch1, cancel1, err := ps.Subscribe(ctx, "announce")
	require.NoError(t, err)
	defer cancel1()
	ch2, cancel2, err := ps.Subscribe(ctx, "announce")
	require.NoError(t, err)
	defer cancel2()

	require.NoError(t, ps.Publish(ctx, "announce", "hello"))

	for _, ch := range []<-chan *Message{ch1, ch2} {
		select {
		case msg := <-ch:
			assert.Equal(t, "announce", msg.Channel)
			assert.Equal(t, "hello", msg.Payload)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for message")
		}
	}
}

func TestMemoryPubSubUnsubscribe(t *testing.T) {
	ps := newMemoryPubSub(8)
	ctx := context.Background()

	ch, cancel, err := ps.Subscribe(ctx, "announce")
	require.NoError(t, err)
	cancel()

	require.NoError(t, ps.Publish(ctx, "announce", "after-cancel"))

	// Channel is closed and drained, nothing was delivered.
	msg, open := <-ch
	assert.Nil(t, msg)
	assert.False(t, open)
}

func TestMemoryPubSubSlowSubscriberDrops(t *testing.T) {
	ps := newMemoryPubSub(1)
	ctx := context.Background()

	ch, cancel, err := ps.Subscribe(ctx, "announce")
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, ps.Publish(ctx, "announce", "kept"))
	require.NoError(t, ps.Publish(ctx, "announce", "dropped"))

	msg := <-ch
	assert.Equal(t, "kept", msg.Payload)
	select {
	case extra := <-ch:
		t.Fatalf("expected drop, got %q", extra.Payload)
	default:
	}
}
