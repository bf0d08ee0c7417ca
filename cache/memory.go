package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value    string
	deadline time.Time // zero means no expiry
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.deadline.IsZero() && now.After(e.deadline)
}

// memoryCache keeps sessions and history in process memory. A janitor
// goroutine evicts expired keys; reads also drop expired entries so
// correctness never depends on the janitor interval.
type memoryCache struct {
	mu    sync.Mutex
	kv    map[string]memoryEntry
	lists map[string][]string
	stop  chan struct{}
}

func newMemoryCache(gcInterval time.Duration) *memoryCache {
	if gcInterval <= 0 {
		gcInterval = 30 * time.Second
	}
	c := &memoryCache{
		kv:    make(map[string]memoryEntry),
		lists: make(map[string][]string),
		stop:  make(chan struct{}),
	}
	go c.janitor(gcInterval)
	return c
}

func (c *memoryCache) Close() {
	close(c.stop)
}

func (c *memoryCache) janitor(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			now := time.Now()
			c.mu.Lock()
			for k, e := range c.kv {
				if e.expired(now) {
					delete(c.kv, k)
				}
			}
			c.mu.Unlock()
		case <-c.stop:
			return
		}
	}
}

func (c *memoryCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.kv[key]
	if !ok || e.expired(time.Now()) {
		delete(c.kv, key)
		return "", ErrNotFound
	}
	return e.value, nil
}

func (c *memoryCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	e := memoryEntry{value: value}
	if ttl > 0 {
		e.deadline = time.Now().Add(ttl)
	}
	c.mu.Lock()
	c.kv[key] = e
	c.mu.Unlock()
	return nil
}

func (c *memoryCache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	for _, k := range keys {
		delete(c.kv, k)
		delete(c.lists, k)
	}
	c.mu.Unlock()
	return nil
}

func (c *memoryCache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.kv[key]
	if !ok {
		return false, nil
	}
	if e.expired(time.Now()) {
		delete(c.kv, key)
		return false, nil
	}
	return true, nil
}

func (c *memoryCache) LPush(_ context.Context, key string, values ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	l := c.lists[key]
	for _, v := range values {
		l = append([]string{v}, l...)
	}
	c.lists[key] = l
	return nil
}

// clampRange maps a Redis-style start/stop onto a slice of length n.
// Negative stop counts from the end, -1 meaning the last element.
func clampRange(start, stop, n int64) (int64, int64, bool) {
	if stop < 0 {
		stop = n + stop
	}
	if start < 0 {
		start = 0
	}
	if start >= n || stop < start {
		return 0, 0, false
	}
	if stop >= n {
		stop = n - 1
	}
	return start, stop, true
}

func (c *memoryCache) LRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l := c.lists[key]
	lo, hi, ok := clampRange(start, stop, int64(len(l)))
	if !ok {
		return nil, nil
	}
	out := make([]string, hi-lo+1)
	copy(out, l[lo:hi+1])
	return out, nil
}

func (c *memoryCache) LTrim(_ context.Context, key string, start, stop int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	l := c.lists[key]
	lo, hi, ok := clampRange(start, stop, int64(len(l)))
	if !ok {
		delete(c.lists, key)
		return nil
	}
	c.lists[key] = l[lo : hi+1]
	return nil
}

// memoryPubSub fans messages out to per-subscriber buffered channels.
// A slow subscriber drops messages rather than blocking the publisher,
// matching Redis pub/sub delivery semantics.
type memoryPubSub struct {
	mu   sync.RWMutex
	subs map[string][]chan *Message
	buf  int
}

func newMemoryPubSub(buf int) *memoryPubSub {
	if buf <= 0 {
		buf = 256
	}
	return &memoryPubSub{
		subs: make(map[string][]chan *Message),
		buf:  buf,
	}
}

func (ps *memoryPubSub) Publish(_ context.Context, channel, message string) error {
	msg := &Message{Channel: channel, Payload: message}
	ps.mu.RLock()
	targets := ps.subs[channel]
	ps.mu.RUnlock()
	for _, ch := range targets {
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

func (ps *memoryPubSub) Subscribe(_ context.Context, channels ...string) (<-chan *Message, func(), error) {
	ch := make(chan *Message, ps.buf)

	ps.mu.Lock()
	for _, c := range channels {
		ps.subs[c] = append(ps.subs[c], ch)
	}
	ps.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			ps.mu.Lock()
			for _, c := range channels {
				list := ps.subs[c]
				for i, sub := range list {
					if sub == ch {
						ps.subs[c] = append(list[:i], list[i+1:]...)
						break
					}
				}
			}
			ps.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel, nil
}
