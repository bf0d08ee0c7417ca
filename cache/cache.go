// Package cache provides the session store, the announcement history
// list and the pub/sub channel behind one small interface, backed by
// Redis when an address is configured and by an in-process store
// otherwise.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("cache: key not found")

// Cache is the key/value and list surface the tracker uses: string
// values with TTLs for auth sessions, and a bounded list for the
// announcement history.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)

	LPush(ctx context.Context, key string, values ...string) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	LTrim(ctx context.Context, key string, start, stop int64) error
}

// Message is a received pub/sub message.
type Message struct {
	Channel string
	Payload string
}

// PubSub carries announcements between the watcher and the WS/SSE fans.
type PubSub interface {
	Publish(ctx context.Context, channel, message string) error
	Subscribe(ctx context.Context, channels ...string) (<-chan *Message, func(), error)
}

// CacheConfig selects and tunes the backend. An empty RedisAddr means
// the in-process backend.
type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
	LocalPubSubBuf  int           `mapstructure:"local_pubsub_buf"`
}

// NewCache returns a Redis-backed Cache when RedisAddr is set and an
// in-process one otherwise.
func NewCache(cfg CacheConfig) (Cache, error) {
	if cfg.RedisAddr != "" {
		return newRedisCache(cfg)
	}
	return newMemoryCache(cfg.LocalGCInterval), nil
}

// NewPubSub mirrors NewCache for the pub/sub side.
func NewPubSub(cfg CacheConfig) (PubSub, error) {
	if cfg.RedisAddr != "" {
		return newRedisPubSub(cfg)
	}
	return newMemoryPubSub(cfg.LocalPubSubBuf), nil
}
