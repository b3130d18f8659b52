// Package cache provides the read-through balance cache used by
// internal/ledger. It prefers Redis (grounded on the teacher's
// internal/infrastructure/store/redis.go wrapper) and falls back to an
// in-process patrickmn/go-cache store when no Redis URL is configured, so
// the ledger behaves the same in a single-instance dev setup and in a
// multi-instance deployment.
package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// Cache is the minimal read/write/invalidate surface the ledger needs.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration)
	Delete(ctx context.Context, key string)
}

// NewRedis connects to url (e.g. "redis://localhost:6379/0") and returns a
// Cache backed by it.
func NewRedis(url string) (Cache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &redisCache{client: redis.NewClient(opt)}, nil
}

// NewMemory returns a Cache backed by an in-process go-cache store with the
// given default TTL and a cleanup sweep every 2x that TTL.
func NewMemory(ttl time.Duration) Cache {
	return &memoryCache{store: gocache.New(ttl, 2*ttl)}
}

type redisCache struct {
	client *redis.Client
}

func (c *redisCache) Get(ctx context.Context, key string) (string, bool) {
	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		return "", false
	}
	return val, true
}

func (c *redisCache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	c.client.Set(ctx, key, value, ttl)
}

func (c *redisCache) Delete(ctx context.Context, key string) {
	c.client.Del(ctx, key)
}

type memoryCache struct {
	store *gocache.Cache
}

func (c *memoryCache) Get(_ context.Context, key string) (string, bool) {
	val, ok := c.store.Get(key)
	if !ok {
		return "", false
	}
	s, _ := val.(string)
	return s, true
}

func (c *memoryCache) Set(_ context.Context, key, value string, ttl time.Duration) {
	c.store.Set(key, value, ttl)
}

func (c *memoryCache) Delete(_ context.Context, key string) {
	c.store.Delete(key)
}
