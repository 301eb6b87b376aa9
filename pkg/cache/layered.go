package cache

import (
	"context"
	"time"
)

// LayeredCache reads through a short-lived memory layer in front of Redis.
// Redis owns locks and the authoritative TTL. With a nil Redis layer it is a
// plain MemoryCache.
type LayeredCache struct {
	l1    *MemoryCache
	l2    *RedisCache
	l1TTL time.Duration
}

func NewLayeredCache(l2 *RedisCache, opts ...Option) *LayeredCache {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &LayeredCache{
		l1:    NewMemoryCache(opts...),
		l2:    l2,
		l1TTL: o.l1TTL,
	}
}

func (lc *LayeredCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if lc.l2 != nil {
		if err := lc.l2.Set(ctx, key, value, expiration); err != nil {
			return err
		}
	}
	return lc.l1.Set(ctx, key, value, lc.memoryTTL(expiration))
}

func (lc *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	if err := lc.l1.Get(ctx, key, dest); err == nil || lc.l2 == nil {
		return err
	}

	var raw []byte
	if err := lc.l2.Get(ctx, key, &raw); err != nil {
		return err
	}
	_ = lc.l1.Set(ctx, key, raw, lc.l1TTL)
	return decode(raw, dest)
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = lc.l1.Delete(ctx, keys...)
	if lc.l2 == nil {
		return nil
	}
	return lc.l2.Delete(ctx, keys...)
}

func (lc *LayeredCache) Exists(ctx context.Context, keys ...string) (bool, error) {
	if lc.l2 == nil {
		return lc.l1.Exists(ctx, keys...)
	}
	return lc.l2.Exists(ctx, keys...)
}

func (lc *LayeredCache) Lock(ctx context.Context, key string, ttl time.Duration) (Release, error) {
	if lc.l2 == nil {
		return lc.l1.Lock(ctx, key, ttl)
	}
	return lc.l2.Lock(ctx, key, ttl)
}

// Close stops the memory layer. The Redis client belongs to the caller.
func (lc *LayeredCache) Close() error {
	return lc.l1.Close()
}

// memoryTTL keeps other instances' deletes visible within l1TTL when Redis is
// shared.
func (lc *LayeredCache) memoryTTL(expiration time.Duration) time.Duration {
	if lc.l2 == nil || (expiration > 0 && expiration < lc.l1TTL) {
		return expiration
	}
	return lc.l1TTL
}
