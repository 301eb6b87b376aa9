package cache

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrCacheMiss = errors.New("cache: key not found")
	// ErrLocked is returned by Lock when another holder owns the key.
	ErrLocked = errors.New("cache: key is locked")
)

// Release gives a lock back. It is a no-op once the lock expired and was
// taken by someone else.
type Release func(ctx context.Context) error

// Service is the cache used for recommendation reports and training locks.
// Values are JSON encoded except strings and byte slices; Get decodes into dest.
type Service interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, keys ...string) (bool, error)
	Lock(ctx context.Context, key string, ttl time.Duration) (Release, error)
}

var (
	_ Service = (*MemoryCache)(nil)
	_ Service = (*RedisCache)(nil)
	_ Service = (*LayeredCache)(nil)
)

// Key joins parts with ":", e.g. Key("recommend", "TCS.NS").
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

// lockKey namespaces lock entries away from cached values.
func lockKey(key string) string {
	return "lock:" + key
}
