package cache

import "time"

type options struct {
	maxEntries int
	sweep      time.Duration
	l1TTL      time.Duration
}

func defaultOptions() options {
	return options{
		maxEntries: 1000,
		sweep:      5 * time.Minute,
		l1TTL:      30 * time.Second,
	}
}

// Option tunes MemoryCache and the memory layer of LayeredCache.
type Option func(*options)

// WithMaxEntries bounds the number of in-process entries; the least recently
// read one is evicted first.
func WithMaxEntries(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxEntries = n
		}
	}
}

// WithSweepInterval sets how often expired entries are purged.
func WithSweepInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.sweep = d
		}
	}
}

// WithL1TTL caps how long a value read through from Redis stays in memory.
func WithL1TTL(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.l1TTL = d
		}
	}
}
