package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultMemoryTTL = 24 * time.Hour

type entry struct {
	key      string
	value    []byte
	expireAt time.Time
}

// MemoryCache is a bounded in-process LRU with per-entry expiry.
type MemoryCache struct {
	mu      sync.Mutex
	items   map[string]*list.Element
	order   *list.List // front = most recently used
	max     int
	now     func() time.Time
	stop    chan struct{}
	stopped sync.Once
}

func NewMemoryCache(opts ...Option) *MemoryCache {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	mc := &MemoryCache{
		items: make(map[string]*list.Element),
		order: list.New(),
		max:   o.maxEntries,
		now:   time.Now,
		stop:  make(chan struct{}),
	}
	go mc.sweep(o.sweep)
	return mc
}

func (mc *MemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	if expiration <= 0 {
		expiration = defaultMemoryTTL
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.putLocked(key, data, mc.now().Add(expiration))
	return nil
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	mc.mu.Lock()
	e, ok := mc.liveLocked(key)
	if !ok {
		mc.mu.Unlock()
		return ErrCacheMiss
	}
	mc.order.MoveToFront(mc.items[key])
	data := e.value
	mc.mu.Unlock()

	return decode(data, dest)
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, key := range keys {
		mc.removeLocked(key)
	}
	return nil
}

func (mc *MemoryCache) Exists(_ context.Context, keys ...string) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, key := range keys {
		if _, ok := mc.liveLocked(key); ok {
			return true, nil
		}
	}
	return false, nil
}

// Lock takes key for ttl. Locks share the LRU with cached values, so a full
// cache can evict an unreleased lock.
func (mc *MemoryCache) Lock(_ context.Context, key string, ttl time.Duration) (Release, error) {
	k := lockKey(key)
	token := []byte(uuid.NewString())

	mc.mu.Lock()
	defer mc.mu.Unlock()
	if _, held := mc.liveLocked(k); held {
		return nil, ErrLocked
	}
	mc.putLocked(k, token, mc.now().Add(ttl))

	return func(context.Context) error {
		mc.mu.Lock()
		defer mc.mu.Unlock()
		if e, ok := mc.liveLocked(k); ok && string(e.value) == string(token) {
			mc.removeLocked(k)
		}
		return nil
	}, nil
}

// Len returns the number of stored entries, expired ones included.
func (mc *MemoryCache) Len() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.order.Len()
}

// Close stops the sweeper.
func (mc *MemoryCache) Close() error {
	mc.stopped.Do(func() { close(mc.stop) })
	return nil
}

func (mc *MemoryCache) putLocked(key string, data []byte, expireAt time.Time) {
	if el, ok := mc.items[key]; ok {
		e := el.Value.(*entry)
		e.value, e.expireAt = data, expireAt
		mc.order.MoveToFront(el)
		return
	}
	if mc.order.Len() >= mc.max {
		if last := mc.order.Back(); last != nil {
			mc.removeLocked(last.Value.(*entry).key)
		}
	}
	mc.items[key] = mc.order.PushFront(&entry{key: key, value: data, expireAt: expireAt})
}

// liveLocked returns the entry for key, dropping it when expired.
func (mc *MemoryCache) liveLocked(key string) (*entry, bool) {
	el, ok := mc.items[key]
	if !ok {
		return nil, false
	}
	e := el.Value.(*entry)
	if mc.now().After(e.expireAt) {
		mc.removeLocked(key)
		return nil, false
	}
	return e, true
}

func (mc *MemoryCache) removeLocked(key string) {
	if el, ok := mc.items[key]; ok {
		mc.order.Remove(el)
		delete(mc.items, key)
	}
}

func (mc *MemoryCache) sweep(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-mc.stop:
			return
		case <-t.C:
		}
		mc.mu.Lock()
		now := mc.now()
		for el := mc.order.Back(); el != nil; {
			prev := el.Prev()
			if e := el.Value.(*entry); now.After(e.expireAt) {
				mc.removeLocked(e.key)
			}
			el = prev
		}
		mc.mu.Unlock()
	}
}
