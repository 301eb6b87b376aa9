package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter keeps one token bucket per key (client address plus route).
type Limiter struct {
	mu  sync.Mutex
	m   map[string]*entry
	now func() time.Time
	ttl time.Duration
}

func New() *Limiter {
	return &Limiter{m: make(map[string]*entry), now: time.Now, ttl: 10 * time.Minute}
}

// Allow reports whether one token can be consumed for key. The bucket for key
// holds capacity tokens and refills at refillPerSec. When denied, the second
// result is how long until a token is available.
func (l *Limiter) Allow(key string, capacity, refillPerSec float64) (bool, time.Duration) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.m[key]
	if !ok {
		burst := int(capacity)
		if burst < 1 {
			burst = 1
		}
		e = &entry{limiter: rate.NewLimiter(rate.Limit(refillPerSec), burst), lastSeen: now}
		l.m[key] = e
		l.sweep(now)
	}
	e.lastSeen = now
	if e.limiter.AllowN(now, 1) {
		return true, 0
	}
	r := e.limiter.ReserveN(now, 1)
	wait := r.DelayFrom(now)
	r.CancelAt(now)
	return false, wait
}

// sweep drops buckets idle for longer than ttl. Caller holds mu.
func (l *Limiter) sweep(now time.Time) {
	for k, e := range l.m {
		if now.Sub(e.lastSeen) > l.ttl {
			delete(l.m, k)
		}
	}
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
