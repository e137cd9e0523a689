package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type entry struct {
	lim  *rate.Limiter
	last time.Time
}

// Limiter hands out one token bucket per key. Buckets idle for longer than
// the TTL are dropped on the next sweep.
type Limiter struct {
	mu    sync.Mutex
	m     map[string]*entry
	limit rate.Limit
	burst int
	ttl   time.Duration
	now   func() time.Time
}

// New returns a limiter refilling perSec tokens per second up to burst.
// perSec <= 0 disables limiting.
func New(perSec float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 1
	}
	l := rate.Limit(perSec)
	if perSec <= 0 {
		l = rate.Inf
	}
	return &Limiter{
		m:     make(map[string]*entry),
		limit: l,
		burst: burst,
		ttl:   10 * time.Minute,
		now:   time.Now,
	}
}

// Allow consumes one token for key.
func (l *Limiter) Allow(key string) bool {
	if l.limit == rate.Inf {
		return true
	}
	now := l.now()
	l.mu.Lock()
	e, ok := l.m[key]
	if !ok {
		e = &entry{lim: rate.NewLimiter(l.limit, l.burst)}
		l.m[key] = e
	}
	e.last = now
	l.mu.Unlock()
	return e.lim.AllowN(now, 1)
}

// Sweep drops idle buckets and returns how many were removed.
func (l *Limiter) Sweep() int {
	cutoff := l.now().Add(-l.ttl)
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for k, e := range l.m {
		if e.last.Before(cutoff) {
			delete(l.m, k)
			n++
		}
	}
	return n
}

// Len reports the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
