// Package ratelimit hands out per-client token buckets.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/time/rate"
)

type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// Limiter keys buckets by a BLAKE2b digest of the client identifier so raw
// addresses never sit in memory longer than one call.
type Limiter struct {
	limit rate.Limit
	burst int
	idle  time.Duration
	now   func() time.Time

	mu      sync.Mutex
	buckets map[[blake2b.Size256]byte]*bucket
}

// New returns a limiter allowing rps requests per second with the given
// burst. A non-positive rps disables limiting.
func New(rps float64, burst int, idle time.Duration) *Limiter {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	return &Limiter{
		limit:   limit,
		burst:   max(burst, 1),
		idle:    idle,
		now:     time.Now,
		buckets: make(map[[blake2b.Size256]byte]*bucket),
	}
}

// Check consumes one token for id when one is available. A denied request
// consumes nothing and reports how long until the next token.
func (l *Limiter) Check(id string) Decision {
	return l.CheckAt(id, l.now())
}

func (l *Limiter) CheckAt(id string, now time.Time) Decision {
	if l.limit == rate.Inf {
		return Decision{Allowed: true}
	}
	key := blake2b.Sum256([]byte(id))

	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	r := b.lim.ReserveN(now, 1)
	if !r.OK() {
		return Decision{RetryAfter: time.Second}
	}
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return Decision{RetryAfter: d}
	}
	return Decision{Allowed: true}
}

// Prune drops buckets untouched for longer than the idle window and
// returns how many were removed.
func (l *Limiter) Prune(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for k, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.idle {
			delete(l.buckets, k)
			n++
		}
	}
	return n
}

func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
