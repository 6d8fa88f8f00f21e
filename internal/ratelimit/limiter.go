// Package ratelimit throttles remote submissions per client.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Decision is the outcome of one check.
type Decision struct {
	Allowed    bool
	Limit      int           // requests per window
	Remaining  int           // whole tokens left
	RetryAfter time.Duration // zero when allowed
}

// Limiter keeps one token bucket per key.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    rate.Limit
	burst   int
	limit   int
	idle    time.Duration
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

type bucket struct {
	tokens   *rate.Limiter
	lastSeen time.Time
}

// NewLimiter allows requests per window per key, with bursts up to burst.
func NewLimiter(requests int, window time.Duration, burst int) *Limiter {
	if burst <= 0 {
		burst = 1
	}
	l := &Limiter{
		buckets: make(map[string]*bucket),
		rate:    rate.Limit(float64(requests) / window.Seconds()),
		burst:   burst,
		limit:   requests,
		idle:    10 * time.Minute,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go l.sweepLoop()
	return l
}

// Allow consumes one token for key if available.
func (l *Limiter) Allow(key string) Decision {
	now := l.now()

	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: rate.NewLimiter(l.rate, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	r := b.tokens.ReserveN(now, 1)
	d := Decision{Limit: l.limit}
	if r.OK() && r.DelayFrom(now) == 0 {
		d.Allowed = true
	} else {
		if r.OK() {
			d.RetryAfter = r.DelayFrom(now)
			r.CancelAt(now)
		}
		if d.RetryAfter < time.Second {
			d.RetryAfter = time.Second
		}
	}
	d.Remaining = max(int(b.tokens.TokensAt(now)), 0)
	return d
}

func (l *Limiter) sweepLoop() {
	ticker := time.NewTicker(l.idle)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.stop:
			return
		}
	}
}

// sweep drops full buckets of keys not seen recently.
func (l *Limiter) sweep() int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.idle && b.tokens.TokensAt(now) >= float64(l.burst) {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// Close stops the sweeper.
func (l *Limiter) Close() {
	l.once.Do(func() { close(l.stop) })
}
