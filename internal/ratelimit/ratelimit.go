// Package ratelimit implements the crawl engine's dual token-bucket rate
// limiting (§4.3.1): one global bucket bounding total request rate, and one
// per-origin bucket so a single slow host cannot starve the others. The
// per-origin bucket map follows the teacher's per-key health-state idiom
// from PagePool.pageHealth, generalized to a concurrent map with a
// background sweep that evicts origins that have gone quiet.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config sets the global and per-origin request rates.
type Config struct {
	GlobalRPS   float64
	GlobalBurst int
	PerOriginRPS   float64
	PerOriginBurst int
	// IdleEvictAfter is how long an origin bucket may sit unused before the
	// sweep reclaims it. Zero disables eviction.
	IdleEvictAfter time.Duration
}

type originBucket struct {
	limiter    *rate.Limiter
	lastUsedAt time.Time
}

// Limiter enforces the global and per-origin token buckets.
type Limiter struct {
	cfg    Config
	global *rate.Limiter

	mu      sync.Mutex
	origins map[string]*originBucket

	stopSweep chan struct{}
}

// New constructs a Limiter and starts its background eviction sweep if
// IdleEvictAfter is set.
func New(cfg Config) *Limiter {
	if cfg.GlobalBurst <= 0 {
		cfg.GlobalBurst = 1
	}
	if cfg.PerOriginBurst <= 0 {
		cfg.PerOriginBurst = 1
	}
	l := &Limiter{
		cfg:     cfg,
		global:  rate.NewLimiter(rate.Limit(cfg.GlobalRPS), cfg.GlobalBurst),
		origins: make(map[string]*originBucket),
	}
	if cfg.IdleEvictAfter > 0 {
		l.stopSweep = make(chan struct{})
		go l.sweepLoop()
	}
	return l
}

// Acquire blocks until both the global and the origin's bucket admit one
// request, or ctx is cancelled. Requests queue in arrival order per origin
// because rate.Limiter.Wait serves reservations FIFO.
func (l *Limiter) Acquire(ctx context.Context, origin string) error {
	if err := l.global.Wait(ctx); err != nil {
		return err
	}
	bucket := l.bucketFor(origin)
	return bucket.limiter.Wait(ctx)
}

func (l *Limiter) bucketFor(origin string) *originBucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.origins[origin]
	if !ok {
		b = &originBucket{
			limiter: rate.NewLimiter(rate.Limit(l.cfg.PerOriginRPS), l.cfg.PerOriginBurst),
		}
		l.origins[origin] = b
	}
	b.lastUsedAt = time.Now()
	return b
}

func (l *Limiter) sweepLoop() {
	ticker := time.NewTicker(l.cfg.IdleEvictAfter)
	defer ticker.Stop()
	for {
		select {
		case <-l.stopSweep:
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

func (l *Limiter) sweep() {
	cutoff := time.Now().Add(-l.cfg.IdleEvictAfter)
	l.mu.Lock()
	defer l.mu.Unlock()
	for origin, b := range l.origins {
		if b.lastUsedAt.Before(cutoff) {
			delete(l.origins, origin)
		}
	}
}

// OriginCount reports how many per-origin buckets are currently tracked,
// mainly for tests and diagnostics.
func (l *Limiter) OriginCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.origins)
}

// Close stops the background sweep goroutine, if running.
func (l *Limiter) Close() {
	if l.stopSweep != nil {
		close(l.stopSweep)
	}
}
