// Package ratelimit implements a fixed-window per-actor throttle backed by a TTL
// cache. Exceeding the limit is a reportable security event, never a silent drop.
package ratelimit

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Limiter counts attempts per actor within a rolling window.
type Limiter struct {
	limit   int
	counter *gocache.Cache
	mu      sync.Mutex
}

// New returns a limiter allowing limit attempts per actor per window.
func New(limit int, window time.Duration) *Limiter {
	return &Limiter{
		limit:   limit,
		counter: gocache.New(window, 2*window),
	}
}

// Allow records one attempt for actor and reports whether it is within the limit.
func (l *Limiter) Allow(actor string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	n, err := l.counter.IncrementInt(actor, 1)
	if err != nil {
		l.counter.SetDefault(actor, 1)
		return l.limit >= 1
	}
	return n <= l.limit
}
