// Package ratelimit implements the per-client admission gate.
//
// The limiter keeps a sliding log of request timestamps per client key,
// pruned on every check, so exactly limit requests are admitted per rolling
// window with no burst-at-boundary admission. State is purely in-memory.
package ratelimit

import (
	"sync"
	"time"
)

type Limiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	clients map[string][]time.Time

	now func() time.Time
}

func New(limit int, window time.Duration) *Limiter {
	return &Limiter{
		limit:   limit,
		window:  window,
		clients: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// Admit records a request under the given client key and reports whether it
// is within the rate limit. A rejected request is not recorded.
func (l *Limiter) Admit(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	log := prune(l.clients[key], now.Add(-l.window))

	if len(log) >= l.limit {
		l.clients[key] = log
		return false
	}

	l.clients[key] = append(log, now)
	return true
}

// EvictStale removes client entries whose window has fully elapsed with no
// new requests. Called periodically by the cleanup scheduler; Admit already
// drops an individual key's stale timestamps lazily.
func (l *Limiter) EvictStale() {
	l.mu.Lock()
	defer l.mu.Unlock()

	horizon := l.now().Add(-l.window)
	for key, log := range l.clients {
		if len(prune(log, horizon)) == 0 {
			delete(l.clients, key)
		}
	}
}

func prune(log []time.Time, horizon time.Time) []time.Time {
	kept := log[:0]
	for _, t := range log {
		if t.After(horizon) {
			kept = append(kept, t)
		}
	}
	return kept
}
