// Package rate provides a per-client-address fixed-window request limiter.
// It is an explicit, injectable component with bounded memory; it is not a
// security control and is independent of per-account lockout state.
package rate

import (
	"sync"
	"time"
)

// Config tunes the limiter. Zero values fall back to the defaults used by
// the login endpoints: 100 requests per 15 minutes, at most 10000 tracked
// addresses.
type Config struct {
	MaxRequests int
	Window      time.Duration
	MaxEntries  int
}

func (c Config) withDefaults() Config {
	if c.MaxRequests == 0 {
		c.MaxRequests = 100
	}
	if c.Window == 0 {
		c.Window = 15 * time.Minute
	}
	if c.MaxEntries == 0 {
		c.MaxEntries = 10000
	}
	return c
}

type window struct {
	start time.Time
	count int
}

// Limiter counts requests per key in fixed windows. Safe for concurrent use.
type Limiter struct {
	cfg Config

	mu      sync.Mutex
	entries map[string]*window
	now     func() time.Time
}

func NewLimiter(cfg Config) *Limiter {
	return &Limiter{
		cfg:     cfg.withDefaults(),
		entries: make(map[string]*window),
		now:     time.Now,
	}
}

// Allow records one request for the key and reports whether it is within
// budget for the current window.
func (l *Limiter) Allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.entries[key]
	if !ok || now.Sub(w.start) >= l.cfg.Window {
		if !ok && len(l.entries) >= l.cfg.MaxEntries {
			l.evictExpired(now)
		}
		l.entries[key] = &window{start: now, count: 1}
		return true
	}

	w.count++
	return w.count <= l.cfg.MaxRequests
}

// evictExpired drops windows that have already closed. If nothing has
// expired the map may briefly exceed MaxEntries by the new insert; the next
// full window boundary reclaims it.
func (l *Limiter) evictExpired(now time.Time) {
	for k, w := range l.entries {
		if now.Sub(w.start) >= l.cfg.Window {
			delete(l.entries, k)
		}
	}
}

// Len reports the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
