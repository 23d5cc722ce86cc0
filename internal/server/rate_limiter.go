// Package server implements a fixed-window rate limiter keyed by connection
// identity that protects the hub from chat floods.
package server

import (
	"sync"
	"time"
)

type rateEntry struct {
	count   int
	resetAt time.Time
}

// RateLimiter counts inbound events per identity in discrete windows.
// A window opens on the first event and lasts for the configured length;
// once it has expired the next event opens a fresh one. Bursts straddling a
// window boundary can briefly reach twice the nominal rate.
type RateLimiter struct {
	mu      sync.Mutex
	entries map[string]*rateEntry
	max     int
	window  time.Duration
	now     func() time.Time
}

// NewRateLimiter creates a limiter allowing max events per window.
// Non-positive arguments fall back to 10 events per second.
func NewRateLimiter(max int, window time.Duration) *RateLimiter {
	if max <= 0 {
		max = defaultRateLimitMax
	}
	if window <= 0 {
		window = defaultRateLimitWindow
	}

	return &RateLimiter{
		entries: make(map[string]*rateEntry),
		max:     max,
		window:  window,
		now:     time.Now,
	}
}

// Allow records one event for id and reports whether it is within the limit.
func (rl *RateLimiter) Allow(id string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	entry, ok := rl.entries[id]
	if !ok {
		rl.entries[id] = &rateEntry{count: 1, resetAt: now.Add(rl.window)}
		return true
	}

	if now.After(entry.resetAt) {
		entry.count = 1
		entry.resetAt = now.Add(rl.window)
		return true
	}

	entry.count++
	return entry.count <= rl.max
}

// Forget drops the entry for id. It must run when the owning session ends.
func (rl *RateLimiter) Forget(id string) {
	rl.mu.Lock()
	delete(rl.entries, id)
	rl.mu.Unlock()
}

// Len returns the number of tracked identities.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.entries)
}
