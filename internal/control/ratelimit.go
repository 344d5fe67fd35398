package control

import (
	"sync"
	"time"
)

// RateLimiter limits connection attempts per remote host over a sliding
// window.
type RateLimiter struct {
	maxAttempts int
	window      time.Duration
	now         func() time.Time
	mu          sync.Mutex
	attempts    map[string][]time.Time
}

// NewRateLimiter creates a rate limiter allowing maxAttempts per window.
// A non-positive maxAttempts disables limiting.
func NewRateLimiter(maxAttempts int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		maxAttempts: maxAttempts,
		window:      window,
		now:         time.Now,
		attempts:    make(map[string][]time.Time),
	}
}

// Allow reports whether key may connect and records the attempt if so.
func (r *RateLimiter) Allow(key string) bool {
	if r == nil || r.maxAttempts <= 0 {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cutoff := now.Add(-r.window)

	existing := r.attempts[key]
	pruned := existing[:0]
	for _, t := range existing {
		if t.After(cutoff) {
			pruned = append(pruned, t)
		}
	}

	if len(pruned) >= r.maxAttempts {
		r.attempts[key] = pruned
		return false
	}

	r.attempts[key] = append(pruned, now)
	return true
}

// Reset clears all state.
func (r *RateLimiter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = make(map[string][]time.Time)
}
