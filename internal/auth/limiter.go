package auth

import (
	"sync"
	"time"
)

// RateLimiter counts attempts per key (client IP) inside a fixed window.
// Used on the login/register paths to slow down credential stuffing.
type RateLimiter struct {
	attempts map[string]int
	limit    int
	mu       sync.Mutex
	window   time.Duration
	done     chan struct{}
}

// NewRateLimiter returns a limiter allowing limit attempts per window.
// Call Stop to release the reset goroutine when the limiter is no longer needed.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		attempts: make(map[string]int),
		limit:    limit,
		window:   window,
		done:     make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

// cleanup resets the counters every window until Stop is called.
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.mu.Lock()
			rl.attempts = make(map[string]int)
			rl.mu.Unlock()
		case <-rl.done:
			return
		}
	}
}

// Stop ends the reset goroutine. Allow keeps working afterwards, but the
// counters no longer reset.
func (rl *RateLimiter) Stop() {
	close(rl.done)
}

// Allow reports whether key may make another attempt in the current window.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.attempts[key] >= rl.limit {
		return false
	}
	rl.attempts[key]++
	return true
}
