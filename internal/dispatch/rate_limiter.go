package dispatch

import (
	"sync"
	"time"
)

// RateLimiter implements per-user rate limiting of assistant requests
// ARCHITECTURAL DISCOVERY: Per-client state tracking with proper cleanup prevents memory leaks
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientLimit
	limit   int
	window  time.Duration
	now     func() time.Time
}

// clientLimit tracks one user's current window
type clientLimit struct {
	count       int
	windowStart time.Time
}

// NewRateLimiter allows limit requests per window for each user. A limit
// of zero or less disables limiting.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		clients: make(map[string]*clientLimit),
		limit:   limit,
		window:  window,
		now:     time.Now,
	}
}

// Allow records one request for userID and reports whether it fits the window
func (rl *RateLimiter) Allow(userID string) bool {
	if rl.limit <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()

	state, exists := rl.clients[userID]
	if !exists {
		// FUNCTIONAL DISCOVERY: First request always allowed, initialize tracking
		rl.clients[userID] = &clientLimit{count: 1, windowStart: now}
		return true
	}

	// TECHNICAL DISCOVERY: Window resets a full period after it opened
	if now.Sub(state.windowStart) >= rl.window {
		state.count = 1
		state.windowStart = now
		return true
	}

	if state.count >= rl.limit {
		return false
	}

	state.count++
	return true
}

// Cleanup removes users idle for five windows
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for userID, state := range rl.clients {
		if now.Sub(state.windowStart) > 5*rl.window {
			delete(rl.clients, userID)
		}
	}
}

// Tracked returns the number of users with live window state.
func (rl *RateLimiter) Tracked() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}
