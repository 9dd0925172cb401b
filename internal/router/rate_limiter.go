package router

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Default token bucket for one participant
const (
	DefaultCommandsPerSecond = 20
	DefaultBurst             = 40
)

// RateLimiter implements per-participant rate limiting
// ARCHITECTURAL DISCOVERY: Per-participant state tracking with proper cleanup prevents memory leaks
type RateLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	clients map[string]*clientLimit
}

// clientLimit is one participant's token bucket
type clientLimit struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter allowing perSecond commands with bursts up
// to burst. A non-positive perSecond disables limiting.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}

	return &RateLimiter{
		limit:   limit,
		burst:   burst,
		clients: make(map[string]*clientLimit),
	}
}

// Allow reports whether the participant identified by key may send now
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()

	client, exists := rl.clients[key]
	if !exists {
		client = &clientLimit{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[key] = client
	}
	client.lastSeen = now

	return client.limiter.AllowN(now, 1)
}

// Forget drops the state of one participant
func (rl *RateLimiter) Forget(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.clients, key)
}

// Cleanup removes participants idle for longer than maxIdle
func (rl *RateLimiter) Cleanup(maxIdle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	now := time.Now()
	for key, client := range rl.clients {
		if now.Sub(client.lastSeen) > maxIdle {
			delete(rl.clients, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked participants
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}
