package gateway

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// clientLimiter pairs a token bucket with its last use, so idle buckets can
// be evicted.
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter applies a per-client-IP token bucket.
type rateLimiter struct {
	clients map[string]*clientLimiter
	limit   rate.Limit
	burst   int
	mu      sync.Mutex
}

// newRateLimiter creates a limiter allowing requestsPerMin sustained requests
// per client, with the same value as burst capacity. Zero or negative
// disables limiting.
func newRateLimiter(requestsPerMin int) *rateLimiter {
	r := &rateLimiter{
		clients: make(map[string]*clientLimiter),
	}
	if requestsPerMin > 0 {
		r.limit = rate.Limit(float64(requestsPerMin) / 60.0)
		r.burst = requestsPerMin
	}
	return r
}

// Allow reports whether a request from the client IP may proceed.
func (r *rateLimiter) Allow(clientIP string) bool {
	if r.burst <= 0 {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cl, ok := r.clients[clientIP]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.clients[clientIP] = cl
	}
	cl.lastSeen = time.Now()
	return cl.limiter.Allow()
}

// cleanup removes buckets idle longer than maxIdle.
func (r *rateLimiter) cleanup(maxIdle time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-maxIdle)
	for ip, cl := range r.clients {
		if cl.lastSeen.Before(cutoff) {
			delete(r.clients, ip)
		}
	}
}

// startCleanupRoutine evicts idle buckets in the background.
func (r *rateLimiter) startCleanupRoutine() {
	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()

		for range ticker.C {
			r.cleanup(time.Hour)
		}
	}()
}
