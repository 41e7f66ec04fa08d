package server

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/raaihank/text-anonymizer/internal/config"
)

// clientLimiter keeps one token bucket per client IP
type clientLimiter struct {
	limit   rate.Limit
	burst   int
	clients map[string]*clientBucket
	mu      sync.Mutex
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientLimiter(cfg config.RateLimitConfig) *clientLimiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &clientLimiter{
		limit:   rate.Limit(cfg.RequestsPerSecond),
		burst:   burst,
		clients: make(map[string]*clientBucket),
	}
}

// Allow checks if a request from the given client IP is allowed
func (l *clientLimiter) Allow(clientIP string) bool {
	l.mu.Lock()
	bucket, ok := l.clients[clientIP]
	if !ok {
		bucket = &clientBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[clientIP] = bucket
	}
	bucket.lastSeen = time.Now()
	l.mu.Unlock()

	return bucket.limiter.Allow()
}

// cleanup removes buckets that have been idle longer than maxIdle
func (l *clientLimiter) cleanup(maxIdle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	cutoff := time.Now().Add(-maxIdle)
	for ip, bucket := range l.clients {
		if bucket.lastSeen.Before(cutoff) {
			delete(l.clients, ip)
			removed++
		}
	}
	return removed
}

func (l *clientLimiter) cleanupLoop(ctx context.Context, every, maxIdle time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.cleanup(maxIdle)
		}
	}
}
