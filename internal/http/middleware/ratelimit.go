package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"rdw-proxy/internal/metrics"
)

// RateLimiter hands out one token bucket per client. A client may spend max
// requests at once and regains them evenly over window.
type RateLimiter struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	limit   rate.Limit
	max     int
	window  time.Duration
	idleTTL time.Duration
}

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func NewRateLimiter(window time.Duration, max int) *RateLimiter {
	return &RateLimiter{
		entries: make(map[string]*limiterEntry),
		limit:   rate.Limit(float64(max) / window.Seconds()),
		max:     max,
		window:  window,
		idleTTL: 2 * window,
	}
}

func (r *RateLimiter) get(key string) *rate.Limiter {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if ent, ok := r.entries[key]; ok {
		ent.lastSeen = now
		return ent.lim
	}

	lim := rate.NewLimiter(r.limit, r.max)
	r.entries[key] = &limiterEntry{lim: lim, lastSeen: now}
	return lim
}

// Cleanup drops limiters of clients that have been idle long enough to be
// back at a full bucket.
func (r *RateLimiter) Cleanup() {
	cutoff := time.Now().Add(-r.idleTTL)

	r.mu.Lock()
	defer r.mu.Unlock()

	for k, ent := range r.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(r.entries, k)
		}
	}
}

func (r *RateLimiter) StartJanitor(ctx context.Context) {
	t := time.NewTicker(r.window)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				r.Cleanup()
			}
		}
	}()
}

func (r *RateLimiter) retryAfter() int {
	secs := math.Ceil(1 / float64(r.limit))
	if secs < 1 {
		return 1
	}
	return int(secs)
}

// RateLimit rejects clients that exhausted their bucket with 429.
func RateLimit(limiter *RateLimiter, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		lim := limiter.get(c.ClientIP())
		allowed := lim.Allow()

		c.Header("RateLimit-Limit", strconv.Itoa(limiter.max))
		c.Header("RateLimit-Remaining", strconv.Itoa(int(math.Max(0, math.Floor(lim.Tokens())))))

		if !allowed {
			m.RecordRateLimited()
			c.Header("Retry-After", strconv.Itoa(limiter.retryAfter()))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}

		c.Next()
	}
}
