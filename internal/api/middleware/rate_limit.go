package middleware

import (
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gary-ai/backend/pkg/utils"
)

// ClientRateLimiter implements sliding-window rate limiting keyed by
// client. Used in front of the proxy endpoints so one front-end session
// cannot burn the upstream API quotas.
type ClientRateLimiter struct {
	mu          sync.RWMutex
	requests    map[string][]time.Time
	maxRequests int
	window      time.Duration
}

// NewClientRateLimiter creates a limiter allowing maxRequests per window
// per client key.
func NewClientRateLimiter(maxRequests int, window time.Duration) *ClientRateLimiter {
	return &ClientRateLimiter{
		requests:    make(map[string][]time.Time),
		maxRequests: maxRequests,
		window:      window,
	}
}

// Allow checks if a request is allowed for the given client key.
func (rl *ClientRateLimiter) Allow(key string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rl.cleanupOldRequests(key, now)

	if len(rl.requests[key]) >= rl.maxRequests {
		return fmt.Errorf("rate limit exceeded: maximum %d requests per %v", rl.maxRequests, rl.window)
	}

	rl.requests[key] = append(rl.requests[key], now)
	return nil
}

// cleanupOldRequests removes requests outside the time window
func (rl *ClientRateLimiter) cleanupOldRequests(key string, now time.Time) {
	requests, exists := rl.requests[key]
	if !exists {
		return
	}

	cutoff := now.Add(-rl.window)
	validRequests := make([]time.Time, 0, len(requests))
	for _, req := range requests {
		if req.After(cutoff) {
			validRequests = append(validRequests, req)
		}
	}

	if len(validRequests) == 0 {
		delete(rl.requests, key)
	} else {
		rl.requests[key] = validRequests
	}
}

// GetStats returns rate limiter statistics
func (rl *ClientRateLimiter) GetStats() map[string]interface{} {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	return map[string]interface{}{
		"tracked_clients": len(rl.requests),
		"max_requests":    rl.maxRequests,
		"window":          rl.window.String(),
	}
}

// Reset clears all rate limiting data
func (rl *ClientRateLimiter) Reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.requests = make(map[string][]time.Time)
}

// RateLimit rejects requests over the per-client budget with 429. Clients
// key by IP; authenticated requests key by user id so NAT'd users do not
// share a bucket.
func RateLimit(limiter *ClientRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if userID, exists := c.Get("user_id"); exists {
			key = fmt.Sprintf("%v", userID)
		}

		if err := limiter.Allow(key); err != nil {
			utils.SendTooManyRequests(c, err.Error())
			c.Abort()
			return
		}

		c.Next()
	}
}
