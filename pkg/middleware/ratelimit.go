package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// RateLimiter is a fixed-window per-caller limiter. Keys on user_id when the
// request is authenticated, client IP otherwise.
type RateLimiter struct {
	requests map[string]*window
	mu       sync.Mutex
	rate     int
	period   time.Duration
}

type window struct {
	remaining int
	resetAt   time.Time
}

func NewRateLimiter(rate int, period time.Duration) *RateLimiter {
	rl := &RateLimiter{
		requests: make(map[string]*window),
		rate:     rate,
		period:   period,
	}

	go rl.cleanup()

	return rl
}

func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.allow(rl.key(c)) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": rl.period.Seconds(),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

func (rl *RateLimiter) key(c *gin.Context) string {
	if userID, exists := c.Get("user_id"); exists {
		return fmt.Sprintf("user:%v", userID)
	}
	return fmt.Sprintf("ip:%s", c.ClientIP())
}

func (rl *RateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	w, exists := rl.requests[key]
	if !exists || now.After(w.resetAt) {
		rl.requests[key] = &window{
			remaining: rl.rate - 1,
			resetAt:   now.Add(rl.period),
		}
		return true
	}

	if w.remaining > 0 {
		w.remaining--
		return true
	}

	return false
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.period)
	defer ticker.Stop()

	for range ticker.C {
		rl.mu.Lock()
		now := time.Now()
		for key, w := range rl.requests {
			if now.Sub(w.resetAt) > rl.period {
				delete(rl.requests, key)
			}
		}
		rl.mu.Unlock()
	}
}
