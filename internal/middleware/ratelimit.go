package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

// GlobalLimiter is a limiter shared between instances.
type GlobalLimiter interface {
	AllowAction(ctx context.Context, userID string, action string, rate int, burst int) (bool, error)
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type RateLimiter struct {
	limiters map[string]*limiterEntry
	mu       sync.Mutex
	rps      int
	burst    int
	global   GlobalLimiter
	log      *zap.Logger
}

// NewRateLimiter limits each user locally, and across instances when global
// is non-nil.
func NewRateLimiter(rps, burst int, global GlobalLimiter, log *zap.Logger) *RateLimiter {
	if log == nil {
		log = zap.NewNop()
	}
	return &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		rps:      rps,
		burst:    burst,
		global:   global,
		log:      log,
	}
}

func (rl *RateLimiter) getLimiter(userID string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	e, exists := rl.limiters[userID]
	if !exists {
		e = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(rl.rps), rl.burst)}
		rl.limiters[userID] = e
	}
	e.lastSeen = time.Now()

	return e.limiter
}

// Allow reports whether userID may perform action now. Errors from the
// shared limiter fall back to the local decision.
func (rl *RateLimiter) Allow(ctx context.Context, userID, action string) bool {
	if !rl.getLimiter(userID).Allow() {
		return false
	}
	if rl.global == nil {
		return true
	}
	ok, err := rl.global.AllowAction(ctx, userID, action, rl.rps, rl.burst)
	if err != nil {
		rl.log.Warn("shared rate limiter unavailable", zap.Error(err))
		return true
	}
	return ok
}

// Cleanup removes limiters idle for longer than limiterIdleTTL until ctx ends
func (rl *RateLimiter) Cleanup(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				rl.prune(now)
			}
		}
	}()
}

func (rl *RateLimiter) prune(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for id, e := range rl.limiters {
		if now.Sub(e.lastSeen) > limiterIdleTTL {
			delete(rl.limiters, id)
		}
	}
}

// RateLimitMiddleware limits requests per authenticated user
func RateLimitMiddleware(rl *RateLimiter, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(ContextUserID)
		if userID == "" {
			c.Next()
			return
		}

		if !rl.Allow(c.Request.Context(), userID, action) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}

		c.Next()
	}
}
