package handler

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/partnerforge/progression/pkg/metrics"
)

// SellerRateLimiter limits write requests per seller.
type SellerRateLimiter struct {
	limiters      map[string]*rate.Limiter
	mu            sync.RWMutex
	limit         rate.Limit
	burst         int
	cleanupTicker *time.Ticker
	done          chan struct{}
	stopOnce      sync.Once
}

// NewSellerRateLimiter creates a limiter allowing requestsPerSecond per seller with
// the given burst. Idle limiters are dropped every cleanupInterval.
func NewSellerRateLimiter(requestsPerSecond float64, burst int, cleanupInterval time.Duration) *SellerRateLimiter {
	rl := &SellerRateLimiter{
		limiters:      make(map[string]*rate.Limiter),
		limit:         rate.Limit(requestsPerSecond),
		burst:         burst,
		cleanupTicker: time.NewTicker(cleanupInterval),
		done:          make(chan struct{}),
	}

	go rl.cleanup()

	return rl
}

// cleanup periodically removes limiters to bound memory
func (rl *SellerRateLimiter) cleanup() {
	for {
		select {
		case <-rl.cleanupTicker.C:
			rl.mu.Lock()
			rl.limiters = make(map[string]*rate.Limiter)
			rl.mu.Unlock()
		case <-rl.done:
			return
		}
	}
}

// Stop stops the cleanup goroutine.
func (rl *SellerRateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		rl.cleanupTicker.Stop()
		close(rl.done)
	})
}

func (rl *SellerRateLimiter) limiterFor(sellerID string) *rate.Limiter {
	rl.mu.RLock()
	limiter, exists := rl.limiters[sellerID]
	rl.mu.RUnlock()
	if exists {
		return limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if limiter, exists = rl.limiters[sellerID]; !exists {
		limiter = rate.NewLimiter(rl.limit, rl.burst)
		rl.limiters[sellerID] = limiter
	}
	return limiter
}

// Middleware rejects requests for a seller that exceeded its rate.
// Requests without a sellerId path parameter pass through.
func (rl *SellerRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sellerID := c.Param("sellerId")
		if sellerID == "" {
			c.Next()
			return
		}

		if !rl.limiterFor(sellerID).Allow() {
			metrics.HTTPRequestsThrottledTotal.Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse{
				Error:     "rate limit exceeded",
				Retryable: true,
			})
			return
		}

		c.Next()
	}
}
