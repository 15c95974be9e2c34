package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"budgetrag/internal/config"
	"budgetrag/pkg/circuitbreaker"
	"budgetrag/pkg/logger"
	"budgetrag/pkg/ratelimiter"
)

// RateLimitMiddleware rejects requests once the configured limiter runs dry.
func RateLimitMiddleware(limiter ratelimiter.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests, please retry later"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// CircuitBreakerMiddleware short-circuits requests while the breaker is open.
// Responses with 5xx status count as failures.
func CircuitBreakerMiddleware(breaker circuitbreaker.CircuitBreaker) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, err := breaker.Execute(func() (interface{}, error) {
			c.Next()
			if c.Writer.Status() >= http.StatusInternalServerError {
				return nil, http.ErrAbortHandler
			}
			return nil, nil
		})
		if err == circuitbreaker.ErrCircuitOpen {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
			c.Abort()
		}
	}
}

// BuildMiddleware assembles the middleware chain from configuration. Unknown
// rate limiter algorithms disable the limiter with a warning rather than
// failing startup.
func BuildMiddleware(cfg *config.MiddlewareConfig, log *logger.Logger) []gin.HandlerFunc {
	var chain []gin.HandlerFunc

	if cfg.RateLimiter.Enabled {
		limiter := newRateLimiter(&cfg.RateLimiter, log)
		if limiter != nil {
			chain = append(chain, RateLimitMiddleware(limiter))
		}
	}

	if cfg.CircuitBreaker.Enabled {
		timeout, err := time.ParseDuration(cfg.CircuitBreaker.Timeout)
		if err != nil || timeout <= 0 {
			timeout = 30 * time.Second
		}
		breaker := circuitbreaker.New(cfg.CircuitBreaker.FailureThreshold, cfg.CircuitBreaker.SuccessThreshold, timeout)
		chain = append(chain, CircuitBreakerMiddleware(breaker))
	}

	return chain
}

func newRateLimiter(cfg *config.RateLimiterConfig, log *logger.Logger) ratelimiter.RateLimiter {
	switch cfg.Algorithm {
	case "tokenBucket":
		return ratelimiter.NewTokenBucket(cfg.TokenBucket.Rate, cfg.TokenBucket.Capacity)
	case "fixedWindow", "":
		window, err := time.ParseDuration(cfg.FixedWindow.Window)
		if err != nil || window <= 0 {
			window = time.Minute
		}
		limit := cfg.FixedWindow.Limit
		if limit <= 0 {
			limit = 100
		}
		return ratelimiter.NewFixedWindowCounter(limit, window)
	default:
		log.Warn("Unknown rate limiter algorithm '" + cfg.Algorithm + "', rate limiting disabled")
		return nil
	}
}
