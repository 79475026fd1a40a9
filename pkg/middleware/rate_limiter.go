package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/jordanlanch/refertrack/pkg/models"
	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per client and route, so a burst of
// logins does not also lock the same client out of signup.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	every   rate.Limit
	burst   int
	perMin  int
}

// NewRateLimiter allows requestsPerMinute per client and route after an
// initial burst.
func NewRateLimiter(requestsPerMinute, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		buckets: make(map[string]*rate.Limiter),
		every:   rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:   burst,
		perMin:  requestsPerMinute,
	}
}

// GetLimiter returns the bucket for key, creating it on first use.
func (rl *RateLimiter) GetLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	l, ok := rl.buckets[key]
	if !ok {
		l = rate.NewLimiter(rl.every, rl.burst)
		rl.buckets[key] = l
	}
	return l
}

// Visitors returns the number of tracked buckets.
func (rl *RateLimiter) Visitors() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// Cleanup forgets buckets that have refilled completely.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, l := range rl.buckets {
		if l.Tokens() >= float64(rl.burst) {
			delete(rl.buckets, key)
		}
	}
}

// RunCleanup calls Cleanup every interval until ctx is done.
func (rl *RateLimiter) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Cleanup()
		}
	}
}

// retryAfter is the whole seconds until one token is back.
func (rl *RateLimiter) retryAfter() string {
	if rl.perMin <= 0 {
		return "60"
	}
	return strconv.Itoa((60 + rl.perMin - 1) / rl.perMin)
}

func clientKey(c echo.Context) string {
	ip := c.RealIP()
	if ip == "" {
		ip = c.Request().RemoteAddr
	}
	return ip + " " + c.Request().Method + " " + c.Path()
}

// Middleware answers 429 with a Retry-After header once a bucket is empty.
func (rl *RateLimiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if rl.GetLimiter(clientKey(c)).Allow() {
				return next(c)
			}
			c.Response().Header().Set("Retry-After", rl.retryAfter())
			return c.JSON(http.StatusTooManyRequests, models.ErrorResponse{
				Error:   "rate_limit_exceeded",
				Message: "Too many requests. Please try again later.",
			})
		}
	}
}
