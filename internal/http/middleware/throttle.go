// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements submission throttling over an injected
// ratelimit.Counter. Each client key gets a fixed number of requests per
// window; the counter may live in process memory or in the shared database,
// so limits hold across replicas when configured that way.
//
// Notes:
//   - Idempotent replays (see IdempotencyValidator) are never counted.
//   - Counter failures fail open: the request proceeds and a warning is logged.
//   - The limiter is abuse control, not an authorization mechanism.
package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/support-router/internal/ratelimit"
)

// KeyFunc selects the identity a request is throttled under.
type KeyFunc func(*gin.Context) string

// KeyByClientIP keys requests by client address ("ip:<addr>").
func KeyByClientIP() KeyFunc {
	return func(c *gin.Context) string { return "ip:" + c.ClientIP() }
}

// KeyByCustomerOrIP prefers the resolved customer identity and falls back to
// the client address.
func KeyByCustomerOrIP() KeyFunc {
	return func(c *gin.Context) string {
		if id, ch := Identity(c); id != "" {
			return "customer:" + ch + ":" + id
		}
		return "ip:" + c.ClientIP()
	}
}

// ThrottleOptions configures Throttle.
type ThrottleOptions struct {
	Limit  int           // requests per window; <= 0 disables throttling
	Window time.Duration // fixed window length
	Key    KeyFunc       // defaults to KeyByClientIP
	Now    func() time.Time
}

// Throttle returns a middleware enforcing opts.Limit requests per window per
// key. Every counted response carries X-RateLimit-Limit, X-RateLimit-Remaining
// and X-RateLimit-Reset (unix seconds); rejected ones get 429 and Retry-After.
func Throttle(counter ratelimit.Counter, opts ThrottleOptions) gin.HandlerFunc {
	keyFn := opts.Key
	if keyFn == nil {
		keyFn = KeyByClientIP()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	window := opts.Window
	if window <= 0 {
		window = time.Minute
	}
	limit := int64(opts.Limit)

	return func(c *gin.Context) {
		if counter == nil || limit <= 0 || IsRateBypass(c) {
			c.Next()
			return
		}

		key := keyFn(c)
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		n, err := counter.Incr(ctx, key, window)
		cancel()
		if err != nil {
			LoggerFrom(c).Warn().Err(err).Str("key", key).Msg("throttle counter unavailable; allowing request")
			c.Next()
			return
		}

		t := now()
		reset := ratelimit.WindowEnd(t, window)
		remaining := limit - n
		if remaining < 0 {
			remaining = 0
		}
		h := c.Writer.Header()
		h.Set("X-RateLimit-Limit", strconv.FormatInt(limit, 10))
		h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

		if n <= limit {
			c.Next()
			return
		}

		retry := int(reset.Sub(t).Round(time.Second) / time.Second)
		if retry < 1 {
			retry = 1
		}
		throttled.WithLabelValues(routeLabel(c)).Inc()

		h.Set("Retry-After", strconv.Itoa(retry))
		abortError(c, http.StatusTooManyRequests, "too_many_requests", "too many messages; please slow down")
	}
}
