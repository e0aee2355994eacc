package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/arturoeanton/witness-runtime/engine"
	"github.com/arturoeanton/witness-runtime/logger"
	"github.com/labstack/echo/v4"
)

// Operation names the limited action of a request: method and route
func Operation(c echo.Context) string {
	path := c.Path()
	if path == "" {
		path = c.Request().URL.Path
	}
	return c.Request().Method + " " + path
}

// Identifier builds the limiter key for an operation and a client
func Identifier(operation, client string) string {
	return operation + ":" + client
}

// Middleware returns an Echo middleware function for rate limiting. Each
// route and client IP pair gets its own window.
func Middleware(config *engine.RateLimitConfig, rateLimiter RateLimiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// Skip if rate limiting is disabled
			if !config.Enabled {
				return next(c)
			}

			path := c.Request().URL.Path
			if IsPathExcluded(path, config.ExcludedPaths) {
				return next(c)
			}

			ip := ClientIP(c)
			if IsIPExcluded(ip, config.ExcludedIPs) {
				return next(c)
			}

			result := rateLimiter.CheckLimit(Identifier(Operation(c), ip))
			SetHeaders(c, config, rateLimiter.Limit(), result)

			if !result.Allowed {
				logger.Debug("Rate limit exceeded", map[string]any{"path": path})
				return Reject(c, config, result)
			}

			return next(c)
		}
	}
}

// SetHeaders writes the X-RateLimit-* headers for a result
func SetHeaders(c echo.Context, config *engine.RateLimitConfig, limit int, result Result) {
	header := c.Response().Header()
	if limit > 0 {
		header.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	}
	if result.RemainingRequests >= 0 {
		header.Set("X-RateLimit-Remaining", strconv.Itoa(result.RemainingRequests))
	}
	if !result.Allowed {
		header.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(result.RetryAfter).Unix(), 10))
		if config.RetryAfterHeader && result.RetryAfter > 0 {
			header.Set("Retry-After", strconv.Itoa(retryAfterSeconds(result.RetryAfter)))
		}
	}
}

// Reject writes the 429 response
func Reject(c echo.Context, config *engine.RateLimitConfig, result Result) error {
	message := config.ErrorMessage
	if message == "" {
		message = "Rate limit exceeded. Please try again later."
	}

	return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
		"error":       message,
		"kind":        "RateLimited",
		"retry_after": retryAfterSeconds(result.RetryAfter),
	})
}

// retryAfterSeconds rounds up so clients never retry too early
func retryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
