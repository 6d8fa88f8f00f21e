package ratelimit

import (
	"math"
	"strconv"

	"github.com/labstack/echo/v4"
)

// KeyFunc picks the bucket of a request.
type KeyFunc func(c echo.Context) string

// DenyFunc builds the response for a throttled request.
type DenyFunc func(c echo.Context, d Decision) error

// ByIP buckets requests by client address.
func ByIP(c echo.Context) string {
	return "ip:" + c.RealIP()
}

// Middleware throttles the wrapped routes. Rate limit headers are set on
// every response; Retry-After only when denied.
func Middleware(l *Limiter, key KeyFunc, deny DenyFunc) echo.MiddlewareFunc {
	if key == nil {
		key = ByIP
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			d := l.Allow(key(c))

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			if !d.Allowed {
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(d.RetryAfter.Seconds()))))
				return deny(c, d)
			}
			return next(c)
		}
	}
}
