package middleware

import (
	"github.com/labstack/echo/v4"
)

// securityHeaders are set on every response. Proxied replies carry the
// caller's API key in their request URL, so they must never be cached or
// leak a Referer.
var securityHeaders = map[string]string{
	"X-Content-Type-Options": "nosniff",
	"X-Frame-Options":        "DENY",
	"Referrer-Policy":        "no-referrer",
	"Cache-Control":          "no-store",
}

// SecurityHeaders returns an Echo middleware that adds security headers to responses.
// Headers are set before the handler runs so they survive a committed response.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			for k, v := range securityHeaders {
				h.Set(k, v)
			}
			return next(c)
		}
	}
}
