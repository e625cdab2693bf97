package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"news-cors-proxy/internal/config"
)

// CORS returns an Echo middleware that puts the allow-origin header on every
// response, errors and 404s included, and answers preflight requests for any
// path with an empty 200 carrying the full permission set.
//
// echo's own CORS middleware is not used: it omits the headers when the request
// has no Origin and answers preflights with 204.
func CORS(cfg config.CORSConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set(echo.HeaderAccessControlAllowOrigin, cfg.AllowOrigin)

			if c.Request().Method != http.MethodOptions {
				return next(c)
			}

			h.Set(echo.HeaderAccessControlAllowMethods, cfg.AllowMethods)
			h.Set(echo.HeaderAccessControlAllowHeaders, cfg.AllowHeaders)
			return c.NoContent(http.StatusOK)
		}
	}
}
