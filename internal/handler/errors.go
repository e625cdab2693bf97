package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that answers every
// error reaching Echo (recovered panics, body limit and rate limit rejections)
// with the same {"error":"Proxy error","message":...} envelope the proxy uses.
func NewHTTPErrorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	logger = logger.With("component", "error_handler")

	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		msg := sanitizeError(err)

		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if m, ok := he.Message.(string); ok {
				msg = m
			} else if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			} else {
				msg = http.StatusText(code)
			}
		}

		if code >= http.StatusInternalServerError {
			logger.Error("request failed", "err", msg, "path", c.Request().URL.Path)
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(code)
		} else {
			werr = writeJSON(c, code, map[string]string{
				"error":   msgProxyError,
				"message": msg,
			})
		}
		if werr != nil {
			logger.Error("write error response", "err", werr)
		}
	}
}
