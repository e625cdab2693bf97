package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/labstack/echo/v4"

	"news-cors-proxy/internal/config"
	"news-cors-proxy/internal/metrics"
	"news-cors-proxy/internal/service"
)

// Error envelope texts returned to the caller.
const (
	msgMissingParams  = "Missing required parameters: url and apiKey"
	msgHostNotAllowed = "Upstream host not allowed"
	msgProxyError     = "Proxy error"
)

// apiKeyPattern matches apiKey query parameter values in URLs embedded in error messages.
var apiKeyPattern = regexp.MustCompile(`(?i)(apiKey=)[^&\s"]+`)

// ProxyHandler relays caller requests to the upstream news API.
type ProxyHandler struct {
	service *service.ProxyService
	cors    config.CORSConfig
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewProxyHandler creates a ProxyHandler. The metrics parameter may be nil.
func NewProxyHandler(svc *service.ProxyService, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		cors:    cfg.CORS,
		logger:  logger.With("component", "proxy_handler"),
		metrics: m,
	}
}

// Handle forwards the request described by the url, apiKey and country query
// parameters and writes exactly one JSON reply. Preflight requests never get
// here; the CORS middleware answers them.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()
	header := c.Response().Header()
	header.Set(echo.HeaderAccessControlAllowOrigin, h.cors.AllowOrigin)

	pr, err := h.service.ParseRequest(req.Context(), req.URL.Query())
	if err != nil {
		return h.mapError(c, err)
	}

	resp, err := h.service.Forward(pr)
	if err != nil {
		return h.mapError(c, err)
	}

	h.metrics.Outcome(metrics.OutcomeOK)

	// A successful relay carries the full permission set, not just the origin.
	header.Set(echo.HeaderAccessControlAllowMethods, h.cors.AllowMethods)
	header.Set(echo.HeaderAccessControlAllowHeaders, h.cors.AllowHeaders)

	return c.JSONBlob(resp.StatusCode, resp.Body)
}

func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	path := c.Request().URL.Path

	if errors.Is(err, service.ErrMissingParams) {
		h.metrics.Outcome(metrics.OutcomeValidation)
		h.logger.Debug("rejected request", "err", err, "path", path)
		return writeJSON(c, http.StatusBadRequest, map[string]string{
			"error": msgMissingParams,
		})
	}

	if errors.Is(err, service.ErrHostNotAllowed) {
		h.metrics.Outcome(metrics.OutcomeForbidden)
		h.logger.Warn("rejected request", "err", err, "path", path)
		return writeJSON(c, http.StatusForbidden, map[string]string{
			"error": msgHostNotAllowed,
		})
	}

	var upErr *service.UpstreamError
	if errors.As(err, &upErr) {
		h.metrics.Outcome(metrics.OutcomeUpstreamError)
		return c.JSONBlob(upErr.StatusCode, upErr.Body)
	}

	h.metrics.Outcome(metrics.OutcomeTransport)
	msg := sanitizeError(err)
	h.logger.Error("proxy error", "err", msg, "path", path)
	return writeJSON(c, http.StatusInternalServerError, map[string]string{
		"error":   msgProxyError,
		"message": msg,
	})
}

// writeJSON marshals v compactly, without the trailing newline c.JSON adds.
func writeJSON(c echo.Context, code int, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.JSONBlob(code, b)
}

// sanitizeError redacts API keys from error messages that may contain upstream URLs.
func sanitizeError(err error) string {
	return apiKeyPattern.ReplaceAllString(err.Error(), "${1}[REDACTED]")
}
