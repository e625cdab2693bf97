// Package service implements the core proxy forwarding logic.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"news-cors-proxy/internal/client"
	"news-cors-proxy/internal/config"
	"news-cors-proxy/internal/model"
)

var (
	// ErrMissingParams is returned when the url or apiKey query parameter is absent.
	ErrMissingParams = errors.New("missing required parameters: url and apiKey")

	// ErrInvalidTargetURL is returned when the url parameter is not an absolute http(s) URL.
	ErrInvalidTargetURL = errors.New("invalid target url")

	// ErrHostNotAllowed is returned when the target host is outside upstream.allowed_hosts.
	ErrHostNotAllowed = errors.New("upstream host not allowed")
)

// UpstreamError is returned when the upstream answers with a non-2xx status.
// Body is ready to relay: the upstream JSON compacted, or an envelope wrapping
// the raw text when the upstream did not send JSON.
type UpstreamError struct {
	StatusCode int
	Body       []byte
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

// Query parameter names read from the inbound request.
const (
	paramURL     = "url"
	paramAPIKey  = "apiKey"
	paramCountry = "country"
)

// ProxyService handles the forwarding logic for proxy requests.
type ProxyService struct {
	client *client.UpstreamClient
	cfg    *config.Config
	logger *slog.Logger
}

// NewProxyService creates a ProxyService.
func NewProxyService(c *client.UpstreamClient, cfg *config.Config, logger *slog.Logger) *ProxyService {
	return &ProxyService{
		client: c,
		cfg:    cfg,
		logger: logger.With("component", "proxy_service"),
	}
}

// ParseRequest reads the proxy parameters from an inbound query string.
// It returns ErrMissingParams when url or apiKey is absent or empty.
func (s *ProxyService) ParseRequest(ctx context.Context, query url.Values) (*model.ProxyRequest, error) {
	pr := &model.ProxyRequest{
		Ctx:       ctx,
		TargetURL: query.Get(paramURL),
		APIKey:    query.Get(paramAPIKey),
		Country:   query.Get(paramCountry),
	}
	if pr.TargetURL == "" || pr.APIKey == "" {
		return nil, ErrMissingParams
	}
	return pr, nil
}

// Forward sends a single GET for pr to the upstream and returns the reply to relay.
//
// A 2xx upstream reply must be JSON; it is returned compacted with the upstream
// status. Compaction only removes insignificant whitespace: number literals
// (1.50, 1e3), string escapes (\u00e9, \/) and duplicate keys are relayed as
// the upstream wrote them rather than re-encoded. A non-2xx reply is returned as *UpstreamError. Every other failure
// (bad target URL, network, oversized or non-JSON success body) is a transport
// error wrapping the cause.
func (s *ProxyService) Forward(pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	target, err := s.buildUpstreamURL(pr)
	if err != nil {
		return nil, err
	}
	if !s.cfg.Upstream.HostAllowed(target.Hostname()) {
		return nil, fmt.Errorf("%w: %s", ErrHostNotAllowed, target.Hostname())
	}

	s.logger.Debug("forwarding request",
		"host", target.Host,
		"path", target.Path,
		"country", pr.Country,
	)

	resp, err := s.client.Get(pr.Ctx, target.String(), s.outboundHeaders())
	if err != nil {
		return nil, fmt.Errorf("forward to upstream: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.logger.Warn("upstream error status",
			"host", target.Host,
			"status", resp.StatusCode,
		)
		return nil, &UpstreamError{
			StatusCode: resp.StatusCode,
			Body:       upstreamErrorBody(resp.Body),
		}
	}

	body, err := compactJSON(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode upstream response: %w", err)
	}

	return &model.ProxyResponse{
		StatusCode: resp.StatusCode,
		Body:       body,
	}, nil
}

// buildUpstreamURL copies the caller's target URL, keeping its own query
// parameters, and sets apiKey and (when given) country on it.
func (s *ProxyService) buildUpstreamURL(pr *model.ProxyRequest) (*url.URL, error) {
	u, err := url.Parse(pr.TargetURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTargetURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q is not an absolute http(s) URL", ErrInvalidTargetURL, pr.TargetURL)
	}

	// The raw query is edited in place: url.ParseQuery drops pairs it cannot
	// parse (";" separators, bad escapes), and those must reach the upstream.
	u.RawQuery = setQueryParam(u.RawQuery, paramAPIKey, pr.APIKey)
	if pr.Country != "" {
		u.RawQuery = setQueryParam(u.RawQuery, paramCountry, pr.Country)
	}
	u.Fragment = ""
	return u, nil
}

// setQueryParam sets key to value in rawQuery. The first pair whose decoded
// name is key is replaced in place and later ones are removed; the pair is
// appended when absent. All other pairs are kept byte for byte.
func setQueryParam(rawQuery, key, value string) string {
	pair := url.QueryEscape(key) + "=" + url.QueryEscape(value)

	parts := strings.Split(rawQuery, "&")
	out := make([]string, 0, len(parts)+1)
	replaced := false
	for _, p := range parts {
		if p == "" {
			continue
		}
		if queryName(p) != key {
			out = append(out, p)
			continue
		}
		if !replaced {
			out = append(out, pair)
			replaced = true
		}
	}
	if !replaced {
		out = append(out, pair)
	}
	return strings.Join(out, "&")
}

// queryName returns the decoded name of a raw "name=value" pair, or the raw
// name when it is not validly escaped.
func queryName(pair string) string {
	name, _, _ := strings.Cut(pair, "=")
	if decoded, err := url.QueryUnescape(name); err == nil {
		return decoded
	}
	return name
}

// outboundHeaders returns the fixed header set sent upstream. Nothing from the
// inbound request is forwarded; Origin and Referer are sent blank so the
// upstream cannot tell the call came from a browser page.
func (s *ProxyService) outboundHeaders() http.Header {
	h := make(http.Header)
	h.Set("User-Agent", s.cfg.Upstream.UserAgent)
	h.Set("Origin", "")
	h.Set("Referer", "")
	h.Set("Accept", "application/json")
	return h
}

// upstreamErrorBody relays a JSON error body as-is (compacted) and wraps
// anything else in an {"error":"Upstream Error","details":...} envelope.
func upstreamErrorBody(raw []byte) []byte {
	if body, err := compactJSON(raw); err == nil {
		return body
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(map[string]string{
		"error":   "Upstream Error",
		"details": string(raw),
	})
	return bytes.TrimRight(buf.Bytes(), "\n")
}

func compactJSON(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
