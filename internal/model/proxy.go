// Package model defines shared types for the proxy.
package model

import (
	"context"
	"net/http"
)

// ProxyRequest is an inbound proxy call after its query parameters were read.
type ProxyRequest struct {
	Ctx       context.Context
	TargetURL string // "url" query parameter
	APIKey    string // "apiKey" query parameter
	Country   string // "country" query parameter, optional
}

// ProxyResponse is the reply relayed back to the caller.
// Body is always a compact JSON document.
type ProxyResponse struct {
	StatusCode int
	Body       []byte
}

// UpstreamResponse is a fully read upstream reply.
type UpstreamResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}
