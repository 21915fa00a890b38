package middleware

import (
	"net/http"

	"github.com/MrEthical07/goSession/api"
)

// TokenSource returns the current access token.
type TokenSource func() (string, bool)

// Transport injects bearer credentials and reports unauthorized responses.
type Transport struct {
	// Base performs the request. Defaults to http.DefaultTransport.
	Base http.RoundTripper
	// Token supplies the bearer token. Requests already carrying an
	// Authorization header are left alone.
	Token TokenSource
	// OnUnauthorized runs after a 401 response to a request that did not
	// carry [api.SkipLogoutHeader].
	OnUnauthorized func(req *http.Request)
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	skip := req.Header.Get(api.SkipLogoutHeader) != ""

	if t.Token != nil && req.Header.Get("Authorization") == "" {
		if token, ok := t.Token(); ok && token != "" {
			req = req.Clone(req.Context())
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	if skip {
		// The marker is client-side only.
		req = req.Clone(req.Context())
		req.Header.Del(api.SkipLogoutHeader)
	}

	resp, err := base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized && !skip && t.OnUnauthorized != nil {
		t.OnUnauthorized(req)
	}
	return resp, nil
}
