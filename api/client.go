package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

// SkipLogoutHeader marks requests whose 401 must not trigger a global logout.
const SkipLogoutHeader = "X-Skip-Auth-Logout"

const maxErrorBody = 512

// Config configures a [Client].
type Config struct {
	// BaseURL is the API root; auth endpoints live under "/auth".
	BaseURL string
	// VersionURL is the deployment version marker resource. Empty disables
	// [Client.Version].
	VersionURL string
	HTTPClient *http.Client
	// Now stamps the cache-busting query parameter.
	Now func() time.Time
	// BreakerTimeout is how long a breaker stays open. Defaults to 30s.
	BreakerTimeout time.Duration
	// BreakerFailures is the consecutive failure count that opens a
	// breaker. Defaults to 5.
	BreakerFailures uint32
}

// Client talks to the auth backend.
type Client struct {
	base       *url.URL
	versionURL *url.URL
	http       *http.Client
	now        func() time.Time
	// Ping and version polls trip independently.
	pingBreaker    *gobreaker.CircuitBreaker
	versionBreaker *gobreaker.CircuitBreaker
}

// NewClient validates cfg and returns a [Client].
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("api base url is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("api base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, errors.New("api base url must be absolute")
	}

	c := &Client{
		base: base,
		http: cfg.HTTPClient,
		now:  cfg.Now,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 15 * time.Second}
	}
	if c.now == nil {
		c.now = time.Now
	}
	if cfg.VersionURL != "" {
		v, err := url.Parse(cfg.VersionURL)
		if err != nil {
			return nil, fmt.Errorf("version url: %w", err)
		}
		if !v.IsAbs() {
			v = base.ResolveReference(v)
		}
		c.versionURL = v
	}

	timeout := cfg.BreakerTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	c.pingBreaker = newBreaker("gosession-ping", timeout, failures)
	c.versionBreaker = newBreaker("gosession-version", timeout, failures)

	return c, nil
}

func newBreaker(name string, timeout time.Duration, failures uint32) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// A 401 is an answer, not an outage.
		IsSuccessful: func(err error) bool {
			return err == nil || IsUnauthorized(err)
		},
	})
}

// PingBreakerState returns the state of the ping circuit breaker.
func (c *Client) PingBreakerState() gobreaker.State {
	return c.pingBreaker.State()
}

// VersionBreakerState returns the state of the version circuit breaker.
func (c *Client) VersionBreakerState() gobreaker.State {
	return c.versionBreaker.State()
}

// Login exchanges credentials for tokens.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	var out LoginResponse
	if err := c.doJSON(ctx, "login", http.MethodPost, c.endpoint("/auth/login"), "", loginRequest{Username: username, Password: password}, &out, nil); err != nil {
		return nil, err
	}
	if !out.valid() {
		return nil, fmt.Errorf("%w: login response missing token fields", ErrMalformedResponse)
	}
	return &out, nil
}

// Refresh exchanges a refresh token for a new token triple.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	var out TokenResponse
	if err := c.doJSON(ctx, "refresh", http.MethodPost, c.endpoint("/auth/refresh"), "", refreshRequest{RefreshToken: refreshToken}, &out, nil); err != nil {
		return nil, err
	}
	if !out.valid() {
		return nil, fmt.Errorf("%w: refresh response missing token fields", ErrMalformedResponse)
	}
	return &out, nil
}

// Revoke asks the server to invalidate accessToken.
func (c *Client) Revoke(ctx context.Context, accessToken string) error {
	hdr := http.Header{}
	hdr.Set(SkipLogoutHeader, "true")
	return c.doJSON(ctx, "revoke", http.MethodPost, c.endpoint("/auth/revoke"), accessToken, nil, nil, hdr)
}

// Ping issues the lightweight authenticated probe.
func (c *Client) Ping(ctx context.Context, accessToken string) error {
	_, err := c.pingBreaker.Execute(func() (interface{}, error) {
		hdr := http.Header{}
		hdr.Set(SkipLogoutHeader, "true")
		return nil, c.doJSON(ctx, "ping", http.MethodGet, c.endpoint("/auth/ping"), accessToken, nil, nil, hdr)
	})
	return err
}

// Version fetches the deployment version marker, bypassing caches.
func (c *Client) Version(ctx context.Context) (string, error) {
	if c.versionURL == nil {
		return "", errors.New("version url not configured")
	}

	u := *c.versionURL
	q := u.Query()
	q.Set("t", strconv.FormatInt(c.now().UnixMilli(), 10))
	u.RawQuery = q.Encode()

	res, err := c.versionBreaker.Execute(func() (interface{}, error) {
		hdr := http.Header{}
		hdr.Set("Cache-Control", "no-cache")
		var out versionResponse
		if err := c.doJSON(ctx, "version", http.MethodGet, u.String(), "", nil, &out, hdr); err != nil {
			return nil, err
		}
		return out.Version, nil
	})
	if err != nil {
		return "", err
	}
	v, _ := res.(string)
	if v == "" {
		return "", fmt.Errorf("%w: empty version", ErrMalformedResponse)
	}
	return v, nil
}

func (c *Client) endpoint(path string) string {
	return c.base.String() + path
}

func (c *Client) doJSON(ctx context.Context, op, method, target, bearer string, in, out any, hdr http.Header) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	for k, vs := range hdr {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedResponse, op, err)
	}
	return nil
}
