// Package gateway is the single chokepoint for calls to the external
// helpdesk API. It owns timeout, retry-on-transient-failure, and error
// normalization; everything above it works with decoded values and typed
// errors, never raw HTTP responses.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultTimeout bounds a single attempt; a retry gets a fresh window.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxRetries is how many extra attempts a transient upstream
	// failure (502/503/504) gets. Everything else fails on the first try.
	DefaultMaxRetries = 1
)

// ErrTimeout reports that a call exceeded its deadline. Use errors.Is.
var ErrTimeout = errors.New("helpdesk request timed out")

// RequestError is a non-success response from the helpdesk API.
type RequestError struct {
	Status int
	Detail string
}

func (e *RequestError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("helpdesk request failed (status %d): %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("helpdesk request failed (status %d)", e.Status)
}

// Transient reports whether the failure is a transient upstream error
// eligible for a single retry.
func (e *RequestError) Transient() bool {
	switch e.Status {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Config holds the per-session endpoint and credentials. It is passed to
// New explicitly; there is no package-level base URL.
type Config struct {
	BaseURL    string
	Token      string        // opaque bearer token; empty means unauthenticated dev mode
	Timeout    time.Duration // zero means DefaultTimeout
	MaxRetries int           // zero or negative means DefaultMaxRetries
	UserAgent  string        // zero value filled in by New
}

// Gateway executes requests against one helpdesk endpoint. It keeps no
// state between calls beyond the shared http.Client.
type Gateway struct {
	cfg  Config
	http *http.Client
}

// New creates a Gateway for the given endpoint configuration.
func New(cfg Config) *Gateway {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "deskops/dev"
	}
	return &Gateway{cfg: cfg, http: &http.Client{}}
}

// BaseURL returns the configured endpoint, normalized.
func (g *Gateway) BaseURL() string { return g.cfg.BaseURL }

// Execute performs one API call. The body, if non-nil, is marshaled as
// JSON; the response body, if out is non-nil, is decoded as JSON.
//
// Failures are normalized: deadline overrun wraps ErrTimeout, non-2xx
// responses become *RequestError carrying the response body text (or the
// status line when the body is empty). A *RequestError with a 502/503/504
// status is retried exactly MaxRetries times; all other failures
// propagate immediately.
func (g *Gateway) Execute(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := g.cfg.BaseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= g.cfg.MaxRetries; attempt++ {
		lastErr = g.attempt(ctx, method, endpoint, payload, out)
		if lastErr == nil {
			return nil
		}
		var reqErr *RequestError
		if !errors.As(lastErr, &reqErr) || !reqErr.Transient() {
			return lastErr
		}
	}
	return lastErr
}

// attempt runs one HTTP round trip under its own deadline, so a retried
// call gets the full timeout budget again (matching upstream semantics
// where each attempt is an independent 30s call).
func (g *Gateway) attempt(ctx context.Context, method, endpoint string, payload []byte, out any) error {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	// Client identity headers are metadata for upstream observability
	// only; nothing downstream branches on them.
	req.Header.Set("User-Agent", g.cfg.UserAgent)
	req.Header.Set("X-Deskops-Client", g.cfg.UserAgent)
	if g.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+g.cfg.Token)
	}

	resp, err := g.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return fmt.Errorf("%w: %s %s", ErrTimeout, method, endpoint)
		}
		return fmt.Errorf("helpdesk request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newRequestError(resp)
	}

	if out == nil {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func newRequestError(resp *http.Response) *RequestError {
	detail := resp.Status
	if data, err := io.ReadAll(io.LimitReader(resp.Body, 8192)); err == nil {
		if text := strings.TrimSpace(string(data)); text != "" {
			detail = text
		}
	}
	return &RequestError{Status: resp.StatusCode, Detail: detail}
}

func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
