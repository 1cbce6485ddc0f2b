// Copyright 2026 OmniNode Labs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package httpx provides the retrying, pooled HTTP client every
// downstream adapter (vector store, graph store, embedding service) is
// built on. One client is shared per downstream service.
//
// Retry policy: network errors, HTTP 503, HTTP 429 (respecting
// Retry-After), and timeouts are retried with exponential backoff and
// jitter; 4xx responses (400, 401, 403, 404, 422) are never retried.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"log/slog"

	"github.com/cenkalti/backoff/v4"
)

// Config tunes pooling and retry behaviour.
type Config struct {
	MaxConnections          int           // pool-wide connection cap (default 100)
	MaxKeepaliveConnections int           // idle connections kept per host (default 20)
	ConnectTimeout          time.Duration // default 5s
	ReadTimeout             time.Duration // per-request deadline (default 30s)
	MaxAttempts             int           // default 3
	InitialBackoff          time.Duration // default 1s
	MaxBackoff              time.Duration // default 10s
}

func (c Config) withDefaults() Config {
	if c.MaxConnections <= 0 {
		c.MaxConnections = 100
	}
	if c.MaxKeepaliveConnections <= 0 {
		c.MaxKeepaliveConnections = 20
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 10 * time.Second
	}
	return c
}

// StatusError is a non-2xx response. Callers can inspect Code to
// distinguish not-found from validation failures.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.Code, e.Body)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

// Client is a retrying HTTP client over a pooled transport.
type Client struct {
	name    string
	cfg     Config
	client  *http.Client
	logger  *slog.Logger
	headers map[string]string
}

// New creates a client for one downstream service. The name labels
// metrics and log events.
func New(name string, cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: cfg.ConnectTimeout,
		}).DialContext,
		MaxConnsPerHost:     cfg.MaxConnections,
		MaxIdleConnsPerHost: cfg.MaxKeepaliveConnections,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		name:   name,
		cfg:    cfg,
		client: &http.Client{Transport: transport, Timeout: cfg.ReadTimeout},
		logger: logger,
	}
}

// SetHeader adds a header sent with every request. Call before use; the
// header map is not guarded by a lock.
func (c *Client) SetHeader(key, value string) {
	if c.headers == nil {
		c.headers = make(map[string]string)
	}
	c.headers[key] = value
}

// SetBearerToken sets the Authorization header.
func (c *Client) SetBearerToken(token string) {
	c.SetHeader("Authorization", "Bearer "+token)
}

// GetJSON performs a GET and decodes the JSON response into out.
func (c *Client) GetJSON(ctx context.Context, url string, out any) error {
	return c.doJSON(ctx, http.MethodGet, url, nil, out)
}

// PostJSON performs a POST with a JSON body and decodes into out.
func (c *Client) PostJSON(ctx context.Context, url string, in, out any) error {
	return c.doJSON(ctx, http.MethodPost, url, in, out)
}

// PutJSON performs a PUT with a JSON body and decodes into out.
func (c *Client) PutJSON(ctx context.Context, url string, in, out any) error {
	return c.doJSON(ctx, http.MethodPut, url, in, out)
}

// Delete performs a DELETE, ignoring the response body.
func (c *Client) Delete(ctx context.Context, url string) error {
	return c.doJSON(ctx, http.MethodDelete, url, nil, nil)
}

func (c *Client) doJSON(ctx context.Context, method, url string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
	}
	respBody, err := c.do(ctx, method, url, body)
	if err != nil {
		return err
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode %s response: %w", c.name, err)
	}
	return nil
}

// do executes the request with the retry policy applied.
func (c *Client) do(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.InitialBackoff
	bo.MaxInterval = c.cfg.MaxBackoff
	bo.MaxElapsedTime = 0 // attempts, not wall clock, bound the loop

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		resp, err := c.attempt(ctx, method, url, body)
		if err == nil {
			recordRequest(c.name, true)
			return resp, nil
		}
		lastErr = err

		retryable, retryAfter := classify(err)
		if !retryable || attempt == c.cfg.MaxAttempts {
			break
		}

		delay := bo.NextBackOff()
		if retryAfter > delay {
			delay = retryAfter
		}
		if delay > c.cfg.MaxBackoff {
			delay = c.cfg.MaxBackoff
		}
		recordRetry(c.name)
		c.logger.Warn("httpx.retry",
			"service", c.name, "method", method, "url", url,
			"attempt", attempt, "delay_ms", delay.Milliseconds(), "err", err,
		)
		select {
		case <-ctx.Done():
			recordRequest(c.name, false)
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	recordRequest(c.name, false)
	if isTimeout(lastErr) {
		recordTimeout(c.name)
	}
	return nil, lastErr
}

// attempt performs a single round trip.
func (c *Client) attempt(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	start := time.Now()
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	observeDuration(c.name, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{Code: resp.StatusCode, Body: truncate(string(respBody), 512)}
		if resp.StatusCode == http.StatusTooManyRequests {
			if secs, perr := strconv.Atoi(resp.Header.Get("Retry-After")); perr == nil && secs > 0 {
				return nil, &retryAfterError{StatusError: se, after: time.Duration(secs) * time.Second}
			}
		}
		return nil, se
	}
	return respBody, nil
}

// retryAfterError wraps a 429 carrying a server-specified delay.
type retryAfterError struct {
	*StatusError
	after time.Duration
}

func (e *retryAfterError) Unwrap() error { return e.StatusError }

// classify decides whether an error is retryable and whether the server
// requested a specific delay.
func classify(err error) (retryable bool, retryAfter time.Duration) {
	var rae *retryAfterError
	if errors.As(err, &rae) {
		return true, rae.after
	}
	var se *StatusError
	if errors.As(err, &se) {
		switch se.Code {
		case http.StatusServiceUnavailable, http.StatusTooManyRequests:
			return true, 0
		default:
			// 4xx and the remaining 5xx are not retried here; the
			// caller's breaker decides what to do with persistent 5xx.
			return false, 0
		}
	}
	// Network errors and timeouts are retryable.
	return true, 0
}

func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
