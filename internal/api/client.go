// Package api wraps the PLai backend REST contracts used by the chat client.
//
// Every request/response call returns a typed *APIError instead of a Go
// error so callers can branch on Status (408 is reserved for the client side
// timeout). Refresh and the invoke stream are the exceptions and return
// plain errors.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"plaichat/internal/logger"
	"plaichat/internal/metrics"
)

const DefaultTimeout = 30 * time.Second

// APIError is the {body, detail, status} shape surfaced for every failed request.
type APIError struct {
	Body   string `json:"body"`
	Detail string `json:"detail,omitempty"`
	Status int    `json:"status"`
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (status %d)", e.Detail, e.Status)
	}
	return fmt.Sprintf("%s (status %d)", e.Body, e.Status)
}

type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	log     *logger.Logger
	metrics *metrics.Metrics

	refreshes singleflight.Group
}

type Option func(*Client)

// WithHTTPClient replaces the transport. Its Timeout must be zero or the
// invoke stream is cut off; per-request timeouts are applied via context.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l.WithComponent("api")
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{},
		timeout: DefaultTimeout,
		log:     logger.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

type request struct {
	op       string
	method   string
	endpoint string
	token    string
	headers  map[string]string
	body     any
}

// do runs one request with the default timeout and decodes a 2xx JSON body
// into out. Nothing escapes as a panic or plain error.
func (c *Client) do(ctx context.Context, r request, out any) *APIError {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return &APIError{Body: errors.Wrap(err, "encoding request").Error(), Status: http.StatusInternalServerError}
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(reqCtx, r.method, c.baseURL+r.endpoint, body)
	if err != nil {
		return &APIError{Body: err.Error(), Status: http.StatusInternalServerError}
	}
	req.Header.Set("Content-Type", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	status := 0
	defer func() {
		c.observe(r.op, status, time.Since(start))
	}()

	resp, err := c.http.Do(req)
	if err != nil {
		apiErr := c.transportError(ctx, reqCtx, r.endpoint, err)
		status = apiErr.Status
		return apiErr
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		apiErr := c.transportError(ctx, reqCtx, r.endpoint, err)
		status = apiErr.Status
		return apiErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{
			Body:   fmt.Sprintf("Error while trying to fetch %s [status: %d]: %s", r.endpoint, resp.StatusCode, raw),
			Status: resp.StatusCode,
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			apiErr.Detail = parseDetail(raw)
		}
		c.log.Error("API error", "endpoint", r.endpoint, "status", resp.StatusCode, "body", string(raw))
		return apiErr
	}

	if r.method == http.MethodDelete || out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &APIError{
			Body:   errors.Wrapf(err, "decoding response from %s", r.endpoint).Error(),
			Status: http.StatusInternalServerError,
		}
	}
	return nil
}

func (c *Client) transportError(parent, reqCtx context.Context, endpoint string, err error) *APIError {
	if parent.Err() == nil && errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
		msg := fmt.Sprintf("Timeout of %dms exceeded while trying to fetch %s", c.timeout.Milliseconds(), endpoint)
		c.log.Error(msg)
		return &APIError{Body: msg, Status: http.StatusRequestTimeout}
	}
	c.log.Error("request failed", "endpoint", endpoint, "error", err)
	return &APIError{Body: err.Error(), Status: http.StatusInternalServerError}
}

// parseDetail pulls the FastAPI style "detail" out of a 4xx body. Structured
// details (validation errors) are kept as their JSON text.
func parseDetail(raw []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil || len(payload.Detail) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(payload.Detail, &s); err == nil {
		return s
	}
	return string(payload.Detail)
}

func (c *Client) observe(op string, status int, d time.Duration) {
	if c.metrics == nil {
		return
	}
	c.metrics.Requests.WithLabelValues(op, strconv.Itoa(status)).Inc()
	c.metrics.RequestDuration.WithLabelValues(op).Observe(d.Seconds())
}
