package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

// StreamError is returned when the invoke endpoint answers with a non-2xx status.
type StreamError struct {
	Status int
	Body   string
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream request failed [status: %d]: %s", e.Status, e.Body)
}

// IsUnauthorized reports whether err means the access token was rejected.
func IsUnauthorized(err error) bool {
	if err == nil {
		return false
	}
	var se *StreamError
	if errors.As(err, &se) {
		return se.Status == http.StatusUnauthorized
	}
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Status == http.StatusUnauthorized
	}
	return strings.Contains(err.Error(), "401")
}

// Invoke opens the assistant response stream for prompt. The connection has
// no timeout of its own and lives until the server closes it or ctx ends.
// The caller owns the returned body.
func (c *Client) Invoke(ctx context.Context, sessionID, threadID, token, prompt string) (*http.Response, error) {
	payload, err := json.Marshal(map[string]string{"prompt": prompt})
	if err != nil {
		return nil, errors.Wrap(err, "encoding prompt")
	}

	endpoint := threadPath(sessionID, threadID) + "/invoke"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "building invoke request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		c.observe("invoke", 0, 0)
		return nil, errors.Wrap(err, "opening stream")
	}
	c.observe("invoke", resp.StatusCode, 0)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StreamError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return resp, nil
}
