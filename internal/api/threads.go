package api

import (
	"context"
	"net/http"
	"net/url"

	"plaichat/internal/models"
)

func threadPath(sessionID, threadID string) string {
	return sessionPath(sessionID) + "/threads/" + url.PathEscape(threadID)
}

func (c *Client) ListThreads(ctx context.Context, sessionID, token string) ([]models.Thread, *APIError) {
	var threads []models.Thread
	if apiErr := c.do(ctx, request{
		op:       "list_threads",
		method:   http.MethodGet,
		endpoint: sessionPath(sessionID) + "/threads",
		token:    token,
	}, &threads); apiErr != nil {
		return nil, apiErr
	}
	return threads, nil
}

// GetThread returns the thread with its nested messages.
func (c *Client) GetThread(ctx context.Context, sessionID, threadID, token string) (*models.Thread, *APIError) {
	var thread models.Thread
	if apiErr := c.do(ctx, request{
		op:       "get_thread",
		method:   http.MethodGet,
		endpoint: threadPath(sessionID, threadID),
		token:    token,
	}, &thread); apiErr != nil {
		return nil, apiErr
	}
	return &thread, nil
}

func (c *Client) CreateThread(ctx context.Context, sessionID, token string) (*models.Thread, *APIError) {
	var thread models.Thread
	if apiErr := c.do(ctx, request{
		op:       "create_thread",
		method:   http.MethodPost,
		endpoint: sessionPath(sessionID) + "/threads",
		token:    token,
	}, &thread); apiErr != nil {
		return nil, apiErr
	}
	return &thread, nil
}

// DeleteThread reports success only; the failure is logged.
func (c *Client) DeleteThread(ctx context.Context, sessionID, threadID, token string) bool {
	if apiErr := c.do(ctx, request{
		op:       "delete_thread",
		method:   http.MethodDelete,
		endpoint: threadPath(sessionID, threadID),
		token:    token,
	}, nil); apiErr != nil {
		c.log.Error("Failed to delete thread", "thread_id", threadID, "status", apiErr.Status)
		return false
	}
	return true
}
