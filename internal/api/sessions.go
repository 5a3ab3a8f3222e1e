package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"

	"plaichat/internal/models"
)

func sessionPath(sessionID string) string {
	return "/chat_sessions/" + url.PathEscape(sessionID)
}

// FetchSession loads the session with its agent and allowed vectors.
func (c *Client) FetchSession(ctx context.Context, sessionID, accessToken string) (*models.ChatSession, *APIError) {
	var session models.ChatSession
	if apiErr := c.do(ctx, request{
		op:       "fetch_session",
		method:   http.MethodGet,
		endpoint: sessionPath(sessionID),
		token:    accessToken,
	}, &session); apiErr != nil {
		return nil, apiErr
	}
	return &session, nil
}

// Refresh exchanges the refresh token for a new access token. It never
// retries. Concurrent calls for the same session share one request.
func (c *Client) Refresh(ctx context.Context, sessionID, refreshToken string) (string, error) {
	v, err, shared := c.refreshes.Do(sessionID, func() (any, error) {
		return c.refresh(ctx, sessionID, refreshToken)
	})
	if shared {
		c.log.Debug("joined in-flight refresh", "session_id", sessionID)
	}
	if err != nil {
		c.countRefresh("error")
		return "", err
	}
	c.countRefresh("ok")
	return v.(string), nil
}

func (c *Client) refresh(ctx context.Context, sessionID, refreshToken string) (string, error) {
	var out struct {
		ChatToken string `json:"chat_token"`
	}
	if apiErr := c.do(ctx, request{
		op:       "refresh",
		method:   http.MethodPost,
		endpoint: sessionPath(sessionID) + "/refresh",
		token:    refreshToken,
	}, &out); apiErr != nil {
		return "", errors.Wrap(apiErr, "refreshing chat session")
	}
	if out.ChatToken == "" {
		return "", errors.New("refresh response carried no chat_token")
	}
	return out.ChatToken, nil
}

func (c *Client) countRefresh(result string) {
	if c.metrics != nil {
		c.metrics.Refreshes.WithLabelValues(result).Inc()
	}
}

// CreateSession opens a new chat session for an agent using a project
// token. An empty externalRef gets a generated short id.
func (c *Client) CreateSession(ctx context.Context, agentID, externalRef, projectJWT string) (*models.NewChatSession, *APIError) {
	if externalRef == "" {
		externalRef = shortuuid.New()
	}
	var session models.NewChatSession
	if apiErr := c.do(ctx, request{
		op:       "create_session",
		method:   http.MethodPost,
		endpoint: "/chat_sessions",
		token:    projectJWT,
		body: map[string]string{
			"agent_id":     agentID,
			"external_ref": externalRef,
		},
	}, &session); apiErr != nil {
		return nil, apiErr
	}
	return &session, nil
}
