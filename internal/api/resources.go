package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/pkg/errors"

	"plaichat/internal/models"
)

// RateMessage records a thumbs up/down for an assistant message.
func (c *Client) RateMessage(ctx context.Context, token, agentID, messageID string, rating models.Rating) *APIError {
	return c.do(ctx, request{
		op:       "rate_message",
		method:   http.MethodPost,
		endpoint: "/agents/" + url.PathEscape(agentID) + "/rate",
		token:    token,
		body: map[string]string{
			"agent_id":   agentID,
			"message_id": messageID,
			"rating":     string(rating),
		},
	}, nil)
}

// GetResource returns nil when the resource cannot be loaded, which callers
// render as a degraded citation.
func (c *Client) GetResource(ctx context.Context, token, sessionID, resourceID string) *models.Resource {
	var res models.Resource
	if apiErr := c.do(ctx, request{
		op:       "get_resource",
		method:   http.MethodGet,
		endpoint: sessionPath(sessionID) + "/resources/" + url.PathEscape(resourceID),
		token:    token,
	}, &res); apiErr != nil {
		return nil
	}
	return &res
}

func (c *Client) GetDownloadURL(ctx context.Context, token, sessionID, resourceID string) (string, error) {
	var out struct {
		DownloadURL string `json:"download_url"`
	}
	if apiErr := c.do(ctx, request{
		op:       "download_url",
		method:   http.MethodGet,
		endpoint: sessionPath(sessionID) + "/resources/" + url.PathEscape(resourceID) + "/download",
		token:    token,
	}, &out); apiErr != nil {
		return "", errors.Wrap(apiErr, "Failed to get download url")
	}
	return out.DownloadURL, nil
}

// TranscriptionUsage is reported after every speech-to-text call.
type TranscriptionUsage struct {
	ProjectID   string `json:"project_id,omitempty"`
	LLMModel    string `json:"llm_model"`
	LLMProvider string `json:"llm_provider"`
	Bytes       int64  `json:"bytes"`
}

func (c *Client) RegisterTranscription(ctx context.Context, managementKey string, usage TranscriptionUsage) error {
	if managementKey == "" {
		return errors.New("missing users management key")
	}
	if apiErr := c.do(ctx, request{
		op:       "register_transcription",
		method:   http.MethodPost,
		endpoint: "/usage/whisper",
		headers:  map[string]string{"Users-Management-Key": managementKey},
		body:     usage,
	}, nil); apiErr != nil {
		return errors.Wrap(apiErr, "Failed to register whisper request")
	}
	return nil
}
