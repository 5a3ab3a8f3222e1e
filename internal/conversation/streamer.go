package conversation

import (
	"context"
	"iter"

	"plaichat/internal/api"
	"plaichat/internal/stream"
)

// APIStreamer opens streams through the backend invoke endpoint.
type APIStreamer struct {
	Client *api.Client
}

func (s APIStreamer) Open(ctx context.Context, sessionID, threadID, token, prompt string) (iter.Seq2[string, error], error) {
	resp, err := s.Client.Invoke(ctx, sessionID, threadID, token, prompt)
	if err != nil {
		return nil, err
	}
	return stream.Read(ctx, resp), nil
}
