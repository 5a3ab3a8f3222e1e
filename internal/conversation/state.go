package conversation

import (
	"context"
	"errors"
	"iter"

	"plaichat/internal/api"
	"plaichat/internal/models"
)

type State int

const (
	Idle State = iota
	Streaming
	Closing
	Aborted
	Errored
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Streaming:
		return "streaming"
	case Closing:
		return "closing"
	case Aborted:
		return "aborted"
	case Errored:
		return "errored"
	default:
		return "unknown"
	}
}

var (
	ErrNotStreaming     = errors.New("no response is streaming")
	ErrNotResubmittable = errors.New("message cannot be resubmitted")
	ErrEmptyPrompt      = errors.New("prompt is empty")
	ErrNoToken          = errors.New("no authentication token found")
	ErrNoThread         = errors.New("no active thread")
)

// RestartRequired is handed to the restart callback after a successful
// token refresh. URL carries the new access token and the refresh token as
// query parameters, the same shape an embedding page would redirect to.
type RestartRequired struct {
	URL string
}

func (r RestartRequired) Error() string { return "session restart required" }

// Streamer opens the response stream for one prompt.
type Streamer interface {
	Open(ctx context.Context, sessionID, threadID, token, prompt string) (iter.Seq2[string, error], error)
}

type ThreadFetcher interface {
	GetThread(ctx context.Context, sessionID, threadID, token string) (*models.Thread, *api.APIError)
}

type Refresher interface {
	Refresh(ctx context.Context, sessionID, refreshToken string) (string, error)
}

// Session is the slice of the session context a conversation reads.
type Session interface {
	SessionID() string
	ActiveThreadID() string
	Touch()
}

type Translator interface {
	T(key string) string
}

// Notifier shows transient messages to the user.
type Notifier interface {
	Notify(message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(string)

func (f NotifierFunc) Notify(message string) { f(message) }
