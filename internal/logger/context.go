package logger

import (
	"context"

	"github.com/google/uuid"
)

// NewTurnID returns a fresh id for one submitted prompt.
func NewTurnID() string {
	return uuid.NewString()
}

func WithTurnID(ctx context.Context, turnID string) context.Context {
	return context.WithValue(ctx, ContextKeyTurnID, turnID)
}

func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, ContextKeySessionID, sessionID)
}

func WithThreadID(ctx context.Context, threadID string) context.Context {
	return context.WithValue(ctx, ContextKeyThreadID, threadID)
}

// TurnID returns the turn id stored in ctx, if any.
func TurnID(ctx context.Context) string {
	if v, ok := ctx.Value(ContextKeyTurnID).(string); ok {
		return v
	}
	return ""
}
