package adapter

import (
	"context"

	"ai-reply-assistant/internal/domain/model"
)

// ChatPlatform is the chat workspace API.
type ChatPlatform interface {
	// FetchHistory returns messages up to and including anchorTS, oldest first.
	// With a threadTS it returns that thread's replies instead of channel history.
	FetchHistory(ctx context.Context, channelID, anchorTS, threadTS string, limit int) ([]model.ContextMessage, error)
	PostEphemeral(ctx context.Context, channelID, userID, text string) error
	PostMessage(ctx context.Context, channelID, threadTS, text string) error
	// OpenDirect opens (or reuses) the one-to-one conversation with userID.
	OpenDirect(ctx context.Context, userID string) (channelID string, err error)
}
