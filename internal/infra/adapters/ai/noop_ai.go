package ai

import (
	"context"
	"time"

	"ai-reply-assistant/internal/domain/ports/adapter"
)

var _ adapter.CompletionService = (*NoopAIAdapter)(nil)

// NoopAIAdapter returns a canned reply for local runs without provider keys.
type NoopAIAdapter struct {
	Reply string
	Delay time.Duration
}

func NewNoopAIAdapter() *NoopAIAdapter {
	return &NoopAIAdapter{Reply: "Thanks, I'll take a look and get back to you shortly.", Delay: 100 * time.Millisecond}
}

func (a *NoopAIAdapter) Complete(ctx context.Context, req adapter.CompletionRequest) (adapter.Completion, error) {
	select {
	case <-time.After(a.Delay):
	case <-ctx.Done():
		return adapter.Completion{}, ctx.Err()
	}
	return adapter.Completion{Text: a.Reply, Model: "noop", Provider: "noop"}, nil
}
