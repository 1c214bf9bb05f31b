package ai

import (
	"context"

	"ai-reply-assistant/internal/domain"
	"ai-reply-assistant/internal/domain/ports/adapter"
)

var _ adapter.CompletionService = (*limitedAI)(nil)

// limitedAI caps in-flight completion calls across all workers.
type limitedAI struct {
	inner adapter.CompletionService
	sem   chan struct{}
}

func NewLimitedAI(inner adapter.CompletionService, maxConcurrent int) adapter.CompletionService {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedAI{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

// Complete waits for a slot; a caller whose context ends while queued gets a
// transient error and never reaches the provider.
func (l *limitedAI) Complete(ctx context.Context, req adapter.CompletionRequest) (adapter.Completion, error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return adapter.Completion{}, domain.Transient("ai.acquire", ctx.Err())
	}
	defer func() { <-l.sem }()
	return l.inner.Complete(ctx, req)
}
