// File: internal/infra/adapters/ai/multi_adapter.go
package ai

import (
	"context"
	"errors"
	"strings"
	"time"

	"ai-reply-assistant/internal/domain/ports/adapter"
	"ai-reply-assistant/internal/infra/metrics"
)

var _ adapter.CompletionService = (*MultiAIAdapter)(nil)

// MultiAIAdapter routes a request to a provider by model name and records
// completion metrics for every call.
type MultiAIAdapter struct {
	defaultProvider string
	byProvider      map[string]adapter.CompletionService
	modelToProvider map[string]string
}

func NewMultiAIAdapter(
	defaultProvider string,
	byProvider map[string]adapter.CompletionService,
	modelToProvider map[string]string,
) *MultiAIAdapter {
	return &MultiAIAdapter{
		defaultProvider: strings.ToLower(defaultProvider),
		byProvider:      byProvider,
		modelToProvider: modelToProvider,
	}
}

func (m *MultiAIAdapter) resolveProvider(model string) string {
	if p := m.modelToProvider[model]; p != "" {
		return strings.ToLower(p)
	}
	l := strings.ToLower(model)
	switch {
	case strings.HasPrefix(l, "gemini"):
		return "gemini"
	case strings.HasPrefix(l, "gpt"), strings.HasPrefix(l, "o1"), strings.HasPrefix(l, "o3"), strings.HasPrefix(l, "o4"):
		return "openai"
	default:
		return m.defaultProvider
	}
}

func (m *MultiAIAdapter) pick(model string) (string, adapter.CompletionService) {
	prov := m.resolveProvider(model)
	if a := m.byProvider[prov]; a != nil {
		return prov, a
	}
	if a := m.byProvider[m.defaultProvider]; a != nil {
		return m.defaultProvider, a
	}
	return "", nil
}

func (m *MultiAIAdapter) Complete(ctx context.Context, req adapter.CompletionRequest) (adapter.Completion, error) {
	prov, a := m.pick(req.Model)
	if a == nil {
		return adapter.Completion{}, errors.New("no ai provider configured")
	}
	start := time.Now()
	out, err := a.Complete(ctx, req)
	model := out.Model
	if model == "" {
		model = req.Model
	}
	metrics.ObserveCompletion(prov, model, out.Usage.PromptTokens, out.Usage.CompletionTokens,
		time.Since(start).Milliseconds(), err == nil)
	return out, err
}
