// File: internal/infra/adapters/ai/gemini_adapter.go
package ai

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/genai"

	"ai-reply-assistant/internal/domain/ports/adapter"
)

var _ adapter.CompletionService = (*GeminiAdapter)(nil)

type GeminiAdapter struct {
	client       *genai.Client
	defaultModel string
	maxOut       int
}

// NewGeminiAdapter creates a Gemini adapter using the official SDK.
func NewGeminiAdapter(ctx context.Context, apiKey, baseURL, defaultModel string, maxOut int) (*GeminiAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: baseURL,
		},
	})
	if err != nil {
		return nil, err
	}
	if defaultModel == "" {
		defaultModel = "gemini-2.0-flash"
	}
	return &GeminiAdapter{client: c, defaultModel: defaultModel, maxOut: maxOut}, nil
}

// Complete sends system sections as the system instruction and everything
// else as user content, preserving order.
func (g *GeminiAdapter) Complete(ctx context.Context, req adapter.CompletionRequest) (adapter.Completion, error) {
	model := modelOrDefault(req.Model, g.defaultModel)
	system, contents := toGenAIContents(req.Sections)
	if len(contents) == 0 {
		return adapter.Completion{}, errors.New("gemini: no user content")
	}

	cfg := &genai.GenerateContentConfig{}
	if system != nil {
		cfg.SystemInstruction = system
	}
	maxOut := req.MaxTokens
	if maxOut <= 0 {
		maxOut = g.maxOut
	}
	if maxOut > 0 {
		cfg.MaxOutputTokens = int32(maxOut)
	}

	resp, err := g.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return adapter.Completion{}, classify("gemini.generate", apiErr.Code, "", err)
		}
		return adapter.Completion{}, classify("gemini.generate", 0, "", err)
	}

	out := adapter.Completion{Model: model, Provider: "gemini"}
	if resp != nil {
		out.Text = resp.Text()
		if resp.UsageMetadata != nil {
			out.Usage = adapter.Usage{
				PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
				CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
				TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
			}
		}
	}
	return out, nil
}

func toGenAIContents(sections []adapter.Message) (*genai.Content, []*genai.Content) {
	var sys []*genai.Part
	out := make([]*genai.Content, 0, len(sections))
	for _, m := range sections {
		switch strings.ToLower(m.Role) {
		case "system":
			sys = append(sys, &genai.Part{Text: m.Content})
		case "assistant", "model":
			out = append(out, &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{{Text: m.Content}}})
		default:
			out = append(out, &genai.Content{Role: genai.RoleUser, Parts: []*genai.Part{{Text: m.Content}}})
		}
	}
	if len(sys) == 0 {
		return nil, out
	}
	return &genai.Content{Parts: sys}, out
}
