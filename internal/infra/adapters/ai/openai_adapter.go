package ai

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"ai-reply-assistant/internal/domain/ports/adapter"
)

var _ adapter.CompletionService = (*OpenAIAdapter)(nil)

// OpenAIAdapter calls Chat Completions through the official SDK. Any
// OpenAI-compatible gateway works via baseURL.
type OpenAIAdapter struct {
	client openai.Client
	model  string
	maxOut int
}

func NewOpenAIAdapter(apiKey, baseURL, model string, maxOut int) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key empty")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// the job queue owns retries
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIAdapter{client: openai.NewClient(opts...), model: model, maxOut: maxOut}, nil
}

func (o *OpenAIAdapter) Complete(ctx context.Context, req adapter.CompletionRequest) (adapter.Completion, error) {
	model := modelOrDefault(req.Model, o.model)
	maxOut := req.MaxTokens
	if maxOut <= 0 {
		maxOut = o.maxOut
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: toOpenAIMessages(req.Sections),
	}
	if maxOut > 0 {
		params.MaxCompletionTokens = openai.Int(int64(maxOut))
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			retryAfter := ""
			if apiErr.Response != nil {
				retryAfter = apiErr.Response.Header.Get("Retry-After")
			}
			return adapter.Completion{}, classify("openai.chat", apiErr.StatusCode, retryAfter, err)
		}
		return adapter.Completion{}, classify("openai.chat", 0, "", err)
	}

	out := adapter.Completion{Model: model, Provider: "openai"}
	for _, c := range resp.Choices {
		if strings.TrimSpace(c.Message.Content) != "" {
			out.Text = c.Message.Content
			break
		}
	}
	out.Usage = adapter.Usage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}
	return out, nil
}

func toOpenAIMessages(sections []adapter.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(sections))
	for _, m := range sections {
		switch strings.ToLower(m.Role) {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func modelOrDefault(model, def string) string {
	if strings.TrimSpace(model) != "" {
		return model
	}
	return def
}
