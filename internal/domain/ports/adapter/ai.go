package adapter

import "context"

// Message represents one prompt section sent to the model.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Name    string `json:"-"`    // section label, used only for logging
	Content string `json:"content"`
}

// Usage for a single completion call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

type CompletionRequest struct {
	Model     string
	Sections  []Message
	MaxTokens int
}

type Completion struct {
	Text     string
	Model    string
	Provider string
	Usage    Usage
}

// CompletionService is the port for the external language model.
// Rate-limit and timeout failures come back as *domain.TransientError.
type CompletionService interface {
	Complete(ctx context.Context, req CompletionRequest) (Completion, error)
}

// TokenCounter measures text the way the model will.
type TokenCounter interface {
	Count(text string) int
}
