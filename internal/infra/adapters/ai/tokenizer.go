package ai

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"ai-reply-assistant/internal/domain/ports/adapter"
)

var _ adapter.TokenCounter = (*Tokenizer)(nil)

// Tokenizer counts tokens with the model's BPE encoding. If the encoding
// cannot be loaded it falls back to a four-characters-per-token estimate.
type Tokenizer struct {
	model string
	once  sync.Once
	enc   *tiktoken.Tiktoken
}

func NewTokenizer(model string) *Tokenizer {
	return &Tokenizer{model: model}
}

func (t *Tokenizer) load() {
	enc, err := tiktoken.EncodingForModel(t.model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
	}
	if err == nil {
		t.enc = enc
	}
}

func (t *Tokenizer) Count(text string) int {
	if text == "" {
		return 0
	}
	t.once.Do(t.load)
	if t.enc != nil {
		return len(t.enc.Encode(text, nil, nil))
	}
	return EstimateTokens(text)
}

// EstimateTokens is the offline approximation, rounded up.
func EstimateTokens(text string) int {
	n := len([]rune(text))
	return (n + 3) / 4
}
