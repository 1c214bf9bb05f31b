package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ai-reply-assistant/internal/domain"
	"ai-reply-assistant/internal/domain/ports/adapter"
)

func TestOpenAIAdapter_Complete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
  "id": "chatcmpl-1", "object": "chat.completion", "created": 1700000000, "model": "gpt-4o-mini",
  "choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "Happy to help."}}],
  "usage": {"prompt_tokens": 42, "completion_tokens": 5, "total_tokens": 47}
}`))
	}))
	defer srv.Close()

	a, err := NewOpenAIAdapter("sk-test", srv.URL+"/v1/", "gpt-4o-mini", 200)
	if err != nil {
		t.Fatal(err)
	}
	out, err := a.Complete(context.Background(), adapter.CompletionRequest{
		Sections: []adapter.Message{
			{Role: "system", Content: "You draft replies."},
			{Role: "user", Content: "hello"},
		},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out.Text != "Happy to help." || out.Usage.PromptTokens != 42 || out.Provider != "openai" {
		t.Errorf("unexpected completion %+v", out)
	}
	msgs, _ := got["messages"].([]any)
	if len(msgs) != 2 || got["model"] != "gpt-4o-mini" {
		t.Errorf("unexpected request body %v", got)
	}
}

func TestOpenAIAdapter_RateLimitIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "slow down", "type": "rate_limit", "code": "rate_limit_exceeded"}}`))
	}))
	defer srv.Close()

	a, _ := NewOpenAIAdapter("sk-test", srv.URL+"/v1/", "gpt-4o-mini", 0)
	_, err := a.Complete(context.Background(), adapter.CompletionRequest{Sections: []adapter.Message{{Role: "user", Content: "hi"}}})
	if !domain.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if d := domain.RetryAfterHint(err); d != 7*time.Second {
		t.Errorf("retry hint = %s", d)
	}
}

func TestClassify(t *testing.T) {
	base := errors.New("boom")
	cases := []struct {
		status    int
		transient bool
	}{
		{0, true},
		{http.StatusRequestTimeout, true},
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
	}
	for _, tc := range cases {
		if got := domain.IsTransient(classify("op", tc.status, "", base)); got != tc.transient {
			t.Errorf("status %d transient=%v, want %v", tc.status, got, tc.transient)
		}
	}
	if !domain.IsTransient(classify("op", http.StatusBadRequest, "", context.DeadlineExceeded)) {
		t.Error("deadline should always be transient")
	}
}
