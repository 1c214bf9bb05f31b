package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ai-reply-assistant/internal/domain"
	"ai-reply-assistant/internal/domain/model"
	"ai-reply-assistant/internal/infra/logging"
)

type fakeOps struct {
	dead    []*model.GenerationJob
	voided  []string
	err     error
	limitIn int
}

func (f *fakeOps) Void(_ context.Context, jobID string) error {
	if f.err != nil {
		return f.err
	}
	f.voided = append(f.voided, jobID)
	return nil
}

func (f *fakeOps) Resend(_ context.Context, id string) (model.DeliveryOutcome, error) {
	if f.err != nil {
		return model.DeliveryOutcome{}, f.err
	}
	return model.DeliveryOutcome{Channel: model.DeliveryDMFallback, Success: true, Attempts: 3}, nil
}

func (f *fakeOps) ListDeadLetters(_ context.Context, limit int) ([]*model.GenerationJob, error) {
	f.limitIn = limit
	return f.dead, f.err
}

func newTestConsole(t *testing.T, ops Operations) (*OperatorConsole, *[]string) {
	t.Helper()
	var mu sync.Mutex
	var sent []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			_, _ = w.Write([]byte(`{"ok": true, "result": {"id": 1, "is_bot": true, "first_name": "ops", "username": "ops_bot"}}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			_ = r.ParseForm()
			mu.Lock()
			sent = append(sent, r.Form.Get("chat_id")+":"+r.Form.Get("text"))
			mu.Unlock()
			_, _ = w.Write([]byte(`{"ok": true, "result": {"message_id": 7, "date": 1700000000, "chat": {"id": 100, "type": "private"}}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	alerts, err := NewAlertBot("123:abc", []int64{100}, srv.URL+"/bot%s/%s")
	if err != nil {
		t.Fatalf("NewAlertBot: %v", err)
	}
	return NewOperatorConsole(alerts, ops, 1, logging.Nop()), &sent
}

func TestOperatorConsole_Handle(t *testing.T) {
	ctx := context.Background()
	ops := &fakeOps{dead: []*model.GenerationJob{{ID: "job-1", TenantID: "T1", UserID: "U1", Attempts: 5, LastError: "completion timeout"}}}
	c, _ := newTestConsole(t, ops)

	cases := []struct {
		in   string
		want string
	}{
		{"hello there", ""},
		{"/help", "/deadletters"},
		{"/deadletters", "job-1 tenant=T1 user=U1 attempts=5: completion timeout"},
		{"/deadletters abc", "Usage: /deadletters"},
		{"/void@ops_bot job-9", "Voided job job-9"},
		{"/void", "Usage: /void"},
		{"/resend s-1", "Delivered s-1 via dm_fallback after 3 attempt(s)"},
		{"/shrug", "Unknown command"},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got := c.Handle(ctx, tc.in)
			if tc.want == "" {
				if got != "" {
					t.Fatalf("expected no reply, got %q", got)
				}
				return
			}
			if !strings.Contains(got, tc.want) {
				t.Fatalf("Handle(%q) = %q, want it to contain %q", tc.in, got, tc.want)
			}
		})
	}
	if ops.limitIn != 10 {
		t.Errorf("default limit = %d", ops.limitIn)
	}
	if len(ops.voided) != 1 || ops.voided[0] != "job-9" {
		t.Errorf("voided = %v", ops.voided)
	}
}

func TestOperatorConsole_Failures(t *testing.T) {
	ctx := context.Background()
	cases := map[error]string{
		domain.ErrNotFound: "Not found: void j",
		fmt.Errorf("%w: suggestion already delivered", domain.ErrInvalidArgument): "Cannot void j",
		errors.New("pool exhausted"): "Failed to void j, see logs.",
	}
	for err, want := range cases {
		c, _ := newTestConsole(t, &fakeOps{err: err})
		if got := c.Handle(ctx, "/void j"); got != want && !strings.HasPrefix(got, want) {
			t.Errorf("err %v: got %q, want %q", err, got, want)
		}
	}
}

func TestOperatorConsole_OnlyAnswersAlertChats(t *testing.T) {
	ctx := context.Background()
	c, sent := newTestConsole(t, &fakeOps{})

	stranger := tgbotapi.Update{Message: &tgbotapi.Message{Text: "/help", Chat: &tgbotapi.Chat{ID: 999}}}
	if err := c.handleUpdate(ctx, stranger); err != nil {
		t.Fatal(err)
	}
	if len(*sent) != 0 {
		t.Fatalf("replied to unknown chat: %v", *sent)
	}

	op := tgbotapi.Update{Message: &tgbotapi.Message{Text: "/help", Chat: &tgbotapi.Chat{ID: 100}}}
	if err := c.handleUpdate(ctx, op); err != nil {
		t.Fatal(err)
	}
	if len(*sent) != 1 || !strings.HasPrefix((*sent)[0], "100:Commands:") {
		t.Fatalf("sent = %v", *sent)
	}
}
