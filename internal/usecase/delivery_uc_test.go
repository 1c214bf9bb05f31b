//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"testing"

	"ai-reply-assistant/internal/domain"
	"ai-reply-assistant/internal/domain/model"
	"ai-reply-assistant/internal/testutil"
	"ai-reply-assistant/internal/usecase"
)

func newRouter(chat *testutil.ChatPlatform) usecase.DeliveryRouter {
	return usecase.NewDeliveryRouter(chat, usecase.DeliveryOptions{EphemeralAttempts: 2, DMFallbackAttempts: 1}, testutil.Logger())
}

func TestRoute_DirectMessageEphemeralRetrySucceeds(t *testing.T) {
	chat := &testutil.ChatPlatform{FailEphemeral: 1}
	out, err := newRouter(chat).Route(context.Background(), usecase.Delivery{ChannelID: "D024BE91L", UserID: "U1", Text: "hello"})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if out.Channel != model.DeliveryEphemeral || !out.Success || out.Attempts != 2 {
		t.Fatalf("outcome = %+v, want ephemeral success after 2 attempts", out)
	}
	if v := chat.Visible(); len(v) != 1 || v[0].Text != "hello" {
		t.Fatalf("visible messages = %+v, want exactly one", v)
	}
}

func TestRoute_DirectMessageFallsBackToDM(t *testing.T) {
	chat := &testutil.ChatPlatform{FailEphemeral: 10}
	out, err := newRouter(chat).Route(context.Background(), usecase.Delivery{ChannelID: "D024BE91L", UserID: "U1", Text: "hello"})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if out.Channel != model.DeliveryDMFallback || !out.Success || out.Attempts != 3 {
		t.Fatalf("outcome = %+v, want dm fallback after 2 ephemeral tries", out)
	}
	if len(chat.Messages) != 1 || chat.Messages[0].ChannelID != "D-U1" {
		t.Fatalf("dm posts = %+v", chat.Messages)
	}
}

func TestRoute_DMFallbackFailureIsReported(t *testing.T) {
	chat := &testutil.ChatPlatform{FailEphemeral: 10, PostErr: domain.Transient("chat.post", errors.New("internal_error"))}
	out, err := newRouter(chat).Route(context.Background(), usecase.Delivery{ChannelID: "D1", UserID: "U1", Text: "x"})
	var df *domain.DeliveryFailure
	if !errors.As(err, &df) {
		t.Fatalf("err = %v, want DeliveryFailure", err)
	}
	if df.Channel != string(model.DeliveryDMFallback) || df.Permanent || out.Success {
		t.Fatalf("failure = %+v outcome = %+v", df, out)
	}
	if !domain.IsRetryable(err) {
		t.Fatal("transient delivery failure should be retryable")
	}
}

func TestRoute_ChannelIsEphemeralOnly(t *testing.T) {
	chat := &testutil.ChatPlatform{FailEphemeral: 10}
	out, err := newRouter(chat).Route(context.Background(), usecase.Delivery{ChannelID: "C024BE91L", UserID: "U1", Text: "x"})
	if err == nil {
		t.Fatal("expected failure")
	}
	if out.Channel != model.DeliveryEphemeral || out.Attempts != 2 {
		t.Fatalf("outcome = %+v", out)
	}
	if len(chat.Messages) != 0 {
		t.Fatal("group channels must not fall back to a DM")
	}
	if !domain.IsTransient(err) {
		t.Fatalf("err = %v, want transient", err)
	}
}

func TestRoute_PermanentErrorStopsEarly(t *testing.T) {
	perm := &domain.DeliveryFailure{Channel: "slack", Reason: "channel_not_found", Permanent: true}
	chat := &testutil.ChatPlatform{FailEphemeral: 10, EphemeralErr: perm}
	_, err := newRouter(chat).Route(context.Background(), usecase.Delivery{ChannelID: "C1", UserID: "U1", Text: "x"})
	if chat.EphemeralCalls != 1 {
		t.Fatalf("ephemeral calls = %d, want 1", chat.EphemeralCalls)
	}
	if domain.IsRetryable(err) {
		t.Fatalf("permanent failure must not be retried: %v", err)
	}
}

func TestRoute_AssistantPanelPostsInThread(t *testing.T) {
	chat := &testutil.ChatPlatform{}
	out, err := newRouter(chat).Route(context.Background(), usecase.Delivery{
		ChannelID: "D1", UserID: "U1", ThreadTS: "1700000000.000100", Text: "x", AssistantPanel: true,
	})
	if err != nil || out.Channel != model.DeliveryAssistantPanel {
		t.Fatalf("outcome = %+v err = %v", out, err)
	}
	if chat.EphemeralCalls != 0 || len(chat.Messages) != 1 || chat.Messages[0].ThreadTS != "1700000000.000100" {
		t.Fatalf("panel delivery went to the wrong place: %+v", chat.Messages)
	}
}

func TestRoute_MissingUserIsValidation(t *testing.T) {
	_, err := newRouter(&testutil.ChatPlatform{}).Route(context.Background(), usecase.Delivery{ChannelID: "C1"})
	if !domain.IsValidation(err) {
		t.Fatalf("err = %v", err)
	}
}
