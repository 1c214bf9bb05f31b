package telegram

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ai-reply-assistant/internal/domain/ports/adapter"
)

var _ adapter.AlertNotifier = (*AlertBot)(nil)

// Telegram rejects messages longer than this many characters.
const maxMessageLen = 4096

// AlertBot posts operator alerts (dead-lettered jobs) to a fixed set of
// Telegram chats.
type AlertBot struct {
	bot     *tgbotapi.BotAPI
	chatIDs []int64
}

// NewAlertBot validates the token with getMe. endpoint overrides the API
// endpoint format and is only set in tests.
func NewAlertBot(token string, chatIDs []int64, endpoint string) (*AlertBot, error) {
	if token == "" {
		return nil, errors.New("telegram token empty")
	}
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &AlertBot{bot: bot, chatIDs: chatIDs}, nil
}

// Alert sends text to every configured chat and reports all failures.
func (a *AlertBot) Alert(ctx context.Context, text string) error {
	text = truncate(text, maxMessageLen)
	var errs []error
	for _, id := range a.chatIDs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		msg := tgbotapi.NewMessage(id, text)
		msg.DisableWebPagePreview = true
		if _, err := a.bot.Send(msg); err != nil {
			errs = append(errs, fmt.Errorf("chat %d: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max-1]) + "…"
}
