package telegram

import (
	"context"

	"github.com/rs/zerolog"

	"ai-reply-assistant/internal/domain/ports/adapter"
)

var _ adapter.AlertNotifier = (*LogAlerter)(nil)

// LogAlerter writes alerts to the log when no Telegram token is configured.
type LogAlerter struct {
	log *zerolog.Logger
}

func NewLogAlerter(logger *zerolog.Logger) *LogAlerter {
	return &LogAlerter{log: logger}
}

func (l *LogAlerter) Alert(_ context.Context, text string) error {
	l.log.Warn().Str("alert", text).Msg("operator alert")
	return nil
}
