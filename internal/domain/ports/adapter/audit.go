package adapter

import (
	"context"

	"ai-reply-assistant/internal/domain/model"
)

// AuditSink receives pipeline and feedback events. Best effort: callers log a
// failure and move on.
type AuditSink interface {
	Record(ctx context.Context, ev model.AuditEvent) error
}

// AlertNotifier pages operators about jobs that ended in the dead-letter state.
type AlertNotifier interface {
	Alert(ctx context.Context, text string) error
}
