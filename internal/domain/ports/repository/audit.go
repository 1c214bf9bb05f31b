package repository

import (
	"context"

	"ai-reply-assistant/internal/domain/model"
)

type AuditRepository interface {
	Insert(ctx context.Context, ev *model.AuditEvent) error
	ListBySuggestion(ctx context.Context, suggestionID string) ([]*model.AuditEvent, error)
}
