package audit

import (
	"context"

	"ai-reply-assistant/internal/domain/model"
	"ai-reply-assistant/internal/domain/ports/adapter"
	"ai-reply-assistant/internal/domain/ports/repository"
)

var _ adapter.AuditSink = (*StoreSink)(nil)

// StoreSink persists events through the audit repository.
type StoreSink struct {
	repo repository.AuditRepository
}

func NewStoreSink(repo repository.AuditRepository) *StoreSink {
	return &StoreSink{repo: repo}
}

func (s *StoreSink) Record(ctx context.Context, ev model.AuditEvent) error {
	return s.repo.Insert(ctx, &ev)
}
