package repository

import (
	"context"
	"time"

	"ai-reply-assistant/internal/domain/model"
)

type SuggestionRepository interface {
	// Create inserts rec; returns domain.ErrAlreadyExists if the job already has one.
	Create(ctx context.Context, tx Tx, rec *model.SuggestionRecord) error
	FindByJobID(ctx context.Context, tx Tx, jobID string) (*model.SuggestionRecord, error)
	FindByID(ctx context.Context, tx Tx, id string) (*model.SuggestionRecord, error)

	MarkUsageReserved(ctx context.Context, tx Tx, id string) error
	MarkState(ctx context.Context, tx Tx, id string, state model.SuggestionState) error
	MarkDelivered(ctx context.Context, tx Tx, id string, channel model.DeliveryChannel, at time.Time) error
}
