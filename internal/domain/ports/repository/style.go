package repository

import (
	"context"

	"ai-reply-assistant/internal/domain/model"
)

type StyleRepository interface {
	GetStylePreferences(ctx context.Context, tenantID, userID string) (*model.StylePreferences, error)
}

type PersonRepository interface {
	// GetPersonContext returns free-form notes userID keeps about targetUserID,
	// or "" when there are none.
	GetPersonContext(ctx context.Context, tenantID, userID, targetUserID string) (string, error)
}
