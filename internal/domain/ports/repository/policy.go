package repository

import (
	"context"

	"ai-reply-assistant/internal/domain/model"
)

type PolicyRepository interface {
	// GetPolicy returns the tenant's policy, or a zero policy (allow everything)
	// when none is configured.
	GetPolicy(ctx context.Context, tenantID string) (*model.GuardrailPolicy, error)
}
