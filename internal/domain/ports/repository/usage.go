package repository

import (
	"context"

	"ai-reply-assistant/internal/domain/model"
)

type UsageRepository interface {
	// ReadCounter returns the counter for the current period, rolling it over
	// (used reset to zero) when the stored period has ended.
	ReadCounter(ctx context.Context, tx Tx, tenantID, userID string) (*model.UsageCounter, error)

	// Increment adds one unconditionally and returns the new state.
	Increment(ctx context.Context, tx Tx, tenantID, userID string) (*model.UsageCounter, error)

	// IncrementIfBelow adds one only while used < ceiling (compare-and-increment).
	// ok is false and the counter unchanged when the ceiling is reached.
	IncrementIfBelow(ctx context.Context, tx Tx, tenantID, userID string, ceiling int64) (c *model.UsageCounter, ok bool, err error)
}
