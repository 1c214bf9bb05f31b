package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"ai-reply-assistant/internal/domain"
	"ai-reply-assistant/internal/domain/model"
	"ai-reply-assistant/internal/domain/ports/repository"
)

var _ repository.UsageRepository = (*usageRepo)(nil)

const usageColumns = `tenant_id, user_id, used, quota, overage, period_start, period_end`

// usageRepo keeps one row per tenant and user. Periods are calendar months
// (UTC); a row whose period has ended is reset on the next touch, and a
// missing row is created with the configured default quota.
type usageRepo struct {
	pool           *pgxpool.Pool
	defaultLimit   int64
	defaultOverage int64
	now            func() time.Time
}

func NewUsageRepo(pool *pgxpool.Pool, defaultLimit, defaultOverage int64) *usageRepo {
	return &usageRepo{
		pool:           pool,
		defaultLimit:   defaultLimit,
		defaultOverage: defaultOverage,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

func (r *usageRepo) ensure(ctx context.Context, tx repository.Tx, tenantID, userID string) error {
	now := r.now()
	start, end := model.NextPeriod(time.Time{}, now)
	const q = `
INSERT INTO usage_counters (` + usageColumns + `)
VALUES ($1, $2, 0, $3, $4, $5, $6)
ON CONFLICT (tenant_id, user_id) DO UPDATE SET
  used = 0,
  period_start = EXCLUDED.period_start,
  period_end = EXCLUDED.period_end
WHERE usage_counters.period_end <= $7;`
	_, err := execSQL(ctx, r.pool, tx, q, tenantID, userID, r.defaultLimit, r.defaultOverage, start, end, now)
	return err
}

func (r *usageRepo) ReadCounter(ctx context.Context, tx repository.Tx, tenantID, userID string) (*model.UsageCounter, error) {
	if err := r.ensure(ctx, tx, tenantID, userID); err != nil {
		return nil, err
	}
	row, err := pickRow(ctx, r.pool, tx,
		`SELECT `+usageColumns+` FROM usage_counters WHERE tenant_id = $1 AND user_id = $2;`, tenantID, userID)
	if err != nil {
		return nil, err
	}
	return scanUsage(row)
}

func (r *usageRepo) Increment(ctx context.Context, tx repository.Tx, tenantID, userID string) (*model.UsageCounter, error) {
	if err := r.ensure(ctx, tx, tenantID, userID); err != nil {
		return nil, err
	}
	row, err := pickRow(ctx, r.pool, tx, `
UPDATE usage_counters SET used = used + 1
WHERE tenant_id = $1 AND user_id = $2
RETURNING `+usageColumns+`;`, tenantID, userID)
	if err != nil {
		return nil, err
	}
	return scanUsage(row)
}

// IncrementIfBelow relies on the row lock taken by UPDATE: concurrent callers
// re-evaluate used < ceiling after the first commits, so the ceiling holds.
func (r *usageRepo) IncrementIfBelow(ctx context.Context, tx repository.Tx, tenantID, userID string, ceiling int64) (*model.UsageCounter, bool, error) {
	if err := r.ensure(ctx, tx, tenantID, userID); err != nil {
		return nil, false, err
	}
	row, err := pickRow(ctx, r.pool, tx, `
UPDATE usage_counters SET used = used + 1
WHERE tenant_id = $1 AND user_id = $2 AND used < $3
RETURNING `+usageColumns+`;`, tenantID, userID, ceiling)
	if err != nil {
		return nil, false, err
	}
	c, err := scanUsage(row)
	if err == nil {
		return c, true, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, err
	}
	c, err = r.ReadCounter(ctx, tx, tenantID, userID)
	if err != nil {
		return nil, false, err
	}
	return c, false, nil
}

func scanUsage(row pgx.Row) (*model.UsageCounter, error) {
	var c model.UsageCounter
	if err := row.Scan(&c.TenantID, &c.UserID, &c.Used, &c.Limit, &c.Overage, &c.PeriodStart, &c.PeriodEnd); err != nil {
		return nil, scanErr(err)
	}
	return &c, nil
}
