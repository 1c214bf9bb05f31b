package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4/pgxpool"

	"ai-reply-assistant/internal/domain"
	"ai-reply-assistant/internal/domain/model"
	"ai-reply-assistant/internal/domain/ports/repository"
)

var _ repository.PolicyRepository = (*policyRepo)(nil)

type policyRepo struct {
	pool *pgxpool.Pool
}

func NewPolicyRepo(pool *pgxpool.Pool) *policyRepo {
	return &policyRepo{pool: pool}
}

func (r *policyRepo) GetPolicy(ctx context.Context, tenantID string) (*model.GuardrailPolicy, error) {
	const q = `
SELECT enabled_categories, blocked_keywords, trigger_mode
FROM guardrail_policies WHERE tenant_id = $1;`
	row, err := pickRow(ctx, r.pool, nil, q, tenantID)
	if err != nil {
		return nil, err
	}
	p := &model.GuardrailPolicy{TenantID: tenantID}
	var mode string
	err = scanErr(row.Scan(&p.EnabledCategories, &p.BlockedKeywords, &mode))
	if errors.Is(err, domain.ErrNotFound) {
		return p, nil
	}
	if err != nil {
		return nil, err
	}
	p.TriggerMode = model.TriggerMode(mode)
	return p, nil
}

// UpsertPolicy is used by replyctl to manage tenant policies.
func (r *policyRepo) UpsertPolicy(ctx context.Context, p *model.GuardrailPolicy) error {
	const q = `
INSERT INTO guardrail_policies (tenant_id, enabled_categories, blocked_keywords, trigger_mode, updated_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (tenant_id) DO UPDATE SET
  enabled_categories = EXCLUDED.enabled_categories,
  blocked_keywords = EXCLUDED.blocked_keywords,
  trigger_mode = EXCLUDED.trigger_mode,
  updated_at = EXCLUDED.updated_at;`
	cats, kws := p.EnabledCategories, p.BlockedKeywords
	if cats == nil {
		cats = []string{}
	}
	if kws == nil {
		kws = []string{}
	}
	_, err := execSQL(ctx, r.pool, nil, q, p.TenantID, cats, kws, string(p.TriggerMode))
	return err
}
