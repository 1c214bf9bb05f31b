package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"ai-reply-assistant/internal/domain/model"
	"ai-reply-assistant/internal/domain/ports/repository"
	"ai-reply-assistant/internal/infra/metrics"
)

var _ repository.PolicyRepository = (*CachedPolicyRepo)(nil)

// CachedPolicyRepo is a read-through cache in front of the policy store.
// Redis failures fall back to the store; a policy is never invented.
type CachedPolicyRepo struct {
	inner  repository.PolicyRepository
	client RedisClient
	ttl    time.Duration
	log    *zerolog.Logger
}

func NewCachedPolicyRepo(inner repository.PolicyRepository, client RedisClient, ttl time.Duration, logger *zerolog.Logger) *CachedPolicyRepo {
	return &CachedPolicyRepo{inner: inner, client: client, ttl: ttl, log: logger}
}

const policyCacheName = "guardrail_policy"

func policyKey(tenantID string) string { return "guardrail_policy:" + tenantID }

type cachedPolicy struct {
	EnabledCategories []string `json:"enabled_categories"`
	BlockedKeywords   []string `json:"blocked_keywords"`
	TriggerMode       string   `json:"trigger_mode"`
}

func (c *CachedPolicyRepo) GetPolicy(ctx context.Context, tenantID string) (*model.GuardrailPolicy, error) {
	key := policyKey(tenantID)
	raw, err := c.client.Get(ctx, key)
	switch {
	case err == nil:
		var cp cachedPolicy
		if jerr := json.Unmarshal([]byte(raw), &cp); jerr == nil {
			metrics.IncCacheRequest(policyCacheName, metrics.CacheHit)
			return &model.GuardrailPolicy{
				TenantID:          tenantID,
				EnabledCategories: cp.EnabledCategories,
				BlockedKeywords:   cp.BlockedKeywords,
				TriggerMode:       model.TriggerMode(cp.TriggerMode),
			}, nil
		}
		_ = c.client.Del(ctx, key)
	case !errors.Is(err, ErrNil):
		metrics.IncCacheRequest(policyCacheName, metrics.CacheError)
		c.log.Warn().Err(err).Str("tenant_id", tenantID).Msg("policy cache read failed")
	}
	metrics.IncCacheRequest(policyCacheName, metrics.CacheMiss)

	p, err := c.inner.GetPolicy(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	data, _ := json.Marshal(cachedPolicy{
		EnabledCategories: p.EnabledCategories,
		BlockedKeywords:   p.BlockedKeywords,
		TriggerMode:       string(p.TriggerMode),
	})
	if err := c.client.Set(ctx, key, data, c.ttl); err != nil {
		c.log.Warn().Err(err).Str("tenant_id", tenantID).Msg("policy cache write failed")
	}
	return p, nil
}

// Invalidate drops the cached policy after an admin change.
func (c *CachedPolicyRepo) Invalidate(ctx context.Context, tenantID string) error {
	return c.client.Del(ctx, policyKey(tenantID))
}
