package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"ai-reply-assistant/internal/config"
	"ai-reply-assistant/internal/domain/model"
	auditAdapters "ai-reply-assistant/internal/infra/adapters/audit"
	slackAdapter "ai-reply-assistant/internal/infra/adapters/slack"
	pg "ai-reply-assistant/internal/infra/db/postgres"
	"ai-reply-assistant/internal/infra/i18n"
	"ai-reply-assistant/internal/infra/logging"
	red "ai-reply-assistant/internal/infra/redis"
	"ai-reply-assistant/internal/usecase"
)

// PolicyAdmin writes tenant guardrail policies.
type PolicyAdmin interface {
	SetPolicy(ctx context.Context, p *model.GuardrailPolicy) error
}

type app struct {
	operator usecase.OperatorUseCase
	ingest   usecase.IngestionUseCase
	policies PolicyAdmin
	log      *zerolog.Logger
	closers  []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// openApp wires the operator use cases straight onto Postgres, Redis and
// the chat platform, without the worker or HTTP surface.
func openApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	a := &app{log: logger}

	pool, err := pg.NewPgxPool(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	a.closers = append(a.closers, pool.Close)

	redisClient, err := red.NewClient(ctx, cfg.Redis)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}
	a.closers = append(a.closers, func() { _ = redisClient.Close() })

	tm := pg.NewTxManager(pool)
	queue := pg.NewJobQueue(pool, tm)
	suggestions := pg.NewSuggestionRepo(pool)
	usage := usecase.NewUsageEnforcer(pg.NewUsageRepo(pool, cfg.Usage.DefaultLimit, cfg.Usage.DefaultOverage),
		suggestions, tm, cfg.Usage.UpgradeURL, logger)
	if msgs, err := i18n.Load(cfg.Locale); err == nil {
		usage.WithMessages(msgs)
	}
	router := usecase.NewDeliveryRouter(slackAdapter.NewClient(cfg.Slack.BotToken, ""), usecase.DeliveryOptions{
		EphemeralAttempts:  cfg.Delivery.EphemeralAttempts,
		DMFallbackAttempts: cfg.Delivery.DMFallbackAttempts,
		AttemptPause:       cfg.Delivery.AttemptPause,
		CallTimeout:        cfg.Timeouts.Delivery,
	}, logger)
	audit := auditAdapters.NewStoreSink(pg.NewAuditRepo(pool))

	policyStore := pg.NewPolicyRepo(pool)
	a.operator = usecase.NewOperatorUseCase(queue, suggestions, usage, router, audit, logger)
	a.ingest = usecase.NewIngestionUseCase(queue, logger)
	a.policies = &policyAdmin{
		store: policyStore,
		cache: red.NewCachedPolicyRepo(policyStore, redisClient, cfg.Redis.TTL, logger),
		log:   logger,
	}
	return a, nil
}

type policyUpserter interface {
	UpsertPolicy(ctx context.Context, p *model.GuardrailPolicy) error
}

type policyInvalidator interface {
	Invalidate(ctx context.Context, tenantID string) error
}

// policyAdmin persists a policy and drops the cached copy so running
// workers pick it up on their next job.
type policyAdmin struct {
	store policyUpserter
	cache policyInvalidator
	log   *zerolog.Logger
}

func (p *policyAdmin) SetPolicy(ctx context.Context, pol *model.GuardrailPolicy) error {
	if err := p.store.UpsertPolicy(ctx, pol); err != nil {
		return fmt.Errorf("save policy: %w", err)
	}
	if err := p.cache.Invalidate(ctx, pol.TenantID); err != nil {
		p.log.Warn().Err(err).Str("tenant_id", pol.TenantID).Msg("policy cache not invalidated; change applies after ttl")
	}
	return nil
}
