// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"ai-reply-assistant/internal/config"
	"ai-reply-assistant/internal/domain/ports/adapter"
	aiAdapters "ai-reply-assistant/internal/infra/adapters/ai"
	auditAdapters "ai-reply-assistant/internal/infra/adapters/audit"
	slackAdapter "ai-reply-assistant/internal/infra/adapters/slack"
	tele "ai-reply-assistant/internal/infra/adapters/telegram"
	pg "ai-reply-assistant/internal/infra/db/postgres"
	httpapi "ai-reply-assistant/internal/infra/http"
	"ai-reply-assistant/internal/infra/i18n"
	"ai-reply-assistant/internal/infra/logging"
	"ai-reply-assistant/internal/infra/metrics"
	red "ai-reply-assistant/internal/infra/redis"
	"ai-reply-assistant/internal/infra/sched"
	"ai-reply-assistant/internal/infra/security"
	"ai-reply-assistant/internal/infra/worker"
	"ai-reply-assistant/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, unredacted text)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("service stopped")
	}
	logger.Info().Msg("shutdown complete")
}

func run(cfg *config.Config, logger *zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] enabled")
	}

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer redisClient.Close()

	// ---- Encryption ----
	var cipher *security.FieldCipher
	if cfg.Security.EncryptionKey != "" {
		cipher, err = security.NewFieldCipher(cfg.Security.EncryptionKey)
		if err != nil {
			return fmt.Errorf("encryption: %w", err)
		}
	} else {
		logger.Warn().Msg("security.encryption_key not set; person notes are stored in clear text")
	}

	// ---- Repositories ----
	tm := pg.NewTxManager(pool)
	queue := pg.NewJobQueue(pool, tm)
	suggestions := pg.NewSuggestionRepo(pool)
	usageRepo := pg.NewUsageRepo(pool, cfg.Usage.DefaultLimit, cfg.Usage.DefaultOverage)
	policies := red.NewCachedPolicyRepo(pg.NewPolicyRepo(pool), redisClient, cfg.Redis.TTL, logger)
	styles := pg.NewStyleRepo(pool)
	persons := pg.NewPersonRepo(pool, cipher)

	// ---- Adapters ----
	ai, err := newCompletionService(ctx, cfg.AI, logger)
	if err != nil {
		return err
	}
	chat := slackAdapter.NewClient(cfg.Slack.BotToken, "")

	sinks := []adapter.AuditSink{auditAdapters.NewStoreSink(pg.NewAuditRepo(pool))}
	if cfg.Audit.AMQPURL != "" {
		amqpSink, err := auditAdapters.NewAMQPSink(cfg.Audit.AMQPURL, cfg.Audit.Exchange)
		if err != nil {
			return fmt.Errorf("amqp audit sink: %w", err)
		}
		defer amqpSink.Close()
		sinks = append(sinks, amqpSink)
	}
	auditSink := auditAdapters.NewFanOut(sinks...)

	var alerts adapter.AlertNotifier = tele.NewLogAlerter(logger)
	var alertBot *tele.AlertBot
	if cfg.Alert.TelegramToken != "" && len(cfg.Alert.ChatIDs) > 0 {
		alertBot, err = tele.NewAlertBot(cfg.Alert.TelegramToken, cfg.Alert.ChatIDs, "")
		if err != nil {
			return fmt.Errorf("telegram alerts: %w", err)
		}
		alerts = alertBot
	}

	// ---- Use cases ----
	msgs, err := i18n.Load(cfg.Locale)
	if err != nil {
		return fmt.Errorf("locale: %w", err)
	}
	assembler := usecase.NewContextAssembler(chat, styles, persons,
		security.NewPipeline(cfg.Context.MaxFieldLen),
		aiAdapters.NewTokenizer(cfg.AI.DefaultModel),
		usecase.ContextOptions{
			MaxMessages:    cfg.Context.MaxMessages,
			MaxTokens:      cfg.Context.MaxTokens,
			HistoryTimeout: cfg.Timeouts.History,
			StoreTimeout:   cfg.Timeouts.Store,
		}, logger)
	generator := usecase.NewGenerator(ai, usecase.GeneratorOptions{
		Model:     cfg.AI.DefaultModel,
		MaxTokens: cfg.AI.MaxOutputTokens,
		Timeout:   cfg.Timeouts.Completion,
	}, logger)
	usage := usecase.NewUsageEnforcer(usageRepo, suggestions, tm, cfg.Usage.UpgradeURL, logger).WithMessages(msgs)
	router := usecase.NewDeliveryRouter(chat, usecase.DeliveryOptions{
		EphemeralAttempts:  cfg.Delivery.EphemeralAttempts,
		DMFallbackAttempts: cfg.Delivery.DMFallbackAttempts,
		AttemptPause:       cfg.Delivery.AttemptPause,
		CallTimeout:        cfg.Timeouts.Delivery,
	}, logger)
	ingest := usecase.NewIngestionUseCase(queue, logger)
	operator := usecase.NewOperatorUseCase(queue, suggestions, usage, router, auditSink, logger)

	// ---- Worker ----
	processor := worker.NewSuggestionJobProcessor(worker.ProcessorDeps{
		Queue:       queue,
		Suggestions: suggestions,
		Policies:    policies,
		Locker:      red.NewLocker(redisClient),
		Assembler:   assembler,
		Generator:   generator,
		Guardrail:   usecase.NewGuardrail(logger),
		Usage:       usage,
		Router:      router,
		Audit:       auditSink,
		Alerts:      alerts,
	}, worker.ProcessorOptions{
		PollInterval: cfg.Worker.PollInterval,
		Visibility:   cfg.Worker.VisibilityTimeout,
		MaxAttempts:  cfg.Worker.MaxAttempts,
		BackoffBase:  cfg.Worker.BackoffBase,
		BackoffMax:   cfg.Worker.BackoffMax,
		StoreTimeout: cfg.Timeouts.Store,
		AuditTimeout: cfg.Timeouts.Audit,
		Messages:     msgs,
	}, logger)
	workers := worker.NewPool(cfg.Worker.Concurrency, logger)

	// ---- HTTP ----
	srv := httpapi.NewServer(ingest, operator, red.NewRateLimiter(redisClient), httpapi.NewAuthManager(cfg.HTTP.AdminJWTSecret),
		httpapi.Options{
			Port:           cfg.HTTP.Port,
			RequestTimeout: cfg.HTTP.RequestTimeout,
			TriggerRate:    cfg.HTTP.TriggerRate,
			TriggerWindow:  cfg.HTTP.TriggerWindow,
			IngestKey:      cfg.HTTP.IngestSharedKey,
		}, logger)

	sampler := sched.NewQueueStatsSampler(cfg.Scheduler.QueueStatsInterval, queue, poolStats(pool), logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		workers.Start(gctx)
		processor.Start(gctx, workers)
		workers.Stop()
		return nil
	})
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		if err := sampler.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if alertBot != nil && cfg.Alert.Console {
		console := tele.NewOperatorConsole(alertBot, operator, 2, logger)
		g.Go(func() error {
			if err := console.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	logger.Info().Str("version", version).Int("workers", workers.Size()).Str("ai_provider", cfg.AI.Provider).Msg("service started")
	return g.Wait()
}

// newCompletionService builds the configured provider behind the model
// router and the concurrency limiter.
func newCompletionService(ctx context.Context, cfg config.AIConfig, logger *zerolog.Logger) (adapter.CompletionService, error) {
	providers := map[string]adapter.CompletionService{}
	if cfg.OpenAIKey != "" {
		oa, err := aiAdapters.NewOpenAIAdapter(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.DefaultModel, cfg.MaxOutputTokens)
		if err != nil {
			return nil, fmt.Errorf("openai adapter: %w", err)
		}
		providers["openai"] = oa
	}
	if cfg.GeminiKey != "" {
		gm, err := aiAdapters.NewGeminiAdapter(ctx, cfg.GeminiKey, cfg.GeminiURL, cfg.DefaultModel, cfg.MaxOutputTokens)
		if err != nil {
			return nil, fmt.Errorf("gemini adapter: %w", err)
		}
		providers["gemini"] = gm
	}
	if cfg.Provider == "noop" {
		providers["noop"] = aiAdapters.NewNoopAIAdapter()
	}
	logger.Info().Str("provider", cfg.Provider).Str("model", cfg.DefaultModel).Int("providers", len(providers)).Msg("AI adapter ready")
	multi := aiAdapters.NewMultiAIAdapter(cfg.Provider, providers, map[string]string{cfg.DefaultModel: cfg.Provider})
	return aiAdapters.NewLimitedAI(multi, cfg.ConcurrentLimit), nil
}

func poolStats(pool *pgxpool.Pool) sched.PoolStats {
	return func() (int32, int32, int32) {
		st := pool.Stat()
		return st.TotalConns(), st.IdleConns(), st.AcquiredConns()
	}
}
