// File: internal/infra/worker/suggestion_job_processor.go
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ai-reply-assistant/internal/domain"
	"ai-reply-assistant/internal/domain/model"
	"ai-reply-assistant/internal/domain/ports/adapter"
	"ai-reply-assistant/internal/domain/ports/repository"
	"ai-reply-assistant/internal/infra/i18n"
	"ai-reply-assistant/internal/infra/logging"
	"ai-reply-assistant/internal/infra/metrics"
	redisinfra "ai-reply-assistant/internal/infra/redis"
	"ai-reply-assistant/internal/usecase"
)

type ProcessorOptions struct {
	PollInterval time.Duration
	Visibility   time.Duration
	MaxAttempts  int
	BackoffBase  time.Duration
	BackoffMax   time.Duration
	LockedDelay  time.Duration // nack delay when another worker holds the job lock
	StoreTimeout time.Duration
	AuditTimeout time.Duration
	Messages     *i18n.Translator // user-facing notices; English when nil
}

// ProcessorDeps are the collaborators of one processor.
type ProcessorDeps struct {
	Queue       repository.JobQueue
	Suggestions repository.SuggestionRepository
	Policies    repository.PolicyRepository
	Locker      redisinfra.Locker
	Assembler   usecase.ContextAssembler
	Generator   usecase.Generator
	Guardrail   usecase.Guardrail
	Usage       usecase.UsageEnforcer
	Router      usecase.DeliveryRouter
	Audit       adapter.AuditSink
	Alerts      adapter.AlertNotifier
}

// SuggestionJobProcessor claims generation jobs and runs each through the
// pipeline: context, generation, guardrail, usage, delivery.
type SuggestionJobProcessor struct {
	ProcessorDeps
	opts ProcessorOptions
	now  func() time.Time
	log  *zerolog.Logger
}

func NewSuggestionJobProcessor(deps ProcessorDeps, opts ProcessorOptions, logger *zerolog.Logger) *SuggestionJobProcessor {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	if opts.Visibility <= 0 {
		opts.Visibility = 60 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 2 * time.Second
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = 5 * time.Minute
	}
	if opts.LockedDelay <= 0 {
		opts.LockedDelay = 2 * time.Second
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 3 * time.Second
	}
	if opts.AuditTimeout <= 0 {
		opts.AuditTimeout = 2 * time.Second
	}
	if opts.Messages == nil {
		opts.Messages = i18n.Default()
	}
	l := logger.With().Str("component", "suggestion_processor").Logger()
	return &SuggestionJobProcessor{ProcessorDeps: deps, opts: opts, now: time.Now, log: &l}
}

// Start polls the queue and hands work to pool until ctx is done. Each task
// drains the queue, so an idle pool picks up a burst on the next tick.
func (p *SuggestionJobProcessor) Start(ctx context.Context, pool *Pool) {
	p.log.Info().Int("workers", pool.Size()).Msg("suggestion job processor started")
	ticker := time.NewTicker(p.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("suggestion job processor stopping")
			return
		case <-ticker.C:
			err := pool.Submit(func(ctx context.Context) error {
				for ctx.Err() == nil && p.ProcessOne(ctx) {
				}
				return nil
			})
			if err != nil && !errors.Is(err, ErrPoolFull) {
				p.log.Error().Err(err).Msg("submit failed")
			}
		}
	}
}

// ProcessOne claims and runs a single job. It reports whether a job was claimed.
func (p *SuggestionJobProcessor) ProcessOne(ctx context.Context) bool {
	job, err := p.Queue.Claim(ctx, p.opts.Visibility)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) && ctx.Err() == nil {
			p.log.Error().Err(err).Msg("claim failed")
		}
		return false
	}

	jctx := logging.WithUserID(logging.WithTenantID(logging.WithJobID(ctx, job.ID), job.TenantID), job.UserID)
	log := logging.With(jctx, p.log)

	// reclaims after a crash also count against the cap
	if job.Attempts > p.opts.MaxAttempts {
		p.deadLetter(jctx, log, job, domain.ErrAttemptsExhausted)
		return true
	}

	key := redisinfra.JobLockKey(job.ID)
	token, err := p.Locker.TryLock(jctx, key, p.opts.Visibility)
	if err != nil {
		if job.Attempts >= p.opts.MaxAttempts {
			p.deadLetter(jctx, log, job, fmt.Errorf("%w: job lock: %v", domain.ErrAttemptsExhausted, err))
			return true
		}
		delay := p.opts.LockedDelay
		if !errors.Is(err, domain.ErrLocked) {
			delay = p.backoff(job.Attempts, err)
		}
		log.Warn().Err(err).Dur("retry_in", delay).Msg("job lock unavailable")
		p.nack(jctx, log, job, delay, err)
		return true
	}
	defer func() {
		uctx, cancel := context.WithTimeout(context.WithoutCancel(jctx), p.opts.StoreTimeout)
		defer cancel()
		if err := p.Locker.Unlock(uctx, key, token); err != nil {
			log.Warn().Err(err).Msg("job unlock failed")
		}
	}()

	log.Info().Int("attempt", job.Attempts).Str("kind", string(job.TriggerKind)).Msg("processing generation job")
	start := p.now()

	runCtx, stop := p.heartbeat(jctx, log, job)
	err = p.run(runCtx, log, job)
	stop()

	p.settle(jctx, log, job, err)
	log.Info().Dur("duration", p.now().Sub(start)).Err(err).Msg("generation job attempt finished")
	return true
}

// heartbeat keeps the lease alive during a long attempt. Losing the lease
// (reclaimed or voided) cancels the attempt.
func (p *SuggestionJobProcessor) heartbeat(ctx context.Context, log *zerolog.Logger, job *model.GenerationJob) (context.Context, func()) {
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	every := p.opts.Visibility / 3
	if every <= 0 {
		every = time.Millisecond
	}
	go func() {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-runCtx.Done():
				return
			case <-t.C:
				err := p.Queue.Extend(runCtx, job.ID, job.LeaseToken, p.opts.Visibility)
				if errors.Is(err, domain.ErrLeaseLost) {
					log.Warn().Msg("lease lost mid-attempt; aborting")
					cancel()
					return
				}
				if err != nil {
					log.Warn().Err(err).Msg("lease extend failed")
				}
			}
		}
	}()
	return runCtx, func() {
		close(done)
		cancel()
	}
}

func validateJob(job *model.GenerationJob) error {
	switch {
	case job.TenantID == "":
		return domain.NewValidationError("tenant_id", "required")
	case job.UserID == "":
		return domain.NewValidationError("user_id", "required")
	case job.ChannelID == "":
		return domain.NewValidationError("channel_id", "required")
	case strings.TrimSpace(job.TriggerText) == "":
		return domain.NewValidationError("trigger_text", "required")
	}
	return nil
}

func (p *SuggestionJobProcessor) run(ctx context.Context, log *zerolog.Logger, job *model.GenerationJob) error {
	defer logging.TraceDuration(log, "SuggestionJobProcessor.run")()
	if err := validateJob(job); err != nil {
		return err
	}

	rec, err := p.existingRecord(ctx, job)
	if err != nil {
		return err
	}
	if rec == nil {
		if rec, err = p.generate(ctx, log, job); err != nil {
			return err
		}
	} else {
		log.Info().Str("suggestion_id", rec.ID).Msg("reusing suggestion from an earlier attempt")
	}
	if rec.Delivered() {
		return nil
	}

	if err := p.checkVoided(ctx, job); err != nil {
		return err
	}
	state, err := p.Usage.ReserveForSuggestion(ctx, rec)
	if errors.Is(err, domain.ErrQuotaExceeded) {
		p.markState(ctx, log, rec, model.SuggestionQuotaExceeded)
		p.record(ctx, log, p.event(job, rec, model.AuditQuotaExceeded, ""))
		p.notifyOnce(ctx, log, job, p.Usage.UpgradeNotice(state))
		return err
	}
	if err != nil {
		return err
	}

	if err := p.checkVoided(ctx, job); err != nil {
		return err
	}
	out, err := p.Router.Route(ctx, usecase.Delivery{
		ChannelID:      job.ChannelID,
		UserID:         job.UserID,
		ThreadTS:       job.ThreadTS,
		Text:           usecase.WithFooter(rec.Text, p.Usage.Footer(state)),
		AssistantPanel: job.AssistantPanel,
	})
	if err != nil {
		p.markState(ctx, log, rec, model.SuggestionUndelivered)
		ev := p.event(job, rec, model.AuditDeliveryFailed, "")
		ev.Reason = out.Reason
		p.record(ctx, log, ev)
		return err
	}

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.StoreTimeout)
	defer cancel()
	if err := p.Suggestions.MarkDelivered(sctx, nil, rec.ID, out.Channel, p.now().UTC()); err != nil {
		// the message is out; a retry finds delivered_at unset and could post
		// again, so this is logged rather than returned
		log.Error().Err(err).Str("suggestion_id", rec.ID).Msg("mark delivered failed")
	}
	ev := p.event(job, rec, model.AuditDelivered, "")
	ev.Reason = string(out.Channel)
	p.record(ctx, log, ev)
	return nil
}

func (p *SuggestionJobProcessor) existingRecord(ctx context.Context, job *model.GenerationJob) (*model.SuggestionRecord, error) {
	sctx, cancel := context.WithTimeout(ctx, p.opts.StoreTimeout)
	defer cancel()
	rec, err := p.Suggestions.FindByJobID(sctx, nil, job.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.Transient("suggestions.find", err)
	}
	return rec, nil
}

// generate produces and stores the suggestion for job. It returns
// domain.ErrPolicyViolation when the guardrail blocks the draft.
func (p *SuggestionJobProcessor) generate(ctx context.Context, log *zerolog.Logger, job *model.GenerationJob) (*model.SuggestionRecord, error) {
	pctx, cancel := context.WithTimeout(ctx, p.opts.StoreTimeout)
	policy, err := p.Policies.GetPolicy(pctx, job.TenantID)
	cancel()
	if err != nil {
		return nil, domain.Transient("policy.get", err)
	}

	in, err := p.Assembler.Assemble(ctx, job)
	if err != nil {
		return nil, err
	}

	if err := p.checkVoided(ctx, job); err != nil {
		return nil, err
	}
	draft, err := p.Generator.Generate(ctx, in)
	if err != nil {
		return nil, err
	}

	verdict := p.Guardrail.Evaluate(draft.Text, policy)
	metrics.IncGuardrail(string(verdict.Verdict), verdict.Category)
	if verdict.Verdict == model.VerdictBlock {
		ev := p.event(job, nil, model.AuditBlocked, "")
		ev.Reason = verdict.Category
		p.record(ctx, log, ev)
		p.notifyOnce(ctx, log, job, p.opts.Messages.T("notice.blocked"))
		return nil, fmt.Errorf("%w: %s", domain.ErrPolicyViolation, verdict.Category)
	}

	rec := &model.SuggestionRecord{
		ID:                uuid.NewString(),
		JobID:             job.ID,
		TenantID:          job.TenantID,
		UserID:            job.UserID,
		ChannelID:         job.ChannelID,
		ThreadTS:          job.ThreadTS,
		Text:              draft.Text,
		GenerationLatency: draft.Latency,
		Verdict:           verdict.Verdict,
		InjectionDetected: in.Detection.Flagged,
		InjectionReason:   in.Detection.Reason,
		State:             model.SuggestionPending,
		CreatedAt:         p.now().UTC(),
	}
	sctx, cancel := context.WithTimeout(ctx, p.opts.StoreTimeout)
	defer cancel()
	if err := p.Suggestions.Create(sctx, nil, rec); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			// a stale attempt got there first; use its record
			existing, ferr := p.Suggestions.FindByJobID(sctx, nil, job.ID)
			if ferr != nil {
				return nil, domain.Transient("suggestions.find_by_job", ferr)
			}
			return existing, nil
		}
		return nil, domain.Transient("suggestions.create", err)
	}

	p.record(ctx, log, p.event(job, rec, model.AuditGenerated, ""))
	if in.Detection.Flagged {
		ev := p.event(job, rec, model.AuditInjectionDetected, "")
		ev.Reason = in.Detection.Reason
		p.record(ctx, log, ev)
	}
	if verdict.Verdict == model.VerdictFlag {
		ev := p.event(job, rec, model.AuditFlagged, rec.Text)
		ev.Reason = verdict.Category
		p.record(ctx, log, ev)
	}
	log.Info().Str("suggestion_id", rec.ID).Str("verdict", string(rec.Verdict)).
		Dur("latency", draft.Latency).Bool("injection", rec.InjectionDetected).Msg("suggestion generated")
	return rec, nil
}

func (p *SuggestionJobProcessor) checkVoided(ctx context.Context, job *model.GenerationJob) error {
	sctx, cancel := context.WithTimeout(ctx, p.opts.StoreTimeout)
	defer cancel()
	voided, err := p.Queue.IsVoided(sctx, job.ID)
	if err != nil {
		return domain.Transient("queue.is_voided", err)
	}
	if voided {
		return domain.ErrVoided
	}
	return nil
}

// settle acks, retries or dead-letters job according to the attempt's error.
func (p *SuggestionJobProcessor) settle(ctx context.Context, log *zerolog.Logger, job *model.GenerationJob, err error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.StoreTimeout)
	defer cancel()

	switch {
	case err == nil:
		p.finish(ctx, log, job, "completed", p.Queue.Ack(ctx, job.ID, job.LeaseToken))
	case errors.Is(err, domain.ErrVoided):
		log.Info().Msg("job voided; abandoning attempt")
		metrics.IncJobOutcome("voided")
	case errors.Is(err, domain.ErrPolicyViolation):
		p.finish(ctx, log, job, "blocked", p.Queue.Ack(ctx, job.ID, job.LeaseToken))
	case errors.Is(err, domain.ErrQuotaExceeded):
		p.finish(ctx, log, job, "quota_exceeded", p.Queue.Ack(ctx, job.ID, job.LeaseToken))
	case domain.IsRetryable(err) && job.Attempts < p.opts.MaxAttempts:
		delay := p.backoff(job.Attempts, err)
		log.Warn().Err(err).Int("attempt", job.Attempts).Dur("retry_in", delay).Msg("generation attempt failed; will retry")
		p.nack(ctx, log, job, delay, err)
	default:
		p.deadLetter(ctx, log, job, err)
	}
}

func (p *SuggestionJobProcessor) finish(ctx context.Context, log *zerolog.Logger, job *model.GenerationJob, outcome string, ackErr error) {
	if ackErr != nil {
		log.Warn().Err(ackErr).Str("outcome", outcome).Msg("ack failed")
		return
	}
	metrics.IncJobOutcome(outcome)
	metrics.ObserveTerminalAttempt(job.Attempts)
}

func (p *SuggestionJobProcessor) nack(ctx context.Context, log *zerolog.Logger, job *model.GenerationJob, delay time.Duration, cause error) {
	if err := p.Queue.Nack(ctx, job.ID, job.LeaseToken, delay, cause.Error()); err != nil {
		log.Warn().Err(err).Msg("nack failed")
		return
	}
	metrics.IncJobOutcome("retried")
}

func (p *SuggestionJobProcessor) deadLetter(ctx context.Context, log *zerolog.Logger, job *model.GenerationJob, cause error) {
	reason := cause.Error()
	if err := p.Queue.DeadLetter(ctx, job.ID, job.LeaseToken, reason); err != nil {
		log.Warn().Err(err).Msg("dead-letter failed")
		return
	}
	metrics.IncJobOutcome("dead")
	metrics.ObserveTerminalAttempt(job.Attempts)
	log.Error().Err(cause).Int("attempts", job.Attempts).Msg("job moved to dead-letter")

	ev := p.event(job, nil, model.AuditDeadLettered, "")
	ev.Reason = reason
	p.record(ctx, log, ev)
	p.notifyOnce(ctx, log, job, p.opts.Messages.T("notice.failed"))

	alert := fmt.Sprintf("Generation job %s (tenant %s) dead-lettered after %d attempt(s): %s",
		job.ID, job.TenantID, job.Attempts, reason)
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.AuditTimeout)
	defer cancel()
	if err := p.Alerts.Alert(actx, alert); err != nil {
		log.Warn().Err(err).Msg("operator alert failed")
	}
}

// backoff is base·2^(attempt-1) capped at max, stretched to the
// collaborator's retry hint when that is longer.
func (p *SuggestionJobProcessor) backoff(attempt int, cause error) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.opts.BackoffBase
	for i := 1; i < attempt && d < p.opts.BackoffMax; i++ {
		d *= 2
	}
	if d > p.opts.BackoffMax {
		d = p.opts.BackoffMax
	}
	if hint := domain.RetryAfterHint(cause); hint > d {
		d = hint
	}
	return d
}

// notifyOnce sends the job's single terminal notice. The flag is set before
// sending, so a crash in between loses the notice rather than doubling it.
func (p *SuggestionJobProcessor) notifyOnce(ctx context.Context, log *zerolog.Logger, job *model.GenerationJob, text string) {
	if job.ChannelID == "" || job.UserID == "" {
		return
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.StoreTimeout)
	first, err := p.Queue.MarkNoticeSent(sctx, job.ID)
	cancel()
	if err != nil {
		log.Warn().Err(err).Msg("notice flag update failed; notice skipped")
		return
	}
	if !first {
		return
	}
	_, err = p.Router.Route(context.WithoutCancel(ctx), usecase.Delivery{
		ChannelID:      job.ChannelID,
		UserID:         job.UserID,
		ThreadTS:       job.ThreadTS,
		Text:           text,
		AssistantPanel: job.AssistantPanel,
	})
	if err != nil {
		log.Warn().Err(err).Msg("terminal notice delivery failed")
	}
}

func (p *SuggestionJobProcessor) markState(ctx context.Context, log *zerolog.Logger, rec *model.SuggestionRecord, state model.SuggestionState) {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.StoreTimeout)
	defer cancel()
	if err := p.Suggestions.MarkState(sctx, nil, rec.ID, state); err != nil {
		log.Warn().Err(err).Str("state", string(state)).Msg("suggestion state update failed")
	}
}

func (p *SuggestionJobProcessor) event(job *model.GenerationJob, rec *model.SuggestionRecord, action model.AuditAction, text string) model.AuditEvent {
	ev := model.AuditEvent{
		JobID:    job.ID,
		Action:   action,
		TenantID: job.TenantID,
		UserID:   job.UserID,
		Text:     text,
	}
	if rec != nil {
		ev.SuggestionID = rec.ID
	}
	return ev
}

// record is best effort: the sink's failure never fails the pipeline.
func (p *SuggestionJobProcessor) record(ctx context.Context, log *zerolog.Logger, ev model.AuditEvent) {
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.AuditTimeout)
	defer cancel()
	if err := p.Audit.Record(actx, ev); err != nil {
		log.Warn().Err(err).Str("action", string(ev.Action)).Msg("audit record failed")
	}
}
