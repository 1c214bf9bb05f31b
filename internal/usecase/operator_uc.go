// File: internal/usecase/operator_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"ai-reply-assistant/internal/domain"
	"ai-reply-assistant/internal/domain/model"
	"ai-reply-assistant/internal/domain/ports/adapter"
	"ai-reply-assistant/internal/domain/ports/repository"
	"ai-reply-assistant/internal/infra/logging"
	"ai-reply-assistant/internal/infra/security"
)

// Compile-time check
var _ OperatorUseCase = (*operatorUC)(nil)

// OperatorUseCase backs the admin API and replyctl.
type OperatorUseCase interface {
	// Void cancels a job that has not finished. Voiding a void job is a no-op.
	Void(ctx context.Context, jobID string) error
	// Resend delivers an undelivered suggestion again, reserving usage first if
	// no earlier attempt did.
	Resend(ctx context.Context, suggestionID string) (model.DeliveryOutcome, error)
	ListDeadLetters(ctx context.Context, limit int) ([]*model.GenerationJob, error)
	// RecordFeedback stores the user's reaction to a delivered suggestion.
	RecordFeedback(ctx context.Context, suggestionID, userID string, action model.AuditAction, text string) error
}

type operatorUC struct {
	queue       repository.JobQueue
	suggestions repository.SuggestionRepository
	usage       UsageEnforcer
	router      DeliveryRouter
	audit       adapter.AuditSink
	log         *zerolog.Logger
}

func NewOperatorUseCase(
	queue repository.JobQueue,
	suggestions repository.SuggestionRepository,
	usage UsageEnforcer,
	router DeliveryRouter,
	audit adapter.AuditSink,
	logger *zerolog.Logger,
) *operatorUC {
	return &operatorUC{
		queue:       queue,
		suggestions: suggestions,
		usage:       usage,
		router:      router,
		audit:       audit,
		log:         logger,
	}
}

func (o *operatorUC) Void(ctx context.Context, jobID string) error {
	defer logging.TraceDuration(o.log, "OperatorUC.Void")()
	if jobID == "" {
		return domain.NewValidationError("job_id", "required")
	}
	job, err := o.queue.FindByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status == model.JobStatusVoid {
		return nil
	}
	if err := o.queue.Void(ctx, jobID); err != nil {
		return err
	}
	o.record(ctx, model.AuditEvent{JobID: job.ID, Action: model.AuditVoided, TenantID: job.TenantID, UserID: job.UserID})
	o.log.Info().Str("job_id", jobID).Msg("job voided by operator")
	return nil
}

func (o *operatorUC) Resend(ctx context.Context, suggestionID string) (model.DeliveryOutcome, error) {
	defer logging.TraceDuration(o.log, "OperatorUC.Resend")()
	rec, err := o.suggestions.FindByID(ctx, nil, suggestionID)
	if err != nil {
		return model.DeliveryOutcome{}, err
	}
	if rec.Delivered() {
		return model.DeliveryOutcome{}, fmt.Errorf("%w: suggestion already delivered", domain.ErrInvalidArgument)
	}
	if rec.State == model.SuggestionQuotaExceeded {
		return model.DeliveryOutcome{}, fmt.Errorf("%w: suggestion was never paid for", domain.ErrInvalidArgument)
	}
	job, err := o.queue.FindByID(ctx, rec.JobID)
	if err != nil {
		return model.DeliveryOutcome{}, fmt.Errorf("load job: %w", err)
	}
	switch job.Status {
	case model.JobStatusVoid:
		return model.DeliveryOutcome{}, domain.ErrVoided
	case model.JobStatusPending, model.JobStatusProcessing:
		// a worker may be routing this record right now
		return model.DeliveryOutcome{}, fmt.Errorf("%w: job %s is still %s", domain.ErrInvalidArgument, job.ID, job.Status)
	}

	state, err := o.usage.ReserveForSuggestion(ctx, rec)
	if err != nil {
		return model.DeliveryOutcome{}, err
	}

	out, err := o.router.Route(ctx, Delivery{
		ChannelID:      rec.ChannelID,
		UserID:         rec.UserID,
		ThreadTS:       rec.ThreadTS,
		Text:           WithFooter(rec.Text, o.usage.Footer(state)),
		AssistantPanel: job.AssistantPanel,
	})
	if err != nil {
		o.record(ctx, model.AuditEvent{SuggestionID: rec.ID, JobID: rec.JobID, Action: model.AuditDeliveryFailed,
			TenantID: rec.TenantID, UserID: rec.UserID, Reason: out.Reason})
		return out, err
	}
	if err := o.suggestions.MarkDelivered(ctx, nil, rec.ID, out.Channel, time.Now().UTC()); err != nil {
		return out, fmt.Errorf("mark delivered: %w", err)
	}
	o.record(ctx, model.AuditEvent{SuggestionID: rec.ID, JobID: rec.JobID, Action: model.AuditResent,
		TenantID: rec.TenantID, UserID: rec.UserID, Reason: string(out.Channel)})
	return out, nil
}

func (o *operatorUC) ListDeadLetters(ctx context.Context, limit int) ([]*model.GenerationJob, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return o.queue.ListDead(ctx, limit)
}

func (o *operatorUC) RecordFeedback(ctx context.Context, suggestionID, userID string, action model.AuditAction, text string) error {
	defer logging.TraceDuration(o.log, "OperatorUC.RecordFeedback")()
	if !action.IsFeedback() {
		return domain.NewValidationError("action", fmt.Sprintf("unsupported feedback action %q", action))
	}
	rec, err := o.suggestions.FindByID(ctx, nil, suggestionID)
	if err != nil {
		return err
	}
	if userID != "" && userID != rec.UserID {
		return domain.NewValidationError("user_id", "feedback must come from the suggestion's user")
	}
	ev := model.AuditEvent{
		SuggestionID: rec.ID,
		JobID:        rec.JobID,
		Action:       action,
		TenantID:     rec.TenantID,
		UserID:       rec.UserID,
	}
	if action == model.AuditEdited {
		ev.Text = security.Sanitize(text, security.DefaultMaxLen)
	}
	// unlike pipeline events, a failed feedback write is returned to the caller
	if err := o.audit.Record(ctx, ev); err != nil {
		return domain.Transient("audit.feedback", err)
	}
	return nil
}

// record is best effort: a failing sink is logged and ignored.
func (o *operatorUC) record(ctx context.Context, ev model.AuditEvent) {
	if err := o.audit.Record(ctx, ev); err != nil && !errors.Is(err, context.Canceled) {
		o.log.Warn().Err(err).Str("action", string(ev.Action)).Msg("audit record failed")
	}
}
