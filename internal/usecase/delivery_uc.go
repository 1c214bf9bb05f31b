// File: internal/usecase/delivery_uc.go
package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"ai-reply-assistant/internal/domain"
	"ai-reply-assistant/internal/domain/model"
	"ai-reply-assistant/internal/domain/ports/adapter"
	"ai-reply-assistant/internal/infra/logging"
	"ai-reply-assistant/internal/infra/metrics"
)

// Compile-time check
var _ DeliveryRouter = (*deliveryUC)(nil)

// Delivery is one message to put in front of the requesting user.
type Delivery struct {
	ChannelID      string
	UserID         string
	ThreadTS       string
	Text           string
	AssistantPanel bool
}

// DeliveryRouter picks the channel for a suggestion or notice and delivers it.
type DeliveryRouter interface {
	Route(ctx context.Context, d Delivery) (model.DeliveryOutcome, error)
}

type DeliveryOptions struct {
	EphemeralAttempts  int
	DMFallbackAttempts int
	AttemptPause       time.Duration
	CallTimeout        time.Duration
}

type deliveryUC struct {
	chat adapter.ChatPlatform
	opts DeliveryOptions
	log  *zerolog.Logger
}

func NewDeliveryRouter(chat adapter.ChatPlatform, opts DeliveryOptions, logger *zerolog.Logger) *deliveryUC {
	if opts.EphemeralAttempts <= 0 {
		opts.EphemeralAttempts = 2
	}
	if opts.DMFallbackAttempts <= 0 {
		opts.DMFallbackAttempts = 1
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 5 * time.Second
	}
	return &deliveryUC{chat: chat, opts: opts, log: logger}
}

// Route delivers d:
//   - assistant panel: posted into the assistant thread;
//   - direct-message channel: ephemeral, then a DM if every ephemeral attempt failed;
//   - any other channel: ephemeral only.
//
// A failed route returns a *domain.DeliveryFailure along with the outcome.
func (r *deliveryUC) Route(ctx context.Context, d Delivery) (model.DeliveryOutcome, error) {
	defer logging.TraceDuration(r.log, "DeliveryUC.Route")()
	if d.ChannelID == "" || d.UserID == "" {
		return model.DeliveryOutcome{Reason: "missing channel or user"}, domain.NewValidationError("delivery", "missing channel or user")
	}

	if d.AssistantPanel {
		out, err := r.attempt(ctx, model.DeliveryAssistantPanel, 1, func(ctx context.Context) error {
			return r.chat.PostMessage(ctx, d.ChannelID, d.ThreadTS, d.Text)
		})
		return out, r.finish(out, err)
	}

	out, err := r.attempt(ctx, model.DeliveryEphemeral, r.opts.EphemeralAttempts, func(ctx context.Context) error {
		return r.chat.PostEphemeral(ctx, d.ChannelID, d.UserID, d.Text)
	})
	if err == nil || !(&model.GenerationJob{ChannelID: d.ChannelID}).IsDirectMessage() || ctx.Err() != nil {
		return out, r.finish(out, err)
	}

	r.log.Warn().Err(err).Str("channel_id", d.ChannelID).Msg("ephemeral delivery failed; falling back to direct message")
	attempts := out.Attempts
	out, err = r.attempt(ctx, model.DeliveryDMFallback, r.opts.DMFallbackAttempts, func(ctx context.Context) error {
		dm, err := r.chat.OpenDirect(ctx, d.UserID)
		if err != nil {
			return err
		}
		return r.chat.PostMessage(ctx, dm, "", d.Text)
	})
	out.Attempts += attempts
	return out, r.finish(out, err)
}

// attempt runs post up to n times with a pause between tries. A permanent
// platform error stops early.
func (r *deliveryUC) attempt(ctx context.Context, channel model.DeliveryChannel, n int, post func(ctx context.Context) error) (model.DeliveryOutcome, error) {
	out := model.DeliveryOutcome{Channel: channel}
	var err error
	for i := 0; i < n; i++ {
		if i > 0 && !sleepCtx(ctx, r.opts.AttemptPause) {
			err = ctx.Err()
			break
		}
		out.Attempts++
		callCtx, cancel := context.WithTimeout(ctx, r.opts.CallTimeout)
		err = post(callCtx)
		cancel()
		if err == nil {
			out.Success = true
			out.Reason = ""
			metrics.IncDelivery(string(channel), true)
			return out, nil
		}
		metrics.IncDelivery(string(channel), false)
		out.Reason = err.Error()
		if isPermanentDelivery(err) {
			break
		}
	}
	return out, err
}

func (r *deliveryUC) finish(out model.DeliveryOutcome, err error) error {
	if err == nil {
		return nil
	}
	var df *domain.DeliveryFailure
	if errors.As(err, &df) {
		return &domain.DeliveryFailure{Channel: string(out.Channel), Reason: df.Reason, Permanent: df.Permanent, Err: err}
	}
	if domain.IsValidation(err) {
		return &domain.DeliveryFailure{Channel: string(out.Channel), Reason: err.Error(), Permanent: true, Err: err}
	}
	return &domain.DeliveryFailure{Channel: string(out.Channel), Reason: out.Reason, Err: err}
}

func isPermanentDelivery(err error) bool {
	var df *domain.DeliveryFailure
	if errors.As(err, &df) {
		return df.Permanent
	}
	return domain.IsValidation(err)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
