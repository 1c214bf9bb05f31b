// File: internal/usecase/usage_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"ai-reply-assistant/internal/domain"
	"ai-reply-assistant/internal/domain/model"
	"ai-reply-assistant/internal/domain/ports/repository"
	"ai-reply-assistant/internal/infra/i18n"
	"ai-reply-assistant/internal/infra/logging"
	"ai-reply-assistant/internal/infra/metrics"
)

// Compile-time check
var _ UsageEnforcer = (*usageUC)(nil)

// UsageEnforcer gates suggestion emission on the per-user quota.
type UsageEnforcer interface {
	// CheckAndReserve consumes one unit when used < limit+overage. Otherwise it
	// returns domain.ErrQuotaExceeded with level exceeded and consumes nothing.
	CheckAndReserve(ctx context.Context, tenantID, userID string) (model.UsageState, error)
	// ReserveForSuggestion reserves once per suggestion: the counter and the
	// record's usage_reserved flag are written in one transaction, and a record
	// already marked reserved is not charged again.
	ReserveForSuggestion(ctx context.Context, rec *model.SuggestionRecord) (model.UsageState, error)
	// Peek reads the current state without consuming.
	Peek(ctx context.Context, tenantID, userID string) (model.UsageState, error)
	Footer(state model.UsageState) string
	UpgradeNotice(state model.UsageState) string
}

type usageUC struct {
	usage       repository.UsageRepository
	suggestions repository.SuggestionRepository
	tm          repository.TransactionManager
	upgradeURL  string
	msgs        *i18n.Translator
	log         *zerolog.Logger
}

func NewUsageEnforcer(
	usage repository.UsageRepository,
	suggestions repository.SuggestionRepository,
	tm repository.TransactionManager,
	upgradeURL string,
	logger *zerolog.Logger,
) *usageUC {
	return &usageUC{
		usage:       usage,
		suggestions: suggestions,
		tm:          tm,
		upgradeURL:  upgradeURL,
		msgs:        i18n.Default(),
		log:         logger,
	}
}

// WithMessages swaps the catalog used for footers and notices.
func (u *usageUC) WithMessages(t *i18n.Translator) *usageUC {
	if t != nil {
		u.msgs = t
	}
	return u
}

func (u *usageUC) CheckAndReserve(ctx context.Context, tenantID, userID string) (model.UsageState, error) {
	defer logging.TraceDuration(u.log, "UsageUC.CheckAndReserve")()
	return u.reserve(ctx, nil, tenantID, userID)
}

func (u *usageUC) ReserveForSuggestion(ctx context.Context, rec *model.SuggestionRecord) (model.UsageState, error) {
	defer logging.TraceDuration(u.log, "UsageUC.ReserveForSuggestion")()
	if rec == nil || rec.ID == "" {
		return model.UsageState{}, domain.NewValidationError("suggestion", "missing record")
	}

	var state model.UsageState
	txOpts := pgx.TxOptions{IsoLevel: pgx.ReadCommitted}
	err := u.tm.WithTx(ctx, txOpts, func(ctx context.Context, tx repository.Tx) error {
		current, err := u.suggestions.FindByID(ctx, tx, rec.ID)
		if err != nil {
			return fmt.Errorf("load suggestion: %w", err)
		}
		if current.UsageReserved {
			// a previous attempt already paid for this suggestion
			state, err = u.peek(ctx, tx, rec.TenantID, rec.UserID)
			return err
		}
		state, err = u.reserve(ctx, tx, rec.TenantID, rec.UserID)
		if err != nil {
			return err
		}
		return u.suggestions.MarkUsageReserved(ctx, tx, rec.ID)
	})
	if err != nil {
		if errors.Is(err, domain.ErrQuotaExceeded) {
			return state, err
		}
		return state, domain.Transient("usage.reserve", err)
	}
	rec.UsageReserved = true
	return state, nil
}

func (u *usageUC) Peek(ctx context.Context, tenantID, userID string) (model.UsageState, error) {
	return u.peek(ctx, nil, tenantID, userID)
}

func (u *usageUC) reserve(ctx context.Context, tx repository.Tx, tenantID, userID string) (model.UsageState, error) {
	current, err := u.usage.ReadCounter(ctx, tx, tenantID, userID)
	if err != nil {
		return model.UsageState{}, fmt.Errorf("read usage counter: %w", err)
	}
	next, ok, err := u.usage.IncrementIfBelow(ctx, tx, tenantID, userID, current.Ceiling())
	if err != nil {
		return model.UsageState{}, fmt.Errorf("increment usage counter: %w", err)
	}
	if !ok {
		state := stateOf(current)
		state.Level = model.WarningExceeded
		metrics.IncUsageLevel(string(state.Level))
		u.log.Info().Str("tenant_id", tenantID).Str("user_id", userID).
			Int64("used", current.Used).Int64("limit", current.Limit).Msg("usage quota exceeded")
		return state, domain.ErrQuotaExceeded
	}
	state := stateOf(next)
	metrics.IncUsageLevel(string(state.Level))
	return state, nil
}

func (u *usageUC) peek(ctx context.Context, tx repository.Tx, tenantID, userID string) (model.UsageState, error) {
	c, err := u.usage.ReadCounter(ctx, tx, tenantID, userID)
	if err != nil {
		return model.UsageState{}, fmt.Errorf("read usage counter: %w", err)
	}
	return stateOf(c), nil
}

func stateOf(c *model.UsageCounter) model.UsageState {
	return model.UsageState{
		Used:      c.Used,
		Limit:     c.Limit,
		PeriodEnd: c.PeriodEnd,
		Level:     model.LevelFor(c.Used, c.Limit),
	}
}

// Footer is appended to a delivered suggestion when usage is getting close to
// the limit. Empty for safe usage.
func (u *usageUC) Footer(state model.UsageState) string {
	resets := state.PeriodEnd.UTC().Format("Jan 2")
	var msg string
	switch state.Level {
	case model.WarningWarning:
		return u.msgs.T("usage.footer.warning", state.Used, state.Limit, resets)
	case model.WarningCritical:
		msg = u.msgs.T("usage.footer.critical", state.Used, state.Limit, resets)
	case model.WarningExceeded:
		msg = u.msgs.T("usage.footer.exceeded", state.Used-state.Limit, state.Limit)
	default:
		return ""
	}
	if u.upgradeURL != "" {
		msg += u.msgs.T("usage.footer.upgrade", u.upgradeURL)
	}
	return msg
}

// UpgradeNotice replaces the suggestion when the quota is exhausted.
func (u *usageUC) UpgradeNotice(state model.UsageState) string {
	msg := u.msgs.T("usage.limit_reached")
	if !state.PeriodEnd.IsZero() {
		msg += u.msgs.T("usage.limit_resets", state.PeriodEnd.UTC().Format("Jan 2"))
	}
	msg += "."
	if u.upgradeURL != "" {
		msg += u.msgs.T("usage.limit_upgrade", u.upgradeURL)
	}
	return msg
}

// WithFooter joins text and footer with a blank line; footer may be empty.
func WithFooter(text, footer string) string {
	if footer == "" {
		return text
	}
	return text + "\n\n" + footer
}
