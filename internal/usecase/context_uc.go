// File: internal/usecase/context_uc.go
package usecase

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ai-reply-assistant/internal/domain"
	"ai-reply-assistant/internal/domain/model"
	"ai-reply-assistant/internal/domain/ports/adapter"
	"ai-reply-assistant/internal/domain/ports/repository"
	"ai-reply-assistant/internal/infra/logging"
	"ai-reply-assistant/internal/infra/metrics"
	"ai-reply-assistant/internal/infra/security"
)

// Compile-time check
var _ ContextAssembler = (*contextUC)(nil)

// AssembledMessage is a history message after the defense pipeline.
type AssembledMessage struct {
	AuthorID    string
	Text        string // sanitized
	Spotlighted string
	At          time.Time
}

// AssembledContext is everything the generator may see for one job. Every
// field that came from outside has been sanitized.
type AssembledContext struct {
	Job           *model.GenerationJob
	Trigger       security.Defended
	Messages      []AssembledMessage
	Style         model.StylePreferences
	PersonContext security.Defended
	Detection     security.Detection
}

type ContextAssembler interface {
	Assemble(ctx context.Context, job *model.GenerationJob) (*AssembledContext, error)
}

type ContextOptions struct {
	MaxMessages    int
	MaxTokens      int
	HistoryTimeout time.Duration
	StoreTimeout   time.Duration
}

type contextUC struct {
	chat    adapter.ChatPlatform
	styles  repository.StyleRepository
	persons repository.PersonRepository
	defense *security.Pipeline
	tokens  adapter.TokenCounter
	opts    ContextOptions
	log     *zerolog.Logger
}

func NewContextAssembler(
	chat adapter.ChatPlatform,
	styles repository.StyleRepository,
	persons repository.PersonRepository,
	defense *security.Pipeline,
	tokens adapter.TokenCounter,
	opts ContextOptions,
	logger *zerolog.Logger,
) *contextUC {
	if opts.MaxMessages <= 0 {
		opts.MaxMessages = 20
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 3000
	}
	if opts.HistoryTimeout <= 0 {
		opts.HistoryTimeout = 5 * time.Second
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 3 * time.Second
	}
	return &contextUC{
		chat:    chat,
		styles:  styles,
		persons: persons,
		defense: defense,
		tokens:  tokens,
		opts:    opts,
		log:     logger,
	}
}

func (c *contextUC) Assemble(ctx context.Context, job *model.GenerationJob) (*AssembledContext, error) {
	defer logging.TraceDuration(c.log, "ContextUC.Assemble")()
	if job == nil || job.TenantID == "" || job.UserID == "" || job.ChannelID == "" {
		return nil, domain.NewValidationError("job", "missing tenant, user or channel")
	}

	raw := job.ContextMessages
	if len(raw) == 0 {
		hctx, cancel := context.WithTimeout(ctx, c.opts.HistoryTimeout)
		fetched, err := c.chat.FetchHistory(hctx, job.ChannelID, job.TriggerMessageID, job.ThreadTS, c.opts.MaxMessages+1)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, domain.Transient("chat.history", err)
			}
			return nil, err
		}
		raw = fetched
	}

	out := &AssembledContext{Job: job}
	out.Trigger = c.defense.Defend(job.TriggerText)
	detections := []security.Detection{out.Trigger.Detection}

	msgs := orderHistory(raw, job.TriggerMessageID)
	if len(msgs) > c.opts.MaxMessages {
		msgs = msgs[len(msgs)-c.opts.MaxMessages:]
	}
	for _, m := range msgs {
		d := c.defense.Defend(m.Text)
		if d.Text == "" {
			continue
		}
		detections = append(detections, d.Detection)
		out.Messages = append(out.Messages, AssembledMessage{
			AuthorID:    security.Sanitize(m.AuthorID, 64),
			Text:        d.Text,
			Spotlighted: d.Spotlighted,
			At:          m.Time(),
		})
	}

	out.Style = c.loadStyle(ctx, job)
	detections = append(detections, security.Detect(out.Style.CustomGuidance))
	if job.TargetUserID != "" {
		out.PersonContext = c.loadPerson(ctx, job)
		detections = append(detections, out.PersonContext.Detection)
	}

	budget := c.opts.MaxTokens - c.tokens.Count(out.Trigger.Spotlighted) - c.tokens.Count(out.PersonContext.Spotlighted)
	out.Messages = trimToBudget(out.Messages, budget, c.tokens)

	out.Detection = security.Merge(detections...)
	if out.Detection.Flagged {
		for _, reason := range strings.Split(out.Detection.Reason, ",") {
			metrics.IncInjection(reason)
		}
		c.log.Warn().Str("job_id", job.ID).Str("reason", out.Detection.Reason).Msg("possible prompt injection in inbound text")
	}
	return out, nil
}

// orderHistory sorts ascending by timestamp, drops the trigger message itself
// and repeated timestamps.
func orderHistory(in []model.ContextMessage, triggerTS string) []model.ContextMessage {
	msgs := make([]model.ContextMessage, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, m := range in {
		if triggerTS != "" && m.Timestamp == triggerTS {
			continue
		}
		key := m.Timestamp
		if key == "" {
			key = m.AuthorID + "\x00" + m.Text
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		msgs = append(msgs, m)
	}
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].Time().Before(msgs[j].Time()) })
	return msgs
}

// trimToBudget drops the oldest messages until the rest fit budget tokens.
func trimToBudget(msgs []AssembledMessage, budget int, tokens adapter.TokenCounter) []AssembledMessage {
	if budget <= 0 {
		return nil
	}
	total := 0
	costs := make([]int, len(msgs))
	for i, m := range msgs {
		costs[i] = tokens.Count(m.AuthorID+": "+m.Spotlighted) + 1
		total += costs[i]
	}
	start := 0
	for total > budget && start < len(msgs) {
		total -= costs[start]
		start++
	}
	return msgs[start:]
}

// loadStyle never fails the run: without preferences the reply is simply
// written in a neutral voice.
func (c *contextUC) loadStyle(ctx context.Context, job *model.GenerationJob) model.StylePreferences {
	sctx, cancel := context.WithTimeout(ctx, c.opts.StoreTimeout)
	defer cancel()
	prefs, err := c.styles.GetStylePreferences(sctx, job.TenantID, job.UserID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			c.log.Warn().Err(err).Str("job_id", job.ID).Msg("style preferences unavailable; continuing without")
		}
		return model.StylePreferences{}
	}
	if prefs == nil {
		return model.StylePreferences{}
	}
	return sanitizeStyle(*prefs, c.defense.MaxLen)
}

func (c *contextUC) loadPerson(ctx context.Context, job *model.GenerationJob) security.Defended {
	sctx, cancel := context.WithTimeout(ctx, c.opts.StoreTimeout)
	defer cancel()
	notes, err := c.persons.GetPersonContext(sctx, job.TenantID, job.UserID, job.TargetUserID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			c.log.Warn().Err(err).Str("job_id", job.ID).Msg("person context unavailable; continuing without")
		}
		return security.Defended{}
	}
	return c.defense.Defend(notes)
}

func sanitizeStyle(p model.StylePreferences, maxLen int) model.StylePreferences {
	const short = 64
	clean := func(in []string) []string {
		var out []string
		for _, s := range in {
			if s = security.Sanitize(s, short*2); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return model.StylePreferences{
		Tone:             security.Sanitize(p.Tone, short),
		Formality:        security.Sanitize(p.Formality, short),
		PreferredPhrases: clean(p.PreferredPhrases),
		AvoidPhrases:     clean(p.AvoidPhrases),
		CustomGuidance:   security.Sanitize(p.CustomGuidance, maxLen),
	}
}
