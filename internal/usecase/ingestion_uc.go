// File: internal/usecase/ingestion_uc.go
package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"ai-reply-assistant/internal/domain"
	"ai-reply-assistant/internal/domain/model"
	"ai-reply-assistant/internal/domain/ports/repository"
	"ai-reply-assistant/internal/infra/logging"
	"ai-reply-assistant/internal/infra/metrics"
)

// Compile-time check
var _ IngestionUseCase = (*ingestionUC)(nil)

// TriggerEvent is one of MentionEvent, ReplyEvent, ThreadEvent or
// MessageActionEvent. Each variant carries only the fields it needs.
type TriggerEvent interface {
	Kind() model.TriggerKind
	validate() error
	job() *model.GenerationJob
}

// MentionEvent: the bot was mentioned in a channel message.
type MentionEvent struct {
	TenantID  string `json:"tenant_id"`
	UserID    string `json:"user_id"`
	ChannelID string `json:"channel_id"`
	MessageTS string `json:"message_ts"`
	Text      string `json:"text"`
}

// ReplyEvent: the user asked for a reply to someone else's message.
type ReplyEvent struct {
	TenantID  string `json:"tenant_id"`
	UserID    string `json:"user_id"`
	ChannelID string `json:"channel_id"`
	MessageTS string `json:"message_ts"`
	AuthorID  string `json:"author_id"`
	Text      string `json:"text"`
}

// ThreadEvent: a message in a thread, possibly the assistant panel thread.
type ThreadEvent struct {
	TenantID       string `json:"tenant_id"`
	UserID         string `json:"user_id"`
	ChannelID      string `json:"channel_id"`
	ThreadTS       string `json:"thread_ts"`
	MessageTS      string `json:"message_ts"`
	Text           string `json:"text"`
	AssistantPanel bool   `json:"assistant_panel"`
}

// MessageActionEvent: the user invoked the message shortcut. The platform
// sends the selected message, and optionally the surrounding messages.
type MessageActionEvent struct {
	TenantID  string                 `json:"tenant_id"`
	UserID    string                 `json:"user_id"`
	ChannelID string                 `json:"channel_id"`
	MessageTS string                 `json:"message_ts"`
	ThreadTS  string                 `json:"thread_ts,omitempty"`
	AuthorID  string                 `json:"author_id"`
	Text      string                 `json:"text"`
	Context   []model.ContextMessage `json:"context,omitempty"`
}

func (MentionEvent) Kind() model.TriggerKind       { return model.TriggerMention }
func (ReplyEvent) Kind() model.TriggerKind         { return model.TriggerReply }
func (ThreadEvent) Kind() model.TriggerKind        { return model.TriggerThread }
func (MessageActionEvent) Kind() model.TriggerKind { return model.TriggerMessageAction }

func (e MentionEvent) validate() error {
	return requireFields(e.TenantID, e.UserID, e.ChannelID, e.MessageTS, e.Text)
}

func (e ReplyEvent) validate() error {
	if err := requireFields(e.TenantID, e.UserID, e.ChannelID, e.MessageTS, e.Text); err != nil {
		return err
	}
	if e.AuthorID == "" {
		return domain.NewValidationError("author_id", "required for reply")
	}
	return nil
}

func (e ThreadEvent) validate() error {
	if err := requireFields(e.TenantID, e.UserID, e.ChannelID, e.MessageTS, e.Text); err != nil {
		return err
	}
	if model.ParseTimestamp(e.ThreadTS).IsZero() {
		return domain.NewValidationError("thread_ts", "missing or malformed")
	}
	return nil
}

func (e MessageActionEvent) validate() error {
	if err := requireFields(e.TenantID, e.UserID, e.ChannelID, e.MessageTS, e.Text); err != nil {
		return err
	}
	if e.ThreadTS != "" && model.ParseTimestamp(e.ThreadTS).IsZero() {
		return domain.NewValidationError("thread_ts", "malformed")
	}
	return nil
}

func (e MentionEvent) job() *model.GenerationJob {
	return &model.GenerationJob{
		TenantID: e.TenantID, UserID: e.UserID, ChannelID: e.ChannelID,
		TriggerMessageID: e.MessageTS, TriggerText: e.Text,
	}
}

func (e ReplyEvent) job() *model.GenerationJob {
	return &model.GenerationJob{
		TenantID: e.TenantID, UserID: e.UserID, ChannelID: e.ChannelID,
		TriggerMessageID: e.MessageTS, TriggerText: e.Text, TargetUserID: e.AuthorID,
	}
}

func (e ThreadEvent) job() *model.GenerationJob {
	return &model.GenerationJob{
		TenantID: e.TenantID, UserID: e.UserID, ChannelID: e.ChannelID,
		TriggerMessageID: e.MessageTS, ThreadTS: e.ThreadTS, TriggerText: e.Text,
		AssistantPanel: e.AssistantPanel,
	}
}

func (e MessageActionEvent) job() *model.GenerationJob {
	return &model.GenerationJob{
		TenantID: e.TenantID, UserID: e.UserID, ChannelID: e.ChannelID,
		TriggerMessageID: e.MessageTS, ThreadTS: e.ThreadTS, TriggerText: e.Text,
		TargetUserID: e.AuthorID, ContextMessages: e.Context,
	}
}

func requireFields(tenantID, userID, channelID, messageTS, text string) error {
	switch {
	case strings.TrimSpace(tenantID) == "":
		return domain.NewValidationError("tenant_id", "required")
	case strings.TrimSpace(userID) == "":
		return domain.NewValidationError("user_id", "required")
	case strings.TrimSpace(channelID) == "":
		return domain.NewValidationError("channel_id", "required")
	case model.ParseTimestamp(messageTS).IsZero():
		return domain.NewValidationError("message_ts", "missing or malformed")
	case strings.TrimSpace(text) == "":
		return domain.NewValidationError("text", "required")
	}
	return nil
}

// Envelope is the wire shape of a trigger: a kind discriminator plus the
// variant's fields under "event". ID is an optional caller-chosen job id.
type Envelope struct {
	Kind  model.TriggerKind `json:"kind"`
	ID    string            `json:"id,omitempty"`
	Event json.RawMessage   `json:"event"`
}

// DecodeTrigger decodes an envelope into its variant. Unknown kinds and
// undecodable bodies are validation errors.
func DecodeTrigger(data []byte) (TriggerEvent, string, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, "", domain.NewValidationError("body", "invalid json")
	}
	var ev TriggerEvent
	var err error
	switch env.Kind {
	case model.TriggerMention:
		var e MentionEvent
		err = strictDecode(env.Event, &e)
		ev = e
	case model.TriggerReply:
		var e ReplyEvent
		err = strictDecode(env.Event, &e)
		ev = e
	case model.TriggerThread:
		var e ThreadEvent
		err = strictDecode(env.Event, &e)
		ev = e
	case model.TriggerMessageAction:
		var e MessageActionEvent
		err = strictDecode(env.Event, &e)
		ev = e
	default:
		return nil, "", domain.NewValidationError("kind", fmt.Sprintf("unknown trigger kind %q", env.Kind))
	}
	if err != nil {
		return nil, "", domain.NewValidationError("event", err.Error())
	}
	return ev, strings.TrimSpace(env.ID), nil
}

func strictDecode(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return fmt.Errorf("missing event body")
	}
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// JobIDFor derives the idempotency key of a trigger. Platform re-delivery of
// the same event maps to the same id.
func JobIDFor(tenantID, channelID, triggerTS, userID string) string {
	key := tenantID + ":" + channelID + ":" + triggerTS + ":" + userID
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String()
}

type IngestionUseCase interface {
	// BuildJob validates ev and returns the job it produces.
	BuildJob(ev TriggerEvent, id string) (*model.GenerationJob, error)
	// Ingest builds and durably enqueues the job. created is false when the
	// same id was already queued. A store failure is returned as is; the
	// trigger must not be treated as handled then.
	Ingest(ctx context.Context, ev TriggerEvent, id string) (job *model.GenerationJob, created bool, err error)
}

type ingestionUC struct {
	queue repository.JobQueue
	now   func() time.Time
	log   *zerolog.Logger
}

func NewIngestionUseCase(queue repository.JobQueue, logger *zerolog.Logger) *ingestionUC {
	return &ingestionUC{queue: queue, now: time.Now, log: logger}
}

func (u *ingestionUC) BuildJob(ev TriggerEvent, id string) (*model.GenerationJob, error) {
	if ev == nil {
		return nil, domain.NewValidationError("event", "missing")
	}
	if err := ev.validate(); err != nil {
		return nil, err
	}
	j := ev.job()
	j.TriggerKind = ev.Kind()
	if id == "" {
		id = JobIDFor(j.TenantID, j.ChannelID, j.TriggerMessageID, j.UserID)
	}
	now := u.now().UTC()
	j.ID = id
	j.Status = model.JobStatusPending
	j.EnqueuedAt = now
	j.VisibleAt = now
	return j, nil
}

func (u *ingestionUC) Ingest(ctx context.Context, ev TriggerEvent, id string) (*model.GenerationJob, bool, error) {
	defer logging.TraceDuration(u.log, "IngestionUC.Ingest")()
	kind := "unknown"
	if ev != nil {
		kind = string(ev.Kind())
	}

	job, err := u.BuildJob(ev, id)
	if err != nil {
		metrics.IncIngest(kind, "invalid")
		return nil, false, err
	}
	stored, created, err := u.queue.Enqueue(ctx, job)
	if err != nil {
		metrics.IncIngest(kind, "error")
		u.log.Error().Err(err).Str("job_id", job.ID).Msg("enqueue failed")
		return nil, false, fmt.Errorf("enqueue job: %w", err)
	}
	if !created {
		metrics.IncIngest(kind, "duplicate")
		u.log.Debug().Str("job_id", job.ID).Msg("duplicate trigger collapsed onto existing job")
		return stored, false, nil
	}
	metrics.IncIngest(kind, "accepted")
	u.log.Info().Str("job_id", job.ID).Str("tenant_id", job.TenantID).Str("kind", kind).Msg("trigger enqueued")
	return stored, true, nil
}
