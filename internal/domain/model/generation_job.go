package model

import (
	"strconv"
	"strings"
	"time"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusDead       JobStatus = "dead"
	JobStatusVoid       JobStatus = "void"
)

// JobStatuses lists every status in lifecycle order.
func JobStatuses() []JobStatus {
	return []JobStatus{JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusDead, JobStatusVoid}
}

type TriggerKind string

const (
	TriggerMention       TriggerKind = "mention"
	TriggerReply         TriggerKind = "reply"
	TriggerThread        TriggerKind = "thread"
	TriggerMessageAction TriggerKind = "message_action"
)

func (k TriggerKind) Valid() bool {
	switch k {
	case TriggerMention, TriggerReply, TriggerThread, TriggerMessageAction:
		return true
	}
	return false
}

// ContextMessage is one message of conversation history, as fetched from the platform.
type ContextMessage struct {
	AuthorID  string    `json:"author_id"`
	Text      string    `json:"text"`
	Timestamp string    `json:"ts"`
	At        time.Time `json:"-"`
}

// Time returns At, falling back to parsing Timestamp.
func (m ContextMessage) Time() time.Time {
	if !m.At.IsZero() {
		return m.At
	}
	return ParseTimestamp(m.Timestamp)
}

// ParseTimestamp converts a platform "seconds.micros" timestamp; zero time if malformed.
func ParseTimestamp(ts string) time.Time {
	secPart, fracPart, _ := strings.Cut(ts, ".")
	sec, err := strconv.ParseInt(secPart, 10, 64)
	if err != nil {
		return time.Time{}
	}
	var micros int64
	if fracPart != "" {
		if len(fracPart) > 6 {
			fracPart = fracPart[:6]
		}
		for len(fracPart) < 6 {
			fracPart += "0"
		}
		micros, _ = strconv.ParseInt(fracPart, 10, 64)
	}
	return time.Unix(sec, micros*1000).UTC()
}

// GenerationJob is one unit of pipeline work derived from a single trigger event.
// ID doubles as the idempotency key: re-delivery of the same ID is a retry.
type GenerationJob struct {
	ID               string
	TenantID         string
	UserID           string
	ChannelID        string
	TriggerMessageID string
	ThreadTS         string
	TriggerText      string
	TriggerKind      TriggerKind
	ContextMessages  []ContextMessage
	AssistantPanel   bool
	TargetUserID     string

	Status     JobStatus
	Attempts   int
	EnqueuedAt time.Time
	VisibleAt  time.Time
	LeaseToken string
	LastError  string
	NoticeSent bool
	UpdatedAt  time.Time
}

// DirectMessagePrefix marks one-to-one conversation ids on the chat platform.
const DirectMessagePrefix = "D"

func (j *GenerationJob) IsDirectMessage() bool {
	return strings.HasPrefix(j.ChannelID, DirectMessagePrefix)
}

// Terminal reports whether no further attempt will run.
func (j *GenerationJob) Terminal() bool {
	switch j.Status {
	case JobStatusCompleted, JobStatusDead, JobStatusVoid:
		return true
	}
	return false
}
