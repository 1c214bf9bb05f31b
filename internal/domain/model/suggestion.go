package model

import "time"

type SuggestionState string

const (
	SuggestionPending       SuggestionState = "pending"
	SuggestionDelivered     SuggestionState = "delivered"
	SuggestionQuotaExceeded SuggestionState = "quota_exceeded"
	SuggestionUndelivered   SuggestionState = "undelivered"
)

// SuggestionRecord is the terminal artifact of a pipeline run that passed the guardrail.
// Text, Verdict and GenerationLatency never change after creation; the delivery
// fields only move forward.
type SuggestionRecord struct {
	ID                string
	JobID             string
	TenantID          string
	UserID            string
	ChannelID         string
	ThreadTS          string
	Text              string
	GenerationLatency time.Duration
	Verdict           Verdict
	InjectionDetected bool
	InjectionReason   string

	UsageReserved   bool
	State           SuggestionState
	DeliveryChannel DeliveryChannel
	DeliveredAt     *time.Time
	CreatedAt       time.Time
}

func (s *SuggestionRecord) Delivered() bool { return s.DeliveredAt != nil }
