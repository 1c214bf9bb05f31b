package model

import "time"

type AuditAction string

const (
	AuditGenerated         AuditAction = "generated"
	AuditFlagged           AuditAction = "flagged"
	AuditBlocked           AuditAction = "blocked"
	AuditInjectionDetected AuditAction = "injection_detected"
	AuditQuotaExceeded     AuditAction = "quota_exceeded"
	AuditDelivered         AuditAction = "delivered"
	AuditDeliveryFailed    AuditAction = "delivery_failed"
	AuditDeadLettered      AuditAction = "dead_lettered"
	AuditVoided            AuditAction = "voided"
	AuditResent            AuditAction = "resent"

	// user feedback on a delivered suggestion
	AuditUsed      AuditAction = "used"
	AuditDismissed AuditAction = "dismissed"
	AuditEdited    AuditAction = "edited"
)

func (a AuditAction) IsFeedback() bool {
	return a == AuditUsed || a == AuditDismissed || a == AuditEdited
}

type AuditEvent struct {
	ID           string      `json:"id"`
	SuggestionID string      `json:"suggestion_id,omitempty"`
	JobID        string      `json:"job_id,omitempty"`
	Action       AuditAction `json:"action"`
	TenantID     string      `json:"tenant_id"`
	UserID       string      `json:"user_id"`
	Text         string      `json:"text,omitempty"`
	Reason       string      `json:"reason,omitempty"`
	At           time.Time   `json:"at"`
}
