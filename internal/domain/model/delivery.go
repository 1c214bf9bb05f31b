package model

type DeliveryChannel string

const (
	DeliveryEphemeral      DeliveryChannel = "ephemeral"
	DeliveryDMFallback     DeliveryChannel = "dm_fallback"
	DeliveryAssistantPanel DeliveryChannel = "assistant_panel"
)

// DeliveryOutcome is reported to audit, not persisted by the core.
type DeliveryOutcome struct {
	Channel  DeliveryChannel
	Success  bool
	Reason   string
	Attempts int
}
