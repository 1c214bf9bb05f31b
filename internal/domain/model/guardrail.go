package model

type TriggerMode string

const (
	TriggerModeBlock TriggerMode = "block_on_match"
	TriggerModeFlag  TriggerMode = "flag_on_match"
)

type Verdict string

const (
	VerdictAllow Verdict = "allow"
	VerdictBlock Verdict = "block"
	VerdictFlag  Verdict = "flag"
)

// GuardrailPolicy is per-tenant content policy, owned by the admin surface.
type GuardrailPolicy struct {
	TenantID          string
	EnabledCategories []string
	BlockedKeywords   []string
	TriggerMode       TriggerMode
}

// OnMatch maps a policy hit to a verdict. Anything but flag mode blocks.
func (p *GuardrailPolicy) OnMatch() Verdict {
	if p.TriggerMode == TriggerModeFlag {
		return VerdictFlag
	}
	return VerdictBlock
}

type GuardrailResult struct {
	Verdict  Verdict
	Category string // "keyword" for blocked keyword hits
	Match    string
}
