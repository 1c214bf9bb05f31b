// File: internal/usecase/guardrail_uc.go
package usecase

import (
	"regexp"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"ai-reply-assistant/internal/domain/model"
)

// Compile-time check
var _ Guardrail = (*guardrailUC)(nil)

// Guardrail evaluates a draft against the tenant's content policy.
type Guardrail interface {
	Evaluate(text string, policy *model.GuardrailPolicy) model.GuardrailResult
}

// KeywordCategory is reported when a blocked keyword matched.
const KeywordCategory = "keyword"

// categoryPatterns are the built-in pattern sets a tenant can enable.
var categoryPatterns = map[string][]*regexp.Regexp{
	"legal-advice": {
		regexp.MustCompile(`(?i)\b(legal\s+advice|you\s+should\s+sue|file\s+a\s+(law)?suit|sue\s+(them|him|her|the\s+company)|grounds\s+for\s+a\s+lawsuit|breach\s+of\s+contract|you\s+have\s+a\s+(strong\s+)?(legal\s+)?case|statute\s+of\s+limitations|legally\s+(you|they)\s+(must|can|cannot))\b`),
	},
	"medical-advice": {
		regexp.MustCompile(`(?i)\b(medical\s+advice|diagnos(is|ed|e)\s+(you|with)|you\s+(probably|likely|may|might)\s+have\s+(a|an)?\s*\w*\s*(infection|disease|disorder|condition)|prescri(be|ption)\s+(you|for)|recommended\s+dosage|stop\s+taking\s+(your|the)\s+medication)\b`),
		regexp.MustCompile(`(?i)\btake\s+\d+\s*(mg|ml|milligrams?|tablets?|pills?)\b`),
	},
	"financial-advice": {
		regexp.MustCompile(`(?i)\b(financial\s+advice|investment\s+advice|you\s+should\s+(buy|sell|short|invest\s+in)|guaranteed\s+(returns?|profits?)|price\s+target|put\s+(all\s+)?your\s+(savings|money)\s+(in|into)|can't\s+lose\s+money)\b`),
	},
	"harassment": {
		regexp.MustCompile(`(?i)\b(you('re|\s+are)\s+(an?\s+)?(idiot|moron|pathetic|useless|worthless|stupid)|shut\s+up|go\s+to\s+hell|i\s+will\s+(hurt|find|destroy)\s+you|nobody\s+likes\s+you)\b`),
	},
	"confidential": {
		regexp.MustCompile(`(?i)\b(strictly\s+confidential|confidential\s+information|internal\s+only|do\s+not\s+(share|distribute|forward)|under\s+(an?\s+)?nda|trade\s+secrets?|not\s+for\s+(external\s+)?distribution)\b`),
	},
	"pii": {
		regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),                                 // US SSN
		regexp.MustCompile(`\b(?:\d{4}[ -]?){3}\d{4}\b`),                            // payment card
		regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),    // email
		regexp.MustCompile(`(?:\+\d{1,3}[ .-]?)?\(?\d{3}\)?[ .-]\d{3}[ .-]\d{4}\b`), // phone
	},
}

// KnownCategories lists the category names policies may enable.
func KnownCategories() []string {
	out := make([]string, 0, len(categoryPatterns))
	for k := range categoryPatterns {
		out = append(out, k)
	}
	return out
}

type guardrailUC struct {
	log    *zerolog.Logger
	warned sync.Map // tenant|category already reported as unknown
}

func NewGuardrail(logger *zerolog.Logger) *guardrailUC {
	return &guardrailUC{log: logger}
}

// Evaluate checks blocked keywords first, then enabled categories in policy
// order. The first hit decides; the policy's trigger mode picks block or flag.
func (g *guardrailUC) Evaluate(text string, policy *model.GuardrailPolicy) model.GuardrailResult {
	allow := model.GuardrailResult{Verdict: model.VerdictAllow}
	if policy == nil || text == "" {
		return allow
	}

	lower := strings.ToLower(text)
	for _, kw := range policy.BlockedKeywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			return model.GuardrailResult{Verdict: policy.OnMatch(), Category: KeywordCategory, Match: kw}
		}
	}

	for _, cat := range policy.EnabledCategories {
		name := strings.ToLower(strings.TrimSpace(cat))
		patterns, ok := categoryPatterns[name]
		if !ok {
			g.warnUnknown(policy.TenantID, cat)
			continue
		}
		for _, re := range patterns {
			if m := re.FindString(text); m != "" {
				return model.GuardrailResult{Verdict: policy.OnMatch(), Category: name, Match: m}
			}
		}
	}
	return allow
}

func (g *guardrailUC) warnUnknown(tenantID, category string) {
	if _, seen := g.warned.LoadOrStore(tenantID+"|"+category, struct{}{}); seen {
		return
	}
	g.log.Warn().Str("tenant_id", tenantID).Str("category", category).Msg("guardrail policy names an unknown category; ignored")
}
