//go:build !integration

package usecase_test

import (
	"strings"
	"testing"

	"ai-reply-assistant/internal/domain/model"
	"ai-reply-assistant/internal/testutil"
	"ai-reply-assistant/internal/usecase"
)

func TestGuardrail_BlockedKeywordAnyCase(t *testing.T) {
	g := usecase.NewGuardrail(testutil.Logger())
	policy := &model.GuardrailPolicy{TenantID: "T1", BlockedKeywords: []string{"foo"}, TriggerMode: model.TriggerModeBlock}

	drafts := []string{"foo", "FOO bar", "a Foo b", "xfOOx", "we should talk about fOo tomorrow", strings.Repeat("z", 500) + "FoO"}
	for _, d := range drafts {
		res := g.Evaluate(d, policy)
		if res.Verdict != model.VerdictBlock {
			t.Errorf("Evaluate(%q) = %s, want block", d, res.Verdict)
		}
		if res.Category != usecase.KeywordCategory {
			t.Errorf("Evaluate(%q) category = %q", d, res.Category)
		}
	}
	if res := g.Evaluate("nothing to see here", policy); res.Verdict != model.VerdictAllow {
		t.Errorf("clean draft verdict = %s", res.Verdict)
	}
}

func TestGuardrail_FlagMode(t *testing.T) {
	g := usecase.NewGuardrail(testutil.Logger())
	policy := &model.GuardrailPolicy{BlockedKeywords: []string{"roadmap"}, TriggerMode: model.TriggerModeFlag}
	if res := g.Evaluate("The Roadmap is ready", policy); res.Verdict != model.VerdictFlag {
		t.Fatalf("verdict = %s, want flag", res.Verdict)
	}
}

func TestGuardrail_Categories(t *testing.T) {
	g := usecase.NewGuardrail(testutil.Logger())
	cases := []struct {
		category string
		draft    string
	}{
		{"legal-advice", "Honestly you should sue them for that."},
		{"legal-advice", "That sounds like a breach of contract to me."},
		{"medical-advice", "Just take 400 mg of ibuprofen and rest."},
		{"medical-advice", "You could stop taking your medication for a week."},
		{"financial-advice", "You should buy more of that stock before Friday."},
		{"financial-advice", "This fund has guaranteed returns."},
		{"harassment", "You are an idiot if you think that works."},
		{"confidential", "Keep in mind this is strictly confidential."},
		{"pii", "Her SSN is 123-45-6789."},
		{"pii", "Ping me at jane.doe@example.com"},
		{"pii", "Card 4111 1111 1111 1111 works"},
	}
	for _, tc := range cases {
		t.Run(tc.category, func(t *testing.T) {
			policy := &model.GuardrailPolicy{EnabledCategories: []string{tc.category}, TriggerMode: model.TriggerModeBlock}
			res := g.Evaluate(tc.draft, policy)
			if res.Verdict != model.VerdictBlock || res.Category != tc.category {
				t.Fatalf("Evaluate(%q) = %+v, want block in %s", tc.draft, res, tc.category)
			}

			// not enabled: allowed
			if res := g.Evaluate(tc.draft, &model.GuardrailPolicy{}); res.Verdict != model.VerdictAllow {
				t.Fatalf("zero policy should allow, got %+v", res)
			}
		})
	}
}

func TestGuardrail_CleanDraftsAllowed(t *testing.T) {
	g := usecase.NewGuardrail(testutil.Logger())
	policy := &model.GuardrailPolicy{
		EnabledCategories: usecase.KnownCategories(),
		TriggerMode:       model.TriggerModeBlock,
	}
	for _, d := range []string{
		"Thanks, I'll review the PR this afternoon.",
		"Sounds good, let's sync on Thursday.",
		"Can you share the doc when it's ready?",
	} {
		if res := g.Evaluate(d, policy); res.Verdict != model.VerdictAllow {
			t.Errorf("Evaluate(%q) = %+v, want allow", d, res)
		}
	}
}

func TestGuardrail_KeywordsBeforeCategories(t *testing.T) {
	g := usecase.NewGuardrail(testutil.Logger())
	policy := &model.GuardrailPolicy{
		BlockedKeywords:   []string{"lawsuit"},
		EnabledCategories: []string{"legal-advice"},
	}
	res := g.Evaluate("you should sue, a lawsuit is easy", policy)
	if res.Category != usecase.KeywordCategory || res.Match != "lawsuit" {
		t.Fatalf("expected keyword hit first, got %+v", res)
	}
}

func TestGuardrail_UnknownCategoryIgnored(t *testing.T) {
	g := usecase.NewGuardrail(testutil.Logger())
	policy := &model.GuardrailPolicy{TenantID: "T1", EnabledCategories: []string{"astrology", "pii"}}
	for i := 0; i < 3; i++ {
		if res := g.Evaluate("the stars say yes", policy); res.Verdict != model.VerdictAllow {
			t.Fatalf("unknown category must be ignored, got %+v", res)
		}
	}
	if res := g.Evaluate("mail a@b.io", policy); res.Verdict != model.VerdictBlock {
		t.Fatalf("known category after unknown one must still apply, got %+v", res)
	}
}
