//go:build !integration

package model

import (
	"testing"
	"time"
)

// --- Usage Level Tests ---

func TestLevelFor(t *testing.T) {
	cases := []struct {
		name  string
		used  int64
		limit int64
		want  WarningLevel
	}{
		{"empty counter", 0, 100, WarningSafe},
		{"just below warning", 79, 100, WarningSafe},
		{"warning threshold", 80, 100, WarningWarning},
		{"just below critical", 94, 100, WarningWarning},
		{"critical threshold", 95, 100, WarningCritical},
		{"used equals limit", 100, 100, WarningCritical},
		{"one past limit", 101, 100, WarningExceeded},
		{"small limit at limit", 3, 3, WarningCritical},
		{"zero limit untouched", 0, 0, WarningCritical},
		{"zero limit used", 1, 0, WarningExceeded},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := LevelFor(tc.used, tc.limit); got != tc.want {
				t.Errorf("LevelFor(%d, %d) = %s, want %s", tc.used, tc.limit, got, tc.want)
			}
		})
	}
}

func TestNextPeriod(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("inside the first period", func(t *testing.T) {
		s, e := NextPeriod(start, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC))
		if !s.Equal(start) || !e.Equal(start.AddDate(0, 1, 0)) {
			t.Fatalf("unexpected period %s..%s", s, e)
		}
	})

	t.Run("rolls several months forward", func(t *testing.T) {
		s, e := NextPeriod(start, time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC))
		want := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
		if !s.Equal(want) || !e.Equal(want.AddDate(0, 1, 0)) {
			t.Fatalf("unexpected period %s..%s", s, e)
		}
	})

	t.Run("period end is exclusive", func(t *testing.T) {
		s, _ := NextPeriod(start, start.AddDate(0, 1, 0))
		if !s.Equal(start.AddDate(0, 1, 0)) {
			t.Fatalf("expected rollover at period end, got start %s", s)
		}
	})
}

// --- Job Tests ---

func TestGenerationJob_IsDirectMessage(t *testing.T) {
	if !(&GenerationJob{ChannelID: "D024BE91L"}).IsDirectMessage() {
		t.Error("expected D-prefixed channel to be a direct message")
	}
	if (&GenerationJob{ChannelID: "C024BE91L"}).IsDirectMessage() {
		t.Error("expected C-prefixed channel not to be a direct message")
	}
}

func TestTriggerKind_Valid(t *testing.T) {
	for _, k := range []TriggerKind{TriggerMention, TriggerReply, TriggerThread, TriggerMessageAction} {
		if !k.Valid() {
			t.Errorf("expected %q to be valid", k)
		}
	}
	if TriggerKind("reaction").Valid() {
		t.Error("expected unknown kind to be invalid")
	}
}

func TestGuardrailPolicy_OnMatch(t *testing.T) {
	if (&GuardrailPolicy{TriggerMode: TriggerModeFlag}).OnMatch() != VerdictFlag {
		t.Error("flag mode should flag")
	}
	if (&GuardrailPolicy{TriggerMode: TriggerModeBlock}).OnMatch() != VerdictBlock {
		t.Error("block mode should block")
	}
	if (&GuardrailPolicy{}).OnMatch() != VerdictBlock {
		t.Error("unset mode should block")
	}
}

func TestParseTimestamp(t *testing.T) {
	got := ParseTimestamp("1700000000.000100")
	if got.Unix() != 1700000000 || got.Nanosecond() != 100000 {
		t.Errorf("ParseTimestamp = %v", got)
	}
	if !ParseTimestamp("garbage").IsZero() {
		t.Error("malformed ts should be zero")
	}
	m := ContextMessage{Timestamp: "1700000000.5"}
	if m.Time().Nanosecond() != 500000000 {
		t.Errorf("short fraction padded wrong: %v", m.Time())
	}
}
