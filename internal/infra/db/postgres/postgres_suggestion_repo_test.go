//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"ai-reply-assistant/internal/domain"
	"ai-reply-assistant/internal/domain/model"
	"ai-reply-assistant/internal/infra/security"
)

func TestSuggestionRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	q := NewJobQueue(testPool, NewTxManager(testPool))
	repo := NewSuggestionRepo(testPool)

	t.Run("one record per job and delivery only moves forward", func(t *testing.T) {
		cleanup(t)
		if _, _, err := q.Enqueue(ctx, newTestJob("job-s")); err != nil {
			t.Fatal(err)
		}
		rec := &model.SuggestionRecord{
			JobID: "job-s", TenantID: "T1", UserID: "U1", ChannelID: "C1",
			Text: "Sure, I'll take a look.", Verdict: model.VerdictAllow, GenerationLatency: 1200 * time.Millisecond,
		}
		if err := repo.Create(ctx, nil, rec); err != nil {
			t.Fatalf("create: %v", err)
		}
		if err := repo.Create(ctx, nil, &model.SuggestionRecord{JobID: "job-s", Text: "other", Verdict: model.VerdictAllow}); !errors.Is(err, domain.ErrAlreadyExists) {
			t.Fatalf("expected ErrAlreadyExists, got %v", err)
		}
		if err := repo.MarkUsageReserved(ctx, nil, rec.ID); err != nil {
			t.Fatal(err)
		}
		at := time.Now().UTC().Truncate(time.Millisecond)
		if err := repo.MarkDelivered(ctx, nil, rec.ID, model.DeliveryEphemeral, at); err != nil {
			t.Fatal(err)
		}
		if err := repo.MarkDelivered(ctx, nil, rec.ID, model.DeliveryDMFallback, at.Add(time.Minute)); err != nil {
			t.Fatal(err)
		}
		if err := repo.MarkState(ctx, nil, rec.ID, model.SuggestionUndelivered); err != nil {
			t.Fatal(err)
		}
		got, err := repo.FindByJobID(ctx, nil, "job-s")
		if err != nil {
			t.Fatal(err)
		}
		if !got.UsageReserved || got.State != model.SuggestionDelivered || got.DeliveryChannel != model.DeliveryEphemeral {
			t.Errorf("unexpected record %+v", got)
		}
		if got.Text != rec.Text || got.GenerationLatency != rec.GenerationLatency {
			t.Errorf("immutable fields changed: %+v", got)
		}
	})

	t.Run("person notes are sealed at rest", func(t *testing.T) {
		cleanup(t)
		cipher, err := security.NewFieldCipher("0123456789abcdef0123456789abcdef")
		if err != nil {
			t.Fatal(err)
		}
		people := NewPersonRepo(testPool, cipher)
		if err := people.SavePersonContext(ctx, "T1", "U1", "U2", "prefers short answers"); err != nil {
			t.Fatal(err)
		}
		var raw string
		if err := testPool.QueryRow(ctx, `SELECT notes FROM person_contexts WHERE target_user_id = 'U2'`).Scan(&raw); err != nil {
			t.Fatal(err)
		}
		if raw == "prefers short answers" {
			t.Error("notes stored in plaintext")
		}
		got, err := people.GetPersonContext(ctx, "T1", "U1", "U2")
		if err != nil || got != "prefers short answers" {
			t.Errorf("got %q, %v", got, err)
		}
		if got, _ := people.GetPersonContext(ctx, "T1", "U1", "nobody"); got != "" {
			t.Errorf("expected empty notes, got %q", got)
		}
	})

	t.Run("policy defaults to allow when unset", func(t *testing.T) {
		cleanup(t)
		policies := NewPolicyRepo(testPool)
		p, err := policies.GetPolicy(ctx, "T9")
		if err != nil || len(p.EnabledCategories) != 0 || len(p.BlockedKeywords) != 0 {
			t.Fatalf("unexpected default policy %+v %v", p, err)
		}
		want := &model.GuardrailPolicy{TenantID: "T9", EnabledCategories: []string{"medical-advice"}, BlockedKeywords: []string{"acme"}, TriggerMode: model.TriggerModeFlag}
		if err := policies.UpsertPolicy(ctx, want); err != nil {
			t.Fatal(err)
		}
		p, _ = policies.GetPolicy(ctx, "T9")
		if p.TriggerMode != model.TriggerModeFlag || len(p.BlockedKeywords) != 1 {
			t.Errorf("unexpected policy %+v", p)
		}
	})
}
