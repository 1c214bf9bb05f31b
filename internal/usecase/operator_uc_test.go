//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"testing"

	"ai-reply-assistant/internal/domain"
	"ai-reply-assistant/internal/domain/model"
	"ai-reply-assistant/internal/testutil"
	"ai-reply-assistant/internal/usecase"
)

type operatorFixture struct {
	queue *testutil.JobQueue
	recs  *testutil.SuggestionRepo
	usage *testutil.UsageRepo
	chat  *testutil.ChatPlatform
	audit *testutil.AuditSink
	uc    usecase.OperatorUseCase
}

func newOperatorFixture() *operatorFixture {
	f := &operatorFixture{
		queue: testutil.NewJobQueue(nil),
		recs:  testutil.NewSuggestionRepo(),
		usage: testutil.NewUsageRepo(10, 0),
		chat:  &testutil.ChatPlatform{},
		audit: &testutil.AuditSink{},
	}
	enf := usecase.NewUsageEnforcer(f.usage, f.recs, &testutil.TxManager{}, "", testutil.Logger())
	f.uc = usecase.NewOperatorUseCase(f.queue, f.recs, enf, newRouter(f.chat), f.audit, testutil.Logger())
	return f
}

func (f *operatorFixture) seed(t *testing.T, status model.JobStatus) (*model.GenerationJob, *model.SuggestionRecord) {
	t.Helper()
	ctx := context.Background()
	job := baseJob()
	if _, _, err := f.queue.Enqueue(ctx, job); err != nil {
		t.Fatal(err)
	}
	if status != model.JobStatusPending {
		claimed, err := f.queue.Claim(ctx, 0)
		if err != nil {
			t.Fatal(err)
		}
		switch status {
		case model.JobStatusDead:
			_ = f.queue.DeadLetter(ctx, claimed.ID, claimed.LeaseToken, "delivery failed")
		case model.JobStatusCompleted:
			_ = f.queue.Ack(ctx, claimed.ID, claimed.LeaseToken)
		}
	}
	rec := &model.SuggestionRecord{JobID: job.ID, TenantID: job.TenantID, UserID: job.UserID, ChannelID: job.ChannelID, Text: "draft", Verdict: model.VerdictAllow, State: model.SuggestionUndelivered}
	if err := f.recs.Create(ctx, nil, rec); err != nil {
		t.Fatal(err)
	}
	return job, rec
}

func TestOperator_Void(t *testing.T) {
	ctx := context.Background()
	f := newOperatorFixture()
	job, _ := f.seed(t, model.JobStatusPending)

	if err := f.uc.Void(ctx, job.ID); err != nil {
		t.Fatalf("Void: %v", err)
	}
	if voided, _ := f.queue.IsVoided(ctx, job.ID); !voided {
		t.Fatal("job not voided")
	}
	if err := f.uc.Void(ctx, job.ID); err != nil {
		t.Fatalf("second Void should be a no-op: %v", err)
	}
	if !f.audit.Has(model.AuditVoided) {
		t.Fatal("voided event missing")
	}
	if err := f.uc.Void(ctx, "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown job: %v", err)
	}
}

func TestOperator_VoidFinishedJobRejected(t *testing.T) {
	f := newOperatorFixture()
	job, _ := f.seed(t, model.JobStatusCompleted)
	if err := f.uc.Void(context.Background(), job.ID); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("err = %v", err)
	}
}

func TestOperator_ResendUndelivered(t *testing.T) {
	ctx := context.Background()
	f := newOperatorFixture()
	_, rec := f.seed(t, model.JobStatusDead)

	out, err := f.uc.Resend(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Resend: %v", err)
	}
	if !out.Success || len(f.chat.Ephemeral) != 1 {
		t.Fatalf("outcome = %+v posts = %d", out, len(f.chat.Ephemeral))
	}
	stored, _ := f.recs.FindByID(ctx, nil, rec.ID)
	if !stored.Delivered() || !stored.UsageReserved {
		t.Fatalf("record = %+v", stored)
	}
	if f.usage.Used("T1", "U1") != 1 {
		t.Fatalf("used = %d", f.usage.Used("T1", "U1"))
	}
	if !f.audit.Has(model.AuditResent) {
		t.Fatal("resent event missing")
	}

	if _, err := f.uc.Resend(ctx, rec.ID); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("second resend: %v", err)
	}
	if f.usage.Used("T1", "U1") != 1 {
		t.Fatal("resend of a delivered suggestion must not charge")
	}
}

func TestOperator_ResendRejectsInFlightJob(t *testing.T) {
	ctx := context.Background()
	for _, status := range []model.JobStatus{model.JobStatusPending, model.JobStatusProcessing} {
		t.Run(string(status), func(t *testing.T) {
			f := newOperatorFixture()
			_, rec := f.seed(t, status)

			if _, err := f.uc.Resend(ctx, rec.ID); !errors.Is(err, domain.ErrInvalidArgument) {
				t.Fatalf("err = %v, want ErrInvalidArgument", err)
			}
			if len(f.chat.Ephemeral) != 0 || f.usage.Used("T1", "U1") != 0 {
				t.Fatalf("posts=%d used=%d, want none", len(f.chat.Ephemeral), f.usage.Used("T1", "U1"))
			}
		})
	}
}

func TestOperator_Feedback(t *testing.T) {
	ctx := context.Background()
	f := newOperatorFixture()
	_, rec := f.seed(t, model.JobStatusPending)

	if err := f.uc.RecordFeedback(ctx, rec.ID, "U1", model.AuditEdited, "edited\u200b text"); err != nil {
		t.Fatalf("RecordFeedback: %v", err)
	}
	last := f.audit.Events[len(f.audit.Events)-1]
	if last.Action != model.AuditEdited || last.Text != "edited text" || last.SuggestionID != rec.ID {
		t.Fatalf("event = %+v", last)
	}

	if err := f.uc.RecordFeedback(ctx, rec.ID, "U1", model.AuditDelivered, ""); !domain.IsValidation(err) {
		t.Fatalf("non-feedback action: %v", err)
	}
	if err := f.uc.RecordFeedback(ctx, rec.ID, "U7", model.AuditUsed, ""); !domain.IsValidation(err) {
		t.Fatalf("foreign user: %v", err)
	}
}

func TestOperator_ListDeadLetters(t *testing.T) {
	f := newOperatorFixture()
	job, _ := f.seed(t, model.JobStatusDead)
	dead, err := f.uc.ListDeadLetters(context.Background(), 0)
	if err != nil || len(dead) != 1 || dead[0].ID != job.ID {
		t.Fatalf("dead = %v err = %v", dead, err)
	}
}
