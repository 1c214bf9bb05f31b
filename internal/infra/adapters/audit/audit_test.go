package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"ai-reply-assistant/internal/domain/model"
)

type recordingSink struct {
	got []model.AuditEvent
	err error
}

func (r *recordingSink) Record(_ context.Context, ev model.AuditEvent) error {
	r.got = append(r.got, ev)
	return r.err
}

func TestFanOut_StampsOnceAndTriesEverySink(t *testing.T) {
	a := &recordingSink{err: errors.New("db down")}
	b := &recordingSink{}
	f := NewFanOut(a, b)

	err := f.Record(context.Background(), model.AuditEvent{Action: model.AuditDelivered, TenantID: "T1", UserID: "U1"})
	if err == nil {
		t.Fatal("expected the failing sink's error")
	}
	if len(a.got) != 1 || len(b.got) != 1 {
		t.Fatalf("every sink should be called, got %d/%d", len(a.got), len(b.got))
	}
	if a.got[0].ID == "" || a.got[0].ID != b.got[0].ID || !a.got[0].At.Equal(b.got[0].At) {
		t.Errorf("sinks saw different stamps: %+v vs %+v", a.got[0], b.got[0])
	}
}

type fakePublisher struct {
	exchange, key string
	msg           amqp.Publishing
}

func (p *fakePublisher) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	p.exchange, p.key, p.msg = exchange, key, msg
	return nil
}

func TestAMQPSink_Record(t *testing.T) {
	pub := &fakePublisher{}
	s := &AMQPSink{ch: pub, exchange: "suggestion.audit"}
	ev := model.AuditEvent{ID: "01HX", Action: model.AuditBlocked, TenantID: "T1", UserID: "U1", Reason: "keyword", At: time.Unix(1700000000, 0).UTC()}
	if err := s.Record(context.Background(), ev); err != nil {
		t.Fatal(err)
	}
	if pub.exchange != "suggestion.audit" || pub.key != "audit.blocked" {
		t.Errorf("published to %s/%s", pub.exchange, pub.key)
	}
	if pub.msg.DeliveryMode != amqp.Persistent || pub.msg.MessageId != "01HX" {
		t.Errorf("unexpected publishing %+v", pub.msg)
	}
	var back model.AuditEvent
	if err := json.Unmarshal(pub.msg.Body, &back); err != nil || back.Reason != "keyword" {
		t.Errorf("body = %s, %v", pub.msg.Body, err)
	}
}
