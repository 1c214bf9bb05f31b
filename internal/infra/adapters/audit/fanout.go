package audit

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"

	"ai-reply-assistant/internal/domain/model"
	"ai-reply-assistant/internal/domain/ports/adapter"
)

var _ adapter.AuditSink = (*FanOut)(nil)

// FanOut stamps id and time once, then records to every sink. Every sink is
// tried even when one fails.
type FanOut struct {
	sinks []adapter.AuditSink
	now   func() time.Time
}

func NewFanOut(sinks ...adapter.AuditSink) *FanOut {
	return &FanOut{sinks: sinks, now: func() time.Time { return time.Now().UTC() }}
}

func (f *FanOut) Record(ctx context.Context, ev model.AuditEvent) error {
	if ev.At.IsZero() {
		ev.At = f.now()
	}
	if ev.ID == "" {
		ev.ID = ulid.MustNew(ulid.Timestamp(ev.At), ulid.DefaultEntropy()).String()
	}
	var errs []error
	for _, s := range f.sinks {
		if err := s.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
