package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"ai-reply-assistant/internal/domain"
	"ai-reply-assistant/internal/domain/model"
	"ai-reply-assistant/internal/domain/ports/repository"
)

var _ repository.SuggestionRepository = (*suggestionRepo)(nil)

const suggestionColumns = `id, job_id, tenant_id, user_id, channel_id, thread_ts, text, generation_latency_ms,
  verdict, injection_detected, injection_reason, usage_reserved, state, delivery_channel, delivered_at, created_at`

type suggestionRepo struct {
	pool *pgxpool.Pool
}

func NewSuggestionRepo(pool *pgxpool.Pool) *suggestionRepo {
	return &suggestionRepo{pool: pool}
}

func (r *suggestionRepo) Create(ctx context.Context, tx repository.Tx, rec *model.SuggestionRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.State == "" {
		rec.State = model.SuggestionPending
	}
	const q = `
INSERT INTO suggestions (` + suggestionColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16);`

	_, err := execSQL(ctx, r.pool, tx, q,
		rec.ID, rec.JobID, rec.TenantID, rec.UserID, rec.ChannelID, rec.ThreadTS, rec.Text,
		rec.GenerationLatency.Milliseconds(), string(rec.Verdict), rec.InjectionDetected, rec.InjectionReason,
		rec.UsageReserved, string(rec.State), string(rec.DeliveryChannel), rec.DeliveredAt, rec.CreatedAt)
	if isUniqueViolation(err) {
		return domain.ErrAlreadyExists
	}
	return err
}

func (r *suggestionRepo) FindByJobID(ctx context.Context, tx repository.Tx, jobID string) (*model.SuggestionRecord, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+suggestionColumns+` FROM suggestions WHERE job_id = $1;`, jobID)
	if err != nil {
		return nil, err
	}
	return scanSuggestion(row)
}

func (r *suggestionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.SuggestionRecord, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+suggestionColumns+` FROM suggestions WHERE id = $1;`, id)
	if err != nil {
		return nil, err
	}
	return scanSuggestion(row)
}

func (r *suggestionRepo) MarkUsageReserved(ctx context.Context, tx repository.Tx, id string) error {
	return r.update(ctx, tx, `UPDATE suggestions SET usage_reserved = true WHERE id = $1;`, id)
}

// MarkState never moves a delivered record back.
func (r *suggestionRepo) MarkState(ctx context.Context, tx repository.Tx, id string, state model.SuggestionState) error {
	const q = `UPDATE suggestions SET state = $2 WHERE id = $1 AND delivered_at IS NULL;`
	tag, err := execSQL(ctx, r.pool, tx, q, id, string(state))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.FindByID(ctx, tx, id); err != nil {
			return err
		}
	}
	return nil
}

// MarkDelivered records the first successful delivery only.
func (r *suggestionRepo) MarkDelivered(ctx context.Context, tx repository.Tx, id string, channel model.DeliveryChannel, at time.Time) error {
	const q = `
UPDATE suggestions SET state = 'delivered', delivery_channel = $2, delivered_at = $3
WHERE id = $1 AND delivered_at IS NULL;`
	tag, err := execSQL(ctx, r.pool, tx, q, id, string(channel), at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.FindByID(ctx, tx, id); err != nil {
			return err
		}
	}
	return nil
}

func (r *suggestionRepo) update(ctx context.Context, tx repository.Tx, sql string, args ...interface{}) error {
	tag, err := execSQL(ctx, r.pool, tx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanSuggestion(row pgx.Row) (*model.SuggestionRecord, error) {
	var (
		s                       model.SuggestionRecord
		latencyMs               int64
		verdict, state, channel string
		deliveredAt             *time.Time
	)
	err := row.Scan(&s.ID, &s.JobID, &s.TenantID, &s.UserID, &s.ChannelID, &s.ThreadTS, &s.Text, &latencyMs,
		&verdict, &s.InjectionDetected, &s.InjectionReason, &s.UsageReserved, &state, &channel, &deliveredAt, &s.CreatedAt)
	if err != nil {
		return nil, scanErr(err)
	}
	s.GenerationLatency = time.Duration(latencyMs) * time.Millisecond
	s.Verdict = model.Verdict(verdict)
	s.State = model.SuggestionState(state)
	s.DeliveryChannel = model.DeliveryChannel(channel)
	s.DeliveredAt = deliveredAt
	return &s, nil
}
