package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"ai-reply-assistant/internal/domain"
	"ai-reply-assistant/internal/domain/model"
	"ai-reply-assistant/internal/domain/ports/repository"
)

var _ repository.JobQueue = (*jobQueue)(nil)

const jobColumns = `id, tenant_id, user_id, channel_id, trigger_message_id, thread_ts, trigger_text,
  trigger_kind, context_messages, assistant_panel, target_user_id, status, attempts,
  enqueued_at, visible_at, lease_token, last_error, notice_sent, updated_at`

type jobQueue struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
}

func NewJobQueue(pool *pgxpool.Pool, tm repository.TransactionManager) *jobQueue {
	return &jobQueue{pool: pool, tm: tm}
}

func (q *jobQueue) Enqueue(ctx context.Context, job *model.GenerationJob) (*model.GenerationJob, bool, error) {
	if job.ID == "" {
		return nil, false, domain.NewValidationError("id", "required")
	}
	msgs, err := json.Marshal(job.ContextMessages)
	if err != nil {
		return nil, false, fmt.Errorf("marshal context messages: %w", err)
	}
	now := time.Now().UTC()
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = now
	}
	if job.VisibleAt.IsZero() {
		job.VisibleAt = job.EnqueuedAt
	}

	const ins = `
INSERT INTO generation_jobs (id, tenant_id, user_id, channel_id, trigger_message_id, thread_ts, trigger_text,
  trigger_kind, context_messages, assistant_panel, target_user_id, status, attempts,
  enqueued_at, visible_at, lease_token, last_error, notice_sent, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 'pending', 0, $12, $13, '', '', false, $14)
ON CONFLICT (id) DO NOTHING
RETURNING ` + jobColumns

	row, err := pickRow(ctx, q.pool, nil, ins,
		job.ID, job.TenantID, job.UserID, job.ChannelID, job.TriggerMessageID, job.ThreadTS, job.TriggerText,
		string(job.TriggerKind), msgs, job.AssistantPanel, job.TargetUserID, job.EnqueuedAt, job.VisibleAt, now)
	if err != nil {
		return nil, false, err
	}
	stored, err := scanJob(row)
	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, err
	}
	// conflict: the job was enqueued before
	existing, err := q.FindByID(ctx, job.ID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// Claim picks the oldest visible job. A processing job becomes visible again
// once its lease deadline (visible_at) passes, so a crashed worker's job is
// reclaimed with a fresh lease and the old holder's acks fail.
func (q *jobQueue) Claim(ctx context.Context, visibility time.Duration) (*model.GenerationJob, error) {
	var claimed *model.GenerationJob
	err := q.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		const pick = `
SELECT id FROM generation_jobs
WHERE status IN ('pending', 'processing') AND visible_at <= now()
ORDER BY visible_at
LIMIT 1
FOR UPDATE SKIP LOCKED;`
		row, err := pickRow(ctx, q.pool, tx, pick)
		if err != nil {
			return err
		}
		var id string
		if err := row.Scan(&id); err != nil {
			return scanErr(err)
		}

		const lease = `
UPDATE generation_jobs
SET status = 'processing', attempts = attempts + 1, lease_token = $2,
    visible_at = now() + $3::float8 * interval '1 millisecond', updated_at = now()
WHERE id = $1
RETURNING ` + jobColumns
		row, err = pickRow(ctx, q.pool, tx, lease, id, uuid.NewString(), float64(visibility.Milliseconds()))
		if err != nil {
			return err
		}
		claimed, err = scanJob(row)
		return err
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (q *jobQueue) Ack(ctx context.Context, jobID, lease string) error {
	const upd = `
UPDATE generation_jobs SET status = 'completed', lease_token = '', updated_at = now()
WHERE id = $1 AND lease_token = $2 AND status = 'processing';`
	return q.leased(ctx, upd, jobID, lease)
}

func (q *jobQueue) Nack(ctx context.Context, jobID, lease string, retryAfter time.Duration, reason string) error {
	const upd = `
UPDATE generation_jobs
SET status = 'pending', lease_token = '', last_error = $3,
    visible_at = now() + $4::float8 * interval '1 millisecond', updated_at = now()
WHERE id = $1 AND lease_token = $2 AND status = 'processing';`
	return q.leased(ctx, upd, jobID, lease, reason, float64(retryAfter.Milliseconds()))
}

func (q *jobQueue) DeadLetter(ctx context.Context, jobID, lease, reason string) error {
	const upd = `
UPDATE generation_jobs SET status = 'dead', lease_token = '', last_error = $3, updated_at = now()
WHERE id = $1 AND lease_token = $2 AND status = 'processing';`
	return q.leased(ctx, upd, jobID, lease, reason)
}

func (q *jobQueue) Extend(ctx context.Context, jobID, lease string, visibility time.Duration) error {
	const upd = `
UPDATE generation_jobs SET visible_at = now() + $3::float8 * interval '1 millisecond', updated_at = now()
WHERE id = $1 AND lease_token = $2 AND status = 'processing';`
	return q.leased(ctx, upd, jobID, lease, float64(visibility.Milliseconds()))
}

func (q *jobQueue) leased(ctx context.Context, sql, jobID, lease string, extra ...interface{}) error {
	args := append([]interface{}{jobID, lease}, extra...)
	tag, err := execSQL(ctx, q.pool, nil, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrLeaseLost
	}
	return nil
}

// Void cancels a job that has not finished. Voiding twice is a no-op; voiding a
// completed or dead job is rejected.
func (q *jobQueue) Void(ctx context.Context, jobID string) error {
	const upd = `
UPDATE generation_jobs SET status = 'void', lease_token = '', updated_at = now()
WHERE id = $1 AND status IN ('pending', 'processing');`
	tag, err := execSQL(ctx, q.pool, nil, upd, jobID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	job, err := q.FindByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status == model.JobStatusVoid {
		return nil
	}
	return fmt.Errorf("%w: job is %s", domain.ErrInvalidArgument, job.Status)
}

func (q *jobQueue) IsVoided(ctx context.Context, jobID string) (bool, error) {
	row, err := pickRow(ctx, q.pool, nil, `SELECT status FROM generation_jobs WHERE id = $1;`, jobID)
	if err != nil {
		return false, err
	}
	var status string
	if err := row.Scan(&status); err != nil {
		return false, scanErr(err)
	}
	return model.JobStatus(status) == model.JobStatusVoid, nil
}

func (q *jobQueue) MarkNoticeSent(ctx context.Context, jobID string) (bool, error) {
	tag, err := execSQL(ctx, q.pool, nil,
		`UPDATE generation_jobs SET notice_sent = true, updated_at = now() WHERE id = $1 AND NOT notice_sent;`, jobID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (q *jobQueue) FindByID(ctx context.Context, jobID string) (*model.GenerationJob, error) {
	row, err := pickRow(ctx, q.pool, nil, `SELECT `+jobColumns+` FROM generation_jobs WHERE id = $1;`, jobID)
	if err != nil {
		return nil, err
	}
	return scanJob(row)
}

func (q *jobQueue) ListDead(ctx context.Context, limit int) ([]*model.GenerationJob, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := queryRows(ctx, q.pool, nil,
		`SELECT `+jobColumns+` FROM generation_jobs WHERE status = 'dead' ORDER BY updated_at DESC LIMIT $1;`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.GenerationJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (q *jobQueue) Stats(ctx context.Context) (repository.QueueStats, error) {
	rows, err := queryRows(ctx, q.pool, nil, `SELECT status, count(*) FROM generation_jobs GROUP BY status;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := repository.QueueStats{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, scanErr(err)
		}
		stats[model.JobStatus(status)] = n
	}
	return stats, rows.Err()
}

func scanJob(row pgx.Row) (*model.GenerationJob, error) {
	var (
		j            model.GenerationJob
		kind, status string
		msgs         []byte
	)
	err := row.Scan(&j.ID, &j.TenantID, &j.UserID, &j.ChannelID, &j.TriggerMessageID, &j.ThreadTS, &j.TriggerText,
		&kind, &msgs, &j.AssistantPanel, &j.TargetUserID, &status, &j.Attempts,
		&j.EnqueuedAt, &j.VisibleAt, &j.LeaseToken, &j.LastError, &j.NoticeSent, &j.UpdatedAt)
	if err != nil {
		return nil, scanErr(err)
	}
	j.TriggerKind = model.TriggerKind(kind)
	j.Status = model.JobStatus(status)
	if len(msgs) > 0 {
		if err := json.Unmarshal(msgs, &j.ContextMessages); err != nil {
			return nil, fmt.Errorf("decode context messages: %w", err)
		}
	}
	return &j, nil
}
