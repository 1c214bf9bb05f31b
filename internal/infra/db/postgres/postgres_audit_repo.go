package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/oklog/ulid/v2"

	"ai-reply-assistant/internal/domain/model"
	"ai-reply-assistant/internal/domain/ports/repository"
)

var _ repository.AuditRepository = (*auditRepo)(nil)

type auditRepo struct {
	pool *pgxpool.Pool
}

func NewAuditRepo(pool *pgxpool.Pool) *auditRepo {
	return &auditRepo{pool: pool}
}

// Insert assigns a ULID when ev has no id so events sort by creation.
func (r *auditRepo) Insert(ctx context.Context, ev *model.AuditEvent) error {
	if ev.ID == "" {
		ev.ID = ulid.Make().String()
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	const q = `
INSERT INTO audit_events (id, suggestion_id, job_id, action, tenant_id, user_id, text, reason, at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO NOTHING;`
	_, err := execSQL(ctx, r.pool, nil, q,
		ev.ID, ev.SuggestionID, ev.JobID, string(ev.Action), ev.TenantID, ev.UserID, ev.Text, ev.Reason, ev.At)
	return err
}

func (r *auditRepo) ListBySuggestion(ctx context.Context, suggestionID string) ([]*model.AuditEvent, error) {
	const q = `
SELECT id, suggestion_id, job_id, action, tenant_id, user_id, text, reason, at
FROM audit_events WHERE suggestion_id = $1 ORDER BY id;`
	rows, err := queryRows(ctx, r.pool, nil, q, suggestionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.AuditEvent
	for rows.Next() {
		var ev model.AuditEvent
		var action string
		if err := rows.Scan(&ev.ID, &ev.SuggestionID, &ev.JobID, &action, &ev.TenantID, &ev.UserID, &ev.Text, &ev.Reason, &ev.At); err != nil {
			return nil, scanErr(err)
		}
		ev.Action = model.AuditAction(action)
		out = append(out, &ev)
	}
	return out, rows.Err()
}
