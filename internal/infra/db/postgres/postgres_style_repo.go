package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"ai-reply-assistant/internal/domain"
	"ai-reply-assistant/internal/domain/model"
	"ai-reply-assistant/internal/domain/ports/repository"
	"ai-reply-assistant/internal/infra/security"
)

var (
	_ repository.StyleRepository  = (*styleRepo)(nil)
	_ repository.PersonRepository = (*personRepo)(nil)
)

type styleRepo struct {
	pool *pgxpool.Pool
}

func NewStyleRepo(pool *pgxpool.Pool) *styleRepo {
	return &styleRepo{pool: pool}
}

// GetStylePreferences returns empty preferences when the user has none.
func (r *styleRepo) GetStylePreferences(ctx context.Context, tenantID, userID string) (*model.StylePreferences, error) {
	const q = `
SELECT tone, formality, preferred_phrases, avoid_phrases, custom_guidance
FROM style_preferences WHERE tenant_id = $1 AND user_id = $2;`
	row, err := pickRow(ctx, r.pool, nil, q, tenantID, userID)
	if err != nil {
		return nil, err
	}
	var s model.StylePreferences
	err = scanErr(row.Scan(&s.Tone, &s.Formality, &s.PreferredPhrases, &s.AvoidPhrases, &s.CustomGuidance))
	if errors.Is(err, domain.ErrNotFound) {
		return &model.StylePreferences{}, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// personRepo stores notes sealed with the field cipher; rows written before
// encryption was configured are read back as-is.
type personRepo struct {
	pool   *pgxpool.Pool
	cipher *security.FieldCipher
}

func NewPersonRepo(pool *pgxpool.Pool, cipher *security.FieldCipher) *personRepo {
	return &personRepo{pool: pool, cipher: cipher}
}

func (r *personRepo) GetPersonContext(ctx context.Context, tenantID, userID, targetUserID string) (string, error) {
	if targetUserID == "" {
		return "", nil
	}
	const q = `
SELECT notes FROM person_contexts
WHERE tenant_id = $1 AND user_id = $2 AND target_user_id = $3;`
	row, err := pickRow(ctx, r.pool, nil, q, tenantID, userID, targetUserID)
	if err != nil {
		return "", err
	}
	var notes string
	err = scanErr(row.Scan(&notes))
	if errors.Is(err, domain.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if r.cipher == nil {
		return notes, nil
	}
	plain, err := r.cipher.Open(notes)
	if err != nil {
		return "", fmt.Errorf("open person notes: %w", err)
	}
	return plain, nil
}

func (r *personRepo) SavePersonContext(ctx context.Context, tenantID, userID, targetUserID, notes string) error {
	if r.cipher != nil {
		sealed, err := r.cipher.Seal(notes)
		if err != nil {
			return err
		}
		notes = sealed
	}
	const q = `
INSERT INTO person_contexts (tenant_id, user_id, target_user_id, notes, updated_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (tenant_id, user_id, target_user_id) DO UPDATE SET
  notes = EXCLUDED.notes, updated_at = EXCLUDED.updated_at;`
	_, err := execSQL(ctx, r.pool, nil, q, tenantID, userID, targetUserID, notes)
	return err
}
