package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/HowDiggy/signconnect/internal/store"
)

// CreatePreference implements store.Store.
func (s *Store) CreatePreference(ctx context.Context, p *store.Preference) error {
	const q = `
		INSERT INTO preferences (user_id, category, preference_text)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	err := s.pool.QueryRow(ctx, q, p.UserID, p.Category, p.PreferenceText).
		Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres store: create preference: %w", err)
	}
	return nil
}

// ListPreferences implements store.Store.
func (s *Store) ListPreferences(ctx context.Context, userID uuid.UUID) ([]store.Preference, error) {
	const q = `
		SELECT id, user_id, category, preference_text, created_at
		FROM preferences
		WHERE user_id = $1
		ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list preferences: %w", err)
	}
	defer rows.Close()

	var out []store.Preference
	for rows.Next() {
		var p store.Preference
		if err := rows.Scan(&p.ID, &p.UserID, &p.Category, &p.PreferenceText, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres store: scan preference: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres store: list preferences: %w", err)
	}
	return out, nil
}

// UpdatePreference implements store.Store.
func (s *Store) UpdatePreference(ctx context.Context, userID uuid.UUID, p *store.Preference) error {
	const q = `
		UPDATE preferences
		SET category = $1, preference_text = $2
		WHERE id = $3 AND user_id = $4`

	tag, err := s.pool.Exec(ctx, q, p.Category, p.PreferenceText, p.ID, userID)
	if err != nil {
		return fmt.Errorf("postgres store: update preference: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeletePreference implements store.Store.
func (s *Store) DeletePreference(ctx context.Context, userID, preferenceID uuid.UUID) error {
	const q = `DELETE FROM preferences WHERE id = $1 AND user_id = $2`

	tag, err := s.pool.Exec(ctx, q, preferenceID, userID)
	if err != nil {
		return fmt.Errorf("postgres store: delete preference: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
