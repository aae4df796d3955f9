package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/HowDiggy/signconnect/internal/store"
)

// uniqueViolation is the Postgres error code for a unique constraint breach.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// CreateScenario implements store.Store.
func (s *Store) CreateScenario(ctx context.Context, sc *store.Scenario) error {
	const q = `
		INSERT INTO scenarios (user_id, name, description)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	err := s.pool.QueryRow(ctx, q, sc.UserID, sc.Name, sc.Description).
		Scan(&sc.ID, &sc.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("postgres store: create scenario %q: %w", sc.Name, store.ErrDuplicate)
		}
		return fmt.Errorf("postgres store: create scenario: %w", err)
	}
	return nil
}

// ListScenarios implements store.Store.
func (s *Store) ListScenarios(ctx context.Context, userID uuid.UUID) ([]store.Scenario, error) {
	const q = `
		SELECT id, user_id, name, description, created_at
		FROM scenarios
		WHERE user_id = $1
		ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list scenarios: %w", err)
	}
	defer rows.Close()

	var out []store.Scenario
	for rows.Next() {
		var sc store.Scenario
		if err := rows.Scan(&sc.ID, &sc.UserID, &sc.Name, &sc.Description, &sc.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres store: scan scenario: %w", err)
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres store: list scenarios: %w", err)
	}
	return out, nil
}

// UpdateScenario implements store.Store.
func (s *Store) UpdateScenario(ctx context.Context, userID uuid.UUID, sc *store.Scenario) error {
	const q = `
		UPDATE scenarios
		SET name = $1, description = $2
		WHERE id = $3 AND user_id = $4`

	tag, err := s.pool.Exec(ctx, q, sc.Name, sc.Description, sc.ID, userID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("postgres store: update scenario %q: %w", sc.Name, store.ErrDuplicate)
		}
		return fmt.Errorf("postgres store: update scenario: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeleteScenario implements store.Store. Questions in the scenario go with it
// via ON DELETE CASCADE.
func (s *Store) DeleteScenario(ctx context.Context, userID, scenarioID uuid.UUID) error {
	const q = `DELETE FROM scenarios WHERE id = $1 AND user_id = $2`

	tag, err := s.pool.Exec(ctx, q, scenarioID, userID)
	if err != nil {
		return fmt.Errorf("postgres store: delete scenario: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
