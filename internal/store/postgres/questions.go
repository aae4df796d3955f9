package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/HowDiggy/signconnect/internal/store"
)

// CreateQuestion implements store.Store. The INSERT joins through scenarios
// so that a question can only land in a scenario the user owns; an INSERT
// that matches no scenario affects zero rows and maps to ErrNotFound.
func (s *Store) CreateQuestion(ctx context.Context, userID uuid.UUID, q *store.SavedQuestion) error {
	const query = `
		INSERT INTO scenario_questions (scenario_id, question_text, user_answer_text, embedding)
		SELECT sc.id, $2, $3, $4
		FROM scenarios sc
		WHERE sc.id = $1 AND sc.user_id = $5
		RETURNING id, created_at`

	err := s.pool.QueryRow(ctx, query,
		q.ScenarioID, q.QuestionText, q.UserAnswerText, embeddingArg(q.Embedding), userID,
	).Scan(&q.ID, &q.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("postgres store: create question: %w", err)
	}
	return nil
}

// ListQuestions implements store.Store.
func (s *Store) ListQuestions(ctx context.Context, userID, scenarioID uuid.UUID) ([]store.SavedQuestion, error) {
	const q = `
		SELECT sq.id, sq.scenario_id, sq.question_text, sq.user_answer_text, sq.embedding, sq.created_at
		FROM scenario_questions sq
		JOIN scenarios sc ON sc.id = sq.scenario_id
		WHERE sq.scenario_id = $1 AND sc.user_id = $2
		ORDER BY sq.created_at`

	rows, err := s.pool.Query(ctx, q, scenarioID, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list questions: %w", err)
	}
	defer rows.Close()

	var out []store.SavedQuestion
	for rows.Next() {
		sq, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres store: scan question: %w", err)
		}
		out = append(out, sq)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres store: list questions: %w", err)
	}
	return out, nil
}

// UpdateQuestion implements store.Store.
func (s *Store) UpdateQuestion(ctx context.Context, userID uuid.UUID, q *store.SavedQuestion) error {
	const query = `
		UPDATE scenario_questions sq
		SET question_text = $1, user_answer_text = $2, embedding = $3
		FROM scenarios sc
		WHERE sq.id = $4 AND sq.scenario_id = sc.id AND sc.user_id = $5`

	tag, err := s.pool.Exec(ctx, query,
		q.QuestionText, q.UserAnswerText, embeddingArg(q.Embedding), q.ID, userID)
	if err != nil {
		return fmt.Errorf("postgres store: update question: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeleteQuestion implements store.Store.
func (s *Store) DeleteQuestion(ctx context.Context, userID, questionID uuid.UUID) error {
	const q = `
		DELETE FROM scenario_questions sq
		USING scenarios sc
		WHERE sq.id = $1 AND sq.scenario_id = sc.id AND sc.user_id = $2`

	tag, err := s.pool.Exec(ctx, q, questionID, userID)
	if err != nil {
		return fmt.Errorf("postgres store: delete question: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// NearestQuestion implements store.Store. The join through scenarios keeps
// the search inside the requesting user's data; <-> is pgvector's L2
// distance operator.
func (s *Store) NearestQuestion(ctx context.Context, userID uuid.UUID, embedding []float32) (*store.SavedQuestion, error) {
	const q = `
		SELECT sq.id, sq.scenario_id, sq.question_text, sq.user_answer_text, sq.embedding, sq.created_at
		FROM scenario_questions sq
		JOIN scenarios sc ON sc.id = sq.scenario_id
		WHERE sc.user_id = $1 AND sq.embedding IS NOT NULL
		ORDER BY sq.embedding <-> $2
		LIMIT 1`

	row := s.pool.QueryRow(ctx, q, userID, pgvector.NewVector(embedding))
	sq, err := scanQuestion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres store: nearest question: %w", err)
	}
	return &sq, nil
}

// scanQuestion scans one scenario_questions row, unwrapping the nullable
// embedding column.
func scanQuestion(row pgx.Row) (store.SavedQuestion, error) {
	var (
		sq  store.SavedQuestion
		vec *pgvector.Vector
	)
	if err := row.Scan(&sq.ID, &sq.ScenarioID, &sq.QuestionText, &sq.UserAnswerText, &vec, &sq.CreatedAt); err != nil {
		return store.SavedQuestion{}, err
	}
	if vec != nil {
		sq.Embedding = vec.Slice()
	}
	return sq, nil
}

// embeddingArg converts an optional embedding into a query argument, mapping
// an absent embedding to SQL NULL.
func embeddingArg(embedding []float32) any {
	if len(embedding) == 0 {
		return nil
	}
	return pgvector.NewVector(embedding)
}
