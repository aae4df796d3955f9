package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlUsers = `
CREATE TABLE IF NOT EXISTS users (
    id            UUID         PRIMARY KEY DEFAULT gen_random_uuid(),
    firebase_uid  TEXT         NOT NULL UNIQUE,
    email         TEXT         NOT NULL UNIQUE,
    username      TEXT         NOT NULL DEFAULT '',
    created_at    TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_users_email ON users (email);
`

const ddlScenarios = `
CREATE TABLE IF NOT EXISTS scenarios (
    id           UUID         PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id      UUID         NOT NULL REFERENCES users (id) ON DELETE CASCADE,
    name         TEXT         NOT NULL,
    description  TEXT         NOT NULL DEFAULT '',
    created_at   TIMESTAMPTZ  NOT NULL DEFAULT now(),
    UNIQUE (user_id, name)
);

CREATE INDEX IF NOT EXISTS idx_scenarios_user_id ON scenarios (user_id);
`

const ddlScenarioQuestions = `
CREATE TABLE IF NOT EXISTS scenario_questions (
    id                UUID         PRIMARY KEY DEFAULT gen_random_uuid(),
    scenario_id       UUID         NOT NULL REFERENCES scenarios (id) ON DELETE CASCADE,
    question_text     TEXT         NOT NULL,
    user_answer_text  TEXT         NOT NULL DEFAULT '',
    embedding         VECTOR(%d),
    created_at        TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_scenario_questions_scenario_id
    ON scenario_questions (scenario_id);
`

const ddlPreferences = `
CREATE TABLE IF NOT EXISTS preferences (
    id               UUID         PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id          UUID         NOT NULL REFERENCES users (id) ON DELETE CASCADE,
    category         TEXT         NOT NULL DEFAULT '',
    preference_text  TEXT         NOT NULL,
    created_at       TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_preferences_user_id ON preferences (user_id);
`

// Migrate ensures the pgvector extension and all tables exist.
// embeddingDimensions fixes the width of the question embedding column.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	if embeddingDimensions <= 0 {
		return fmt.Errorf("migrate: embeddingDimensions must be positive, got %d", embeddingDimensions)
	}

	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		ddlUsers,
		ddlScenarios,
		fmt.Sprintf(ddlScenarioQuestions, embeddingDimensions),
		ddlPreferences,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
