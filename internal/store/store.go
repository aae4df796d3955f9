// Package store defines the persistence layer for SignConnect user data:
// users, conversation scenarios, saved questions with embeddings, and
// communication preferences.
//
// Every read and write is scoped to the owning user. Saved questions hang off
// scenarios, so question queries join through the scenarios table to enforce
// ownership; a user can never see or match another user's questions.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when the requested row does not exist or is not
// owned by the requesting user. The two cases are deliberately
// indistinguishable to callers.
var ErrNotFound = errors.New("store: not found")

// ErrDuplicate is returned when an insert or update would violate a
// uniqueness rule, such as two scenarios with the same name for one user.
var ErrDuplicate = errors.New("store: duplicate")

// User is a registered SignConnect user.
type User struct {
	ID          uuid.UUID
	FirebaseUID string
	Email       string
	Username    string
	CreatedAt   time.Time
}

// Scenario groups saved questions around a recurring conversational context,
// such as "ordering at a coffee shop" or "doctor appointment".
type Scenario struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Name        string
	Description string
	CreatedAt   time.Time
}

// SavedQuestion is a question the user expects to hear in a scenario, paired
// with their prepared answer. Embedding is the vector of QuestionText in the
// embedding model's space; it drives similarity matching against live
// transcripts.
type SavedQuestion struct {
	ID             uuid.UUID
	ScenarioID     uuid.UUID
	QuestionText   string
	UserAnswerText string
	Embedding      []float32
	CreatedAt      time.Time
}

// Preference is a free-text communication preference, e.g. "I prefer oat
// milk" or "please speak slowly". Category is an optional grouping label.
type Preference struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	Category       string
	PreferenceText string
	CreatedAt      time.Time
}

// Store is the persistence abstraction used by the websocket and suggestion
// layers. Implementations must be safe for concurrent use.
type Store interface {
	// GetOrCreateUser resolves a verified identity to a user row, creating
	// it on first contact. The operation is atomic: concurrent first
	// contacts for the same firebaseUID yield the same row.
	GetOrCreateUser(ctx context.Context, firebaseUID, email, username string) (*User, error)

	// FindUserByEmail returns the user with the given email, or ErrNotFound.
	FindUserByEmail(ctx context.Context, email string) (*User, error)

	// CreateScenario inserts a scenario owned by s.UserID and fills in the
	// generated ID and CreatedAt. Scenario names are unique per user;
	// returns ErrDuplicate when the name is taken.
	CreateScenario(ctx context.Context, s *Scenario) error

	// ListScenarios returns all scenarios owned by userID, newest first.
	ListScenarios(ctx context.Context, userID uuid.UUID) ([]Scenario, error)

	// UpdateScenario updates the name and description of a scenario owned by
	// userID. Returns ErrNotFound if no such scenario exists for that user,
	// or ErrDuplicate if the new name collides with another scenario.
	UpdateScenario(ctx context.Context, userID uuid.UUID, s *Scenario) error

	// DeleteScenario deletes a scenario owned by userID together with its
	// questions. Returns ErrNotFound if no such scenario exists.
	DeleteScenario(ctx context.Context, userID, scenarioID uuid.UUID) error

	// CreateQuestion inserts a saved question into a scenario owned by
	// userID and fills in the generated ID and CreatedAt. Returns
	// ErrNotFound if the scenario does not belong to that user.
	CreateQuestion(ctx context.Context, userID uuid.UUID, q *SavedQuestion) error

	// ListQuestions returns all questions in a scenario owned by userID.
	ListQuestions(ctx context.Context, userID, scenarioID uuid.UUID) ([]SavedQuestion, error)

	// UpdateQuestion updates the text, answer, and embedding of a question
	// in a scenario owned by userID. Returns ErrNotFound when the question
	// is missing or owned by someone else.
	UpdateQuestion(ctx context.Context, userID uuid.UUID, q *SavedQuestion) error

	// DeleteQuestion removes a question from a scenario owned by userID.
	DeleteQuestion(ctx context.Context, userID, questionID uuid.UUID) error

	// CreatePreference inserts a preference owned by p.UserID and fills in
	// the generated ID and CreatedAt.
	CreatePreference(ctx context.Context, p *Preference) error

	// ListPreferences returns all preferences owned by userID, newest first.
	ListPreferences(ctx context.Context, userID uuid.UUID) ([]Preference, error)

	// UpdatePreference updates the category and text of a preference owned
	// by userID. Returns ErrNotFound if no such preference exists.
	UpdatePreference(ctx context.Context, userID uuid.UUID, p *Preference) error

	// DeletePreference removes a preference owned by userID.
	DeletePreference(ctx context.Context, userID, preferenceID uuid.UUID) error

	// NearestQuestion returns the saved question across all of userID's
	// scenarios whose embedding is closest to the query embedding by L2
	// distance, or (nil, nil) when the user has no embedded questions.
	NearestQuestion(ctx context.Context, userID uuid.UUID, embedding []float32) (*SavedQuestion, error)
}
