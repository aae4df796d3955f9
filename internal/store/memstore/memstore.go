// Package memstore provides an in-memory implementation of store.Store.
//
// It mirrors the PostgreSQL implementation's semantics, including tenant
// scoping and L2 nearest-neighbour search, and is intended for unit tests
// and local development without a database.
package memstore

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/HowDiggy/signconnect/internal/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is a mutex-guarded in-memory store.Store implementation.
type Store struct {
	mu          sync.RWMutex
	users       map[uuid.UUID]store.User
	byFirebase  map[string]uuid.UUID
	scenarios   map[uuid.UUID]store.Scenario
	questions   map[uuid.UUID]store.SavedQuestion
	preferences map[uuid.UUID]store.Preference
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		users:       make(map[uuid.UUID]store.User),
		byFirebase:  make(map[string]uuid.UUID),
		scenarios:   make(map[uuid.UUID]store.Scenario),
		questions:   make(map[uuid.UUID]store.SavedQuestion),
		preferences: make(map[uuid.UUID]store.Preference),
	}
}

// GetOrCreateUser implements store.Store.
func (s *Store) GetOrCreateUser(ctx context.Context, firebaseUID, email, username string) (*store.User, error) {
	if firebaseUID == "" {
		return nil, errors.New("memstore: firebaseUID must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byFirebase[firebaseUID]; ok {
		u := s.users[id]
		return &u, nil
	}

	u := store.User{
		ID:          uuid.New(),
		FirebaseUID: firebaseUID,
		Email:       email,
		Username:    username,
		CreatedAt:   time.Now(),
	}
	s.users[u.ID] = u
	s.byFirebase[firebaseUID] = u.ID
	return &u, nil
}

// FindUserByEmail implements store.Store.
func (s *Store) FindUserByEmail(ctx context.Context, email string) (*store.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Email == email {
			u := u
			return &u, nil
		}
	}
	return nil, store.ErrNotFound
}

// CreateScenario implements store.Store.
func (s *Store) CreateScenario(ctx context.Context, sc *store.Scenario) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scenarioNameTaken(sc.UserID, sc.Name, uuid.Nil) {
		return store.ErrDuplicate
	}
	sc.ID = uuid.New()
	sc.CreatedAt = time.Now()
	s.scenarios[sc.ID] = *sc
	return nil
}

// ListScenarios implements store.Store.
func (s *Store) ListScenarios(ctx context.Context, userID uuid.UUID) ([]store.Scenario, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.Scenario
	for _, sc := range s.scenarios {
		if sc.UserID == userID {
			out = append(out, sc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// UpdateScenario implements store.Store.
func (s *Store) UpdateScenario(ctx context.Context, userID uuid.UUID, sc *store.Scenario) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.scenarios[sc.ID]
	if !ok || existing.UserID != userID {
		return store.ErrNotFound
	}
	if s.scenarioNameTaken(userID, sc.Name, sc.ID) {
		return store.ErrDuplicate
	}
	existing.Name = sc.Name
	existing.Description = sc.Description
	s.scenarios[sc.ID] = existing
	return nil
}

// scenarioNameTaken reports whether userID already has a scenario named name,
// ignoring the scenario with ID exclude. Callers must hold the lock.
func (s *Store) scenarioNameTaken(userID uuid.UUID, name string, exclude uuid.UUID) bool {
	for _, sc := range s.scenarios {
		if sc.UserID == userID && sc.Name == name && sc.ID != exclude {
			return true
		}
	}
	return false
}

// DeleteScenario implements store.Store.
func (s *Store) DeleteScenario(ctx context.Context, userID, scenarioID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, ok := s.scenarios[scenarioID]
	if !ok || sc.UserID != userID {
		return store.ErrNotFound
	}
	delete(s.scenarios, scenarioID)
	for id, q := range s.questions {
		if q.ScenarioID == scenarioID {
			delete(s.questions, id)
		}
	}
	return nil
}

// CreateQuestion implements store.Store.
func (s *Store) CreateQuestion(ctx context.Context, userID uuid.UUID, q *store.SavedQuestion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, ok := s.scenarios[q.ScenarioID]
	if !ok || sc.UserID != userID {
		return store.ErrNotFound
	}
	q.ID = uuid.New()
	q.CreatedAt = time.Now()
	s.questions[q.ID] = *q
	return nil
}

// ListQuestions implements store.Store.
func (s *Store) ListQuestions(ctx context.Context, userID, scenarioID uuid.UUID) ([]store.SavedQuestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sc, ok := s.scenarios[scenarioID]
	if !ok || sc.UserID != userID {
		return nil, nil
	}

	var out []store.SavedQuestion
	for _, q := range s.questions {
		if q.ScenarioID == scenarioID {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// UpdateQuestion implements store.Store.
func (s *Store) UpdateQuestion(ctx context.Context, userID uuid.UUID, q *store.SavedQuestion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.questions[q.ID]
	if !ok {
		return store.ErrNotFound
	}
	sc, ok := s.scenarios[existing.ScenarioID]
	if !ok || sc.UserID != userID {
		return store.ErrNotFound
	}
	existing.QuestionText = q.QuestionText
	existing.UserAnswerText = q.UserAnswerText
	existing.Embedding = q.Embedding
	s.questions[q.ID] = existing
	return nil
}

// DeleteQuestion implements store.Store.
func (s *Store) DeleteQuestion(ctx context.Context, userID, questionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.questions[questionID]
	if !ok {
		return store.ErrNotFound
	}
	sc, ok := s.scenarios[q.ScenarioID]
	if !ok || sc.UserID != userID {
		return store.ErrNotFound
	}
	delete(s.questions, questionID)
	return nil
}

// CreatePreference implements store.Store.
func (s *Store) CreatePreference(ctx context.Context, p *store.Preference) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	s.preferences[p.ID] = *p
	return nil
}

// ListPreferences implements store.Store.
func (s *Store) ListPreferences(ctx context.Context, userID uuid.UUID) ([]store.Preference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.Preference
	for _, p := range s.preferences {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// UpdatePreference implements store.Store.
func (s *Store) UpdatePreference(ctx context.Context, userID uuid.UUID, p *store.Preference) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.preferences[p.ID]
	if !ok || existing.UserID != userID {
		return store.ErrNotFound
	}
	existing.Category = p.Category
	existing.PreferenceText = p.PreferenceText
	s.preferences[p.ID] = existing
	return nil
}

// DeletePreference implements store.Store.
func (s *Store) DeletePreference(ctx context.Context, userID, preferenceID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.preferences[preferenceID]
	if !ok || p.UserID != userID {
		return store.ErrNotFound
	}
	delete(s.preferences, preferenceID)
	return nil
}

// NearestQuestion implements store.Store using exact L2 distance over the
// user's embedded questions.
func (s *Store) NearestQuestion(ctx context.Context, userID uuid.UUID, embedding []float32) (*store.SavedQuestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		best     *store.SavedQuestion
		bestDist float64
	)
	for _, q := range s.questions {
		if len(q.Embedding) == 0 {
			continue
		}
		sc, ok := s.scenarios[q.ScenarioID]
		if !ok || sc.UserID != userID {
			continue
		}
		d := l2Distance(embedding, q.Embedding)
		if best == nil || d < bestDist || (d == bestDist && createdBefore(q, *best)) {
			q := q
			best = &q
			bestDist = d
		}
	}
	return best, nil
}

// createdBefore orders equidistant questions by creation time, then ID, so a
// search over unchanged data always returns the same row regardless of map
// iteration order.
func createdBefore(a, b store.SavedQuestion) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID.String() < b.ID.String()
}

// l2Distance computes the Euclidean distance between two vectors. Mismatched
// lengths compare over the shorter prefix.
func l2Distance(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
