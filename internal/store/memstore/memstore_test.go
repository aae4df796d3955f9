package memstore_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/HowDiggy/signconnect/internal/store"
	"github.com/HowDiggy/signconnect/internal/store/memstore"
)

func newUser(t *testing.T, s *memstore.Store, uid string) *store.User {
	t.Helper()
	u, err := s.GetOrCreateUser(context.Background(), uid, uid+"@example.com", uid)
	if err != nil {
		t.Fatalf("GetOrCreateUser: %v", err)
	}
	return u
}

func TestGetOrCreateUserIdempotent(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()

	first, err := s.GetOrCreateUser(ctx, "fb-123", "a@example.com", "alice")
	if err != nil {
		t.Fatalf("GetOrCreateUser: %v", err)
	}
	second, err := s.GetOrCreateUser(ctx, "fb-123", "ignored@example.com", "ignored")
	if err != nil {
		t.Fatalf("GetOrCreateUser (second): %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("second call created a new user: %s != %s", first.ID, second.ID)
	}
	if second.Email != "a@example.com" {
		t.Errorf("existing user mutated: email = %q", second.Email)
	}
}

func TestFindUserByEmail(t *testing.T) {
	s := memstore.New()
	u := newUser(t, s, "fb-1")

	got, err := s.FindUserByEmail(context.Background(), u.Email)
	if err != nil {
		t.Fatalf("FindUserByEmail: %v", err)
	}
	if got.ID != u.ID {
		t.Errorf("ID = %s, want %s", got.ID, u.ID)
	}

	if _, err := s.FindUserByEmail(context.Background(), "missing@example.com"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestScenarioCRUDIsUserScoped(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	owner := newUser(t, s, "fb-owner")
	other := newUser(t, s, "fb-other")

	sc := &store.Scenario{UserID: owner.ID, Name: "coffee shop", Description: "ordering"}
	if err := s.CreateScenario(ctx, sc); err != nil {
		t.Fatalf("CreateScenario: %v", err)
	}
	if sc.ID == uuid.Nil {
		t.Fatal("CreateScenario did not assign an ID")
	}

	list, err := s.ListScenarios(ctx, owner.ID)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListScenarios = %v, %v; want 1 scenario", list, err)
	}
	if list, _ := s.ListScenarios(ctx, other.ID); len(list) != 0 {
		t.Errorf("other user sees %d scenarios, want 0", len(list))
	}

	sc.Name = "cafe"
	if err := s.UpdateScenario(ctx, other.ID, sc); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("cross-user update err = %v, want ErrNotFound", err)
	}
	if err := s.UpdateScenario(ctx, owner.ID, sc); err != nil {
		t.Errorf("UpdateScenario: %v", err)
	}

	if err := s.DeleteScenario(ctx, other.ID, sc.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("cross-user delete err = %v, want ErrNotFound", err)
	}
	if err := s.DeleteScenario(ctx, owner.ID, sc.ID); err != nil {
		t.Errorf("DeleteScenario: %v", err)
	}
}

func TestQuestionOwnershipEnforced(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	owner := newUser(t, s, "fb-owner")
	other := newUser(t, s, "fb-other")

	sc := &store.Scenario{UserID: owner.ID, Name: "doctor"}
	if err := s.CreateScenario(ctx, sc); err != nil {
		t.Fatalf("CreateScenario: %v", err)
	}

	q := &store.SavedQuestion{
		ScenarioID:   sc.ID,
		QuestionText: "Any allergies?",
		Embedding:    []float32{1, 0, 0},
	}
	if err := s.CreateQuestion(ctx, other.ID, q); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("cross-user create err = %v, want ErrNotFound", err)
	}
	if err := s.CreateQuestion(ctx, owner.ID, q); err != nil {
		t.Fatalf("CreateQuestion: %v", err)
	}

	if list, _ := s.ListQuestions(ctx, other.ID, sc.ID); len(list) != 0 {
		t.Errorf("other user sees %d questions, want 0", len(list))
	}
	if err := s.DeleteQuestion(ctx, other.ID, q.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("cross-user delete err = %v, want ErrNotFound", err)
	}
}

func TestNearestQuestion(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	owner := newUser(t, s, "fb-owner")
	other := newUser(t, s, "fb-other")

	sc := &store.Scenario{UserID: owner.ID, Name: "coffee shop"}
	if err := s.CreateScenario(ctx, sc); err != nil {
		t.Fatalf("CreateScenario: %v", err)
	}
	otherSc := &store.Scenario{UserID: other.ID, Name: "coffee shop"}
	if err := s.CreateScenario(ctx, otherSc); err != nil {
		t.Fatalf("CreateScenario: %v", err)
	}

	questions := []store.SavedQuestion{
		{ScenarioID: sc.ID, QuestionText: "What size?", Embedding: []float32{1, 0, 0}},
		{ScenarioID: sc.ID, QuestionText: "For here or to go?", Embedding: []float32{0, 1, 0}},
	}
	for i := range questions {
		if err := s.CreateQuestion(ctx, owner.ID, &questions[i]); err != nil {
			t.Fatalf("CreateQuestion: %v", err)
		}
	}
	// A different user's question sits exactly on the query vector; tenant
	// isolation must keep it out of the results.
	decoy := store.SavedQuestion{ScenarioID: otherSc.ID, QuestionText: "decoy", Embedding: []float32{0.9, 0.1, 0}}
	if err := s.CreateQuestion(ctx, other.ID, &decoy); err != nil {
		t.Fatalf("CreateQuestion (decoy): %v", err)
	}

	got, err := s.NearestQuestion(ctx, owner.ID, []float32{0.9, 0.1, 0})
	if err != nil {
		t.Fatalf("NearestQuestion: %v", err)
	}
	if got == nil || got.QuestionText != "What size?" {
		t.Errorf("NearestQuestion = %+v, want %q", got, "What size?")
	}

	empty := newUser(t, s, "fb-empty")
	got, err = s.NearestQuestion(ctx, empty.ID, []float32{1, 0, 0})
	if err != nil || got != nil {
		t.Errorf("NearestQuestion with no data = %v, %v; want nil, nil", got, err)
	}
}

func TestNearestQuestionDeterministicOnTies(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	owner := newUser(t, s, "fb-owner")

	sc := &store.Scenario{UserID: owner.ID, Name: "coffee shop"}
	if err := s.CreateScenario(ctx, sc); err != nil {
		t.Fatalf("CreateScenario: %v", err)
	}

	// Identical embeddings: every question is equidistant from the query.
	for _, text := range []string{"What size?", "For here or to go?", "Anything else?"} {
		q := store.SavedQuestion{ScenarioID: sc.ID, QuestionText: text, Embedding: []float32{1, 0, 0}}
		if err := s.CreateQuestion(ctx, owner.ID, &q); err != nil {
			t.Fatalf("CreateQuestion: %v", err)
		}
	}

	first, err := s.NearestQuestion(ctx, owner.ID, []float32{1, 0, 0})
	if err != nil || first == nil {
		t.Fatalf("NearestQuestion = %v, %v", first, err)
	}
	for i := 0; i < 20; i++ {
		got, err := s.NearestQuestion(ctx, owner.ID, []float32{1, 0, 0})
		if err != nil || got == nil {
			t.Fatalf("NearestQuestion (repeat %d) = %v, %v", i, got, err)
		}
		if got.ID != first.ID {
			t.Fatalf("repeat %d returned %q, first call returned %q", i, got.QuestionText, first.QuestionText)
		}
	}
}

func TestPreferenceCRUD(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	u := newUser(t, s, "fb-1")

	p := &store.Preference{UserID: u.ID, Category: "drinks", PreferenceText: "oat milk"}
	if err := s.CreatePreference(ctx, p); err != nil {
		t.Fatalf("CreatePreference: %v", err)
	}

	list, err := s.ListPreferences(ctx, u.ID)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListPreferences = %v, %v; want 1", list, err)
	}

	p.PreferenceText = "soy milk"
	if err := s.UpdatePreference(ctx, u.ID, p); err != nil {
		t.Errorf("UpdatePreference: %v", err)
	}
	if err := s.DeletePreference(ctx, u.ID, p.ID); err != nil {
		t.Errorf("DeletePreference: %v", err)
	}
	if err := s.DeletePreference(ctx, u.ID, p.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("double delete err = %v, want ErrNotFound", err)
	}
}

func TestScenarioNameUniquePerUser(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	owner := newUser(t, s, "fb-1")
	other := newUser(t, s, "fb-2")

	if err := s.CreateScenario(ctx, &store.Scenario{UserID: owner.ID, Name: "coffee shop"}); err != nil {
		t.Fatalf("CreateScenario: %v", err)
	}
	err := s.CreateScenario(ctx, &store.Scenario{UserID: owner.ID, Name: "coffee shop"})
	if !errors.Is(err, store.ErrDuplicate) {
		t.Errorf("duplicate name err = %v, want ErrDuplicate", err)
	}

	// The same name is fine under a different user.
	if err := s.CreateScenario(ctx, &store.Scenario{UserID: other.ID, Name: "coffee shop"}); err != nil {
		t.Errorf("CreateScenario for other user: %v", err)
	}

	second := &store.Scenario{UserID: owner.ID, Name: "pharmacy"}
	if err := s.CreateScenario(ctx, second); err != nil {
		t.Fatalf("CreateScenario: %v", err)
	}
	second.Name = "coffee shop"
	if err := s.UpdateScenario(ctx, owner.ID, second); !errors.Is(err, store.ErrDuplicate) {
		t.Errorf("rename onto taken name err = %v, want ErrDuplicate", err)
	}
}
