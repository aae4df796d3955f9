package suggest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/HowDiggy/signconnect/internal/store"
	"github.com/HowDiggy/signconnect/internal/store/memstore"
	embmock "github.com/HowDiggy/signconnect/pkg/provider/embeddings/mock"
	"github.com/HowDiggy/signconnect/pkg/provider/llm"
	llmmock "github.com/HowDiggy/signconnect/pkg/provider/llm/mock"
)

func TestParseSuggestions(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{
			name:    "plain lines",
			content: "A large, please.\nJust a medium.\nNothing for me, thanks.",
			want:    []string{"A large, please.", "Just a medium.", "Nothing for me, thanks."},
		},
		{
			name:    "numbered and bulleted",
			content: "1. Yes, that works.\n- No, thank you.\n2) Could you write it down?",
			want:    []string{"Yes, that works.", "No, thank you.", "Could you write it down?"},
		},
		{
			name:    "caps at three",
			content: "one\ntwo\nthree\nfour\nfive",
			want:    []string{"one", "two", "three"},
		},
		{
			name:    "blank lines skipped",
			content: "\n\nSure.\n\nMaybe later.\n",
			want:    []string{"Sure.", "Maybe later."},
		},
		{
			name:    "empty output",
			content: "   \n\n",
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseSuggestions(tt.content)
			if len(got) != len(tt.want) {
				t.Fatalf("parseSuggestions = %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("line %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestSuggestionsUsesPreparedAnswer(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	emb := &embmock.Provider{}

	user, err := st.GetOrCreateUser(ctx, "fb-1", "u@example.com", "u")
	if err != nil {
		t.Fatalf("GetOrCreateUser: %v", err)
	}

	sc := &store.Scenario{UserID: user.ID, Name: "coffee shop"}
	if err := st.CreateScenario(ctx, sc); err != nil {
		t.Fatalf("CreateScenario: %v", err)
	}

	// Pre-embed the saved question with the same deterministic embedder the
	// requester will use for the transcript.
	questionText := "How much does the coffee cost?"
	vec, err := emb.Embed(ctx, questionText)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	q := &store.SavedQuestion{
		ScenarioID:     sc.ID,
		QuestionText:   questionText,
		UserAnswerText: "I'll pay by card.",
		Embedding:      vec,
	}
	if err := st.CreateQuestion(ctx, user.ID, q); err != nil {
		t.Fatalf("CreateQuestion: %v", err)
	}

	pref := &store.Preference{UserID: user.ID, Category: "drinks", PreferenceText: "I prefer oat milk"}
	if err := st.CreatePreference(ctx, pref); err != nil {
		t.Fatalf("CreatePreference: %v", err)
	}

	provider := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: "I'll pay by card.\nHow much is a small one?\nDo you take cash?",
		},
	}

	r, err := NewRequester(st, emb, provider)
	if err != nil {
		t.Fatalf("NewRequester: %v", err)
	}

	got := r.Suggestions(ctx, user.ID, "How much will the coffee cost today?", []string{"Hi, what can I get you?"})
	if len(got) != 3 {
		t.Fatalf("Suggestions = %v, want 3 entries", got)
	}

	calls := provider.Calls()
	if len(calls) != 1 {
		t.Fatalf("LLM called %d times, want 1", len(calls))
	}
	prompt := calls[0].Req.Messages[0].Content
	for _, want := range []string{
		"How much will the coffee cost today?",
		"How much does the coffee cost?",
		"I'll pay by card.",
		"I prefer oat milk",
		"Hi, what can I get you?",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
	if calls[0].Req.SystemPrompt == "" {
		t.Error("system prompt not set")
	}
}

func TestSuggestionsFallbackOnLLMError(t *testing.T) {
	st := memstore.New()
	user, err := st.GetOrCreateUser(context.Background(), "fb-1", "u@example.com", "u")
	if err != nil {
		t.Fatalf("GetOrCreateUser: %v", err)
	}

	provider := &llmmock.Provider{CompleteErr: errors.New("model overloaded")}
	r, err := NewRequester(st, &embmock.Provider{}, provider)
	if err != nil {
		t.Fatalf("NewRequester: %v", err)
	}

	got := r.Suggestions(context.Background(), user.ID, "Anything else?", nil)
	want := FallbackSuggestions()
	if len(got) != len(want) {
		t.Fatalf("Suggestions = %v, want fallback %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("fallback[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSuggestionsFallbackOnEmptyCompletion(t *testing.T) {
	st := memstore.New()
	user, err := st.GetOrCreateUser(context.Background(), "fb-1", "u@example.com", "u")
	if err != nil {
		t.Fatalf("GetOrCreateUser: %v", err)
	}

	provider := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "  \n "}}
	r, err := NewRequester(st, &embmock.Provider{}, provider)
	if err != nil {
		t.Fatalf("NewRequester: %v", err)
	}

	got := r.Suggestions(context.Background(), user.ID, "Anything else?", nil)
	if len(got) != len(FallbackSuggestions()) {
		t.Errorf("Suggestions = %v, want fallback", got)
	}
}

func TestSuggestionsSurvivesEmbeddingFailure(t *testing.T) {
	st := memstore.New()
	user, err := st.GetOrCreateUser(context.Background(), "fb-1", "u@example.com", "u")
	if err != nil {
		t.Fatalf("GetOrCreateUser: %v", err)
	}

	emb := &embmock.Provider{EmbedErr: errors.New("embedding service down")}
	provider := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "Sure.\nNot today.\nMaybe."},
	}
	r, err := NewRequester(st, emb, provider)
	if err != nil {
		t.Fatalf("NewRequester: %v", err)
	}

	got := r.Suggestions(context.Background(), user.ID, "Would you like a receipt?", nil)
	if len(got) != 3 || got[0] != "Sure." {
		t.Errorf("Suggestions = %v, want LLM output despite embedding failure", got)
	}
}

func TestNewRequesterValidation(t *testing.T) {
	st := memstore.New()
	emb := &embmock.Provider{}
	provider := &llmmock.Provider{}

	if _, err := NewRequester(nil, emb, provider); err == nil {
		t.Error("NewRequester without store should fail")
	}
	if _, err := NewRequester(st, nil, provider); err == nil {
		t.Error("NewRequester without embedder should fail")
	}
	if _, err := NewRequester(st, emb, nil); err == nil {
		t.Error("NewRequester without llm should fail")
	}
}
