// Package suggest generates reply suggestions for the hearing-impaired user
// from the live conversation transcript.
//
// A suggestion request combines three inputs: the transcript line that
// triggered it, the user's stored communication preferences, and the saved
// question most similar to the transcript (found via embedding search). The
// combined prompt goes to the LLM; if anything in the chain fails, a fixed
// fallback list is returned so the user is never left without options.
package suggest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/HowDiggy/signconnect/internal/observe"
	"github.com/HowDiggy/signconnect/internal/store"
	"github.com/HowDiggy/signconnect/pkg/provider/embeddings"
	"github.com/HowDiggy/signconnect/pkg/provider/llm"
	"github.com/HowDiggy/signconnect/pkg/types"
)

// MaxSuggestions is the most suggestions ever returned for one request.
const MaxSuggestions = 3

// requestTimeout bounds the whole suggestion chain (embedding, store lookups,
// LLM call) for a single request.
const requestTimeout = 15 * time.Second

// systemPrompt sets the assistant persona for every completion.
const systemPrompt = "You are an AI assistant helping a deaf or hard-of-hearing " +
	"person respond in a live spoken conversation. Based on what was just said " +
	"to them, their saved preferences, and their prepared answers, generate " +
	"exactly three short, natural-sounding responses they could give. Respond " +
	"with one suggestion per line, with no numbering or bullets."

// FallbackSuggestions is returned whenever suggestion generation fails.
func FallbackSuggestions() []string {
	return []string{"Yes", "No", "Can you repeat that?"}
}

// Requester generates suggestions. All fields are set at construction; a
// single Requester serves every connection.
type Requester struct {
	store    store.Store
	embedder embeddings.Provider
	llm      llm.Provider
	logger   *slog.Logger
	metrics  *observe.Metrics
}

// Option is a functional option for configuring the Requester.
type Option func(*Requester)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Requester) {
		r.logger = l
	}
}

// WithMetrics sets the metrics sink. Default: none.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Requester) {
		r.metrics = m
	}
}

// NewRequester returns a Requester. st, embedder, and provider are required.
func NewRequester(st store.Store, embedder embeddings.Provider, provider llm.Provider, opts ...Option) (*Requester, error) {
	if st == nil {
		return nil, fmt.Errorf("suggest: store is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("suggest: embeddings provider is required")
	}
	if provider == nil {
		return nil, fmt.Errorf("suggest: llm provider is required")
	}
	r := &Requester{
		store:    st,
		embedder: embedder,
		llm:      provider,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Suggestions generates up to MaxSuggestions replies for the given transcript
// line. history carries recent final transcript lines, oldest first, for
// conversational context. It never fails: every error path degrades to the
// fallback list.
func (r *Requester) Suggestions(ctx context.Context, userID uuid.UUID, transcript string, history []string) []string {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r.metrics != nil {
			r.metrics.SuggestionDuration.Record(ctx, time.Since(start).Seconds())
		}
	}()

	match := r.nearestQuestion(ctx, userID, transcript)
	prefs := r.preferences(ctx, userID)

	resp, err := r.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages: []types.Message{
			{Role: types.RoleUser, Content: buildPrompt(transcript, history, prefs, match)},
		},
		Temperature: 0.7,
		MaxTokens:   200,
	})
	if err != nil {
		r.logger.Warn("suggestion completion failed, using fallback", "error", err)
		r.metrics.RecordSuggestionFallback(ctx)
		return FallbackSuggestions()
	}

	suggestions := parseSuggestions(resp.Content)
	if len(suggestions) == 0 {
		r.logger.Warn("suggestion completion returned no usable lines, using fallback")
		r.metrics.RecordSuggestionFallback(ctx)
		return FallbackSuggestions()
	}
	return suggestions
}

// nearestQuestion embeds the transcript and finds the user's most similar
// saved question. Any failure degrades to no match.
func (r *Requester) nearestQuestion(ctx context.Context, userID uuid.UUID, transcript string) *store.SavedQuestion {
	embedStart := time.Now()
	vec, err := r.embedder.Embed(ctx, transcript)
	if r.metrics != nil {
		r.metrics.EmbeddingDuration.Record(ctx, time.Since(embedStart).Seconds())
	}
	if err != nil {
		r.logger.Warn("transcript embedding failed, skipping similarity search", "error", err)
		return nil
	}

	match, err := r.store.NearestQuestion(ctx, userID, vec)
	if err != nil {
		r.logger.Warn("similarity search failed", "error", err)
		return nil
	}
	return match
}

// preferences loads the user's preferences, degrading to none on error.
func (r *Requester) preferences(ctx context.Context, userID uuid.UUID) []store.Preference {
	prefs, err := r.store.ListPreferences(ctx, userID)
	if err != nil {
		r.logger.Warn("preference lookup failed", "error", err)
		return nil
	}
	return prefs
}

// buildPrompt assembles the user message: the transcript first, then
// conversation context, then preferences, then the matched prepared answer.
func buildPrompt(transcript string, history []string, prefs []store.Preference, match *store.SavedQuestion) string {
	var b strings.Builder

	fmt.Fprintf(&b, "The other person just said: %q\n", transcript)

	if len(history) > 0 {
		b.WriteString("\nEarlier in the conversation:\n")
		for _, line := range history {
			fmt.Fprintf(&b, "- %s\n", line)
		}
	}

	if len(prefs) > 0 {
		b.WriteString("\nMy communication preferences:\n")
		for _, p := range prefs {
			if p.Category != "" {
				fmt.Fprintf(&b, "- [%s] %s\n", p.Category, p.PreferenceText)
			} else {
				fmt.Fprintf(&b, "- %s\n", p.PreferenceText)
			}
		}
	}

	if match != nil {
		b.WriteString("\nI prepared for a similar question:\n")
		fmt.Fprintf(&b, "Question: %s\n", match.QuestionText)
		if match.UserAnswerText != "" {
			fmt.Fprintf(&b, "My prepared answer: %s\n", match.UserAnswerText)
		}
	}

	return b.String()
}

// parseSuggestions splits the model output into clean suggestion lines,
// stripping bullets and numbering, capped at MaxSuggestions.
func parseSuggestions(content string) []string {
	var out []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*• \t")
		line = trimNumbering(line)
		line = strings.Trim(line, `"`)
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) == MaxSuggestions {
			break
		}
	}
	return out
}

// trimNumbering strips a leading "1." or "1)" style prefix.
func trimNumbering(line string) string {
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i == 0 || i >= len(line) {
		return line
	}
	if line[i] == '.' || line[i] == ')' {
		return strings.TrimSpace(line[i+1:])
	}
	return line
}
