// Package mock provides a test double for the embeddings.Provider interface.
//
// The default behaviour embeds each text deterministically from its bytes, so
// identical texts always produce identical vectors and tests can exercise
// similarity search without a live backend.
package mock

import (
	"context"
	"sync"

	"github.com/HowDiggy/signconnect/pkg/provider/embeddings"
)

// DefaultDimensions is the vector length used when Dims is left zero.
const DefaultDimensions = 8

// Provider is a mock implementation of embeddings.Provider.
type Provider struct {
	mu sync.Mutex

	// Dims overrides the vector length. Zero means DefaultDimensions.
	Dims int

	// EmbedFunc, if non-nil, replaces the default deterministic embedding.
	EmbedFunc func(ctx context.Context, text string) ([]float32, error)

	// EmbedErr, if non-nil, is returned from Embed and EmbedBatch.
	EmbedErr error

	// EmbedCalls records every text passed to Embed or EmbedBatch.
	EmbedCalls []string
}

// Ensure Provider implements embeddings.Provider at compile time.
var _ embeddings.Provider = (*Provider)(nil)

// Embed returns a deterministic vector derived from the text bytes.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	p.EmbedCalls = append(p.EmbedCalls, text)
	fn, errOut := p.EmbedFunc, p.EmbedErr
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, text)
	}
	if errOut != nil {
		return nil, errOut
	}
	return p.vector(text), nil
}

// EmbedBatch embeds each text via the same deterministic function.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := p.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Dimensions returns the configured vector length.
func (p *Provider) Dimensions() int {
	if p.Dims > 0 {
		return p.Dims
	}
	return DefaultDimensions
}

// ModelID identifies the mock in logs.
func (p *Provider) ModelID() string { return "mock-embeddings" }

// Calls returns a snapshot of the embedded texts. Thread-safe.
func (p *Provider) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.EmbedCalls...)
}

// vector folds the text bytes into a fixed-length vector. Texts that share a
// long common prefix land close together under L2 distance, which is enough
// for similarity-search tests.
func (p *Provider) vector(text string) []float32 {
	dims := p.Dimensions()
	v := make([]float32, dims)
	for i, b := range []byte(text) {
		v[i%dims] += float32(b) / 255
	}
	return v
}
