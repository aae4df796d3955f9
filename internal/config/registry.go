package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/HowDiggy/signconnect/pkg/provider/embeddings"
	"github.com/HowDiggy/signconnect/pkg/provider/llm"
	"github.com/HowDiggy/signconnect/pkg/provider/stt"
)

// ErrProviderNotRegistered is returned when a configured provider name has no
// registered factory.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// STTFactory builds a speech-to-text provider from its config entry.
type STTFactory func(entry ProviderEntry) (stt.Provider, error)

// LLMFactory builds an LLM provider from its config entry.
type LLMFactory func(entry ProviderEntry) (llm.Provider, error)

// EmbeddingsFactory builds an embeddings provider from its config entry.
type EmbeddingsFactory func(entry ProviderEntry) (embeddings.Provider, error)

// Registry maps provider names to constructors, one namespace per provider
// kind. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	stt        map[string]STTFactory
	llm        map[string]LLMFactory
	embeddings map[string]EmbeddingsFactory
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		stt:        make(map[string]STTFactory),
		llm:        make(map[string]LLMFactory),
		embeddings: make(map[string]EmbeddingsFactory),
	}
}

// RegisterSTT registers a speech-to-text provider factory under name.
func (r *Registry) RegisterSTT(name string, factory STTFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// RegisterLLM registers an LLM provider factory under name.
func (r *Registry) RegisterLLM(name string, factory LLMFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// RegisterEmbeddings registers an embeddings provider factory under name.
func (r *Registry) RegisterEmbeddings(name string, factory EmbeddingsFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embeddings[name] = factory
}

// CreateSTT builds the speech-to-text provider named by entry.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	factory, ok := r.stt[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt/%q", ErrProviderNotRegistered, entry.Name)
	}
	p, err := factory(entry)
	if err != nil {
		return nil, fmt.Errorf("config: create stt provider %q: %w", entry.Name, err)
	}
	return p, nil
}

// CreateLLM builds the LLM provider named by entry.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.llm[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm/%q", ErrProviderNotRegistered, entry.Name)
	}
	p, err := factory(entry)
	if err != nil {
		return nil, fmt.Errorf("config: create llm provider %q: %w", entry.Name, err)
	}
	return p, nil
}

// CreateEmbeddings builds the embeddings provider named by entry.
func (r *Registry) CreateEmbeddings(entry ProviderEntry) (embeddings.Provider, error) {
	r.mu.RLock()
	factory, ok := r.embeddings[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: embeddings/%q", ErrProviderNotRegistered, entry.Name)
	}
	p, err := factory(entry)
	if err != nil {
		return nil, fmt.Errorf("config: create embeddings provider %q: %w", entry.Name, err)
	}
	return p, nil
}
