package adapter

import (
	"fmt"
	"sort"
	"sync"

	"github.com/devesh1104/Quinine-Testing-Environment/internal/config"
)

// Factory builds an adapter for one backend configuration.
type Factory func(cfg config.BackendConfig) (Adapter, error)

// Registry maps backend-kind tags to adapter factories. New backend
// kinds register a factory; the orchestration core never changes.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register installs a factory for a kind tag, replacing any previous
// registration for the same tag.
func (r *Registry) Register(kind string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = factory
}

// Create instantiates an adapter for the configured backend kind.
func (r *Registry) Create(cfg config.BackendConfig) (Adapter, error) {
	r.mu.RLock()
	factory, ok := r.factories[cfg.Kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("backend %q kind %q: %w", cfg.Name, cfg.Kind, ErrUnknownBackendKind)
	}
	return factory(cfg)
}

// Kinds returns the registered kind tags, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.factories))
	for kind := range r.factories {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// NewBuiltinRegistry returns a registry with every built-in provider
// adapter registered under its kind tag.
func NewBuiltinRegistry() *Registry {
	r := NewRegistry()
	r.Register("openai", func(cfg config.BackendConfig) (Adapter, error) {
		return NewOpenAI(cfg), nil
	})
	r.Register("anthropic", func(cfg config.BackendConfig) (Adapter, error) {
		return NewAnthropic(cfg), nil
	})
	r.Register("gemini", func(cfg config.BackendConfig) (Adapter, error) {
		return NewGemini(cfg), nil
	})
	r.Register("ollama", func(cfg config.BackendConfig) (Adapter, error) {
		return NewOllama(cfg), nil
	})
	r.Register("huggingface", func(cfg config.BackendConfig) (Adapter, error) {
		return NewHuggingFace(cfg), nil
	})
	return r
}
