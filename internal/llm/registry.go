package llm

import (
	"fmt"
	"log/slog"
	"sync"
)

// Registry holds the configured providers keyed by name. Characters pin a
// provider by name; unknown names fall back to the default so a character
// created against a since-removed provider still answers.
type Registry struct {
	mu          sync.RWMutex
	providers   map[string]Provider
	defaultName string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider. The first registered provider becomes the
// default until SetDefault overrides it.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.providers) == 0 {
		r.defaultName = p.Name()
	}
	r.providers[p.Name()] = p
}

// SetDefault picks the fallback provider by name.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[name]; !ok {
		return fmt.Errorf("provider %q is not registered", name)
	}
	r.defaultName = name
	return nil
}

// Resolve returns the provider registered under name, or the default when
// the name is empty or unknown.
func (r *Registry) Resolve(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.providers) == 0 {
		return nil, fmt.Errorf("%w: no providers are configured", ErrUnavailable)
	}
	if name == "" {
		return r.providers[r.defaultName], nil
	}
	if p, ok := r.providers[name]; ok {
		return p, nil
	}

	slog.Warn("requested provider not available, using default", "requested", name, "default", r.defaultName)
	return r.providers[r.defaultName], nil
}

// Names lists the registered provider names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}
