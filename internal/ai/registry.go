package ai

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

type ProviderFactory func(ctx context.Context, model string) (Provider, error)

// Registry resolves providers by backend name ("ollama", "openrouter",
// "ark"). Built providers are kept per (name, model), so the agents and the
// classifier share one client when they point at the same model.
type Registry struct {
	mu        sync.Mutex
	factories map[string]ProviderFactory
	built     map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]ProviderFactory),
		built:     make(map[string]Provider),
	}
}

func (r *Registry) Register(name string, f ProviderFactory) {
	name = normalizeName(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
	for k := range r.built {
		if strings.HasPrefix(k, name+"\x00") {
			delete(r.built, k)
		}
	}
}

// Get returns the provider for name and model. Factory errors are not
// remembered; the next call tries again.
func (r *Registry) Get(ctx context.Context, name string, model string) (Provider, error) {
	name = normalizeName(name)
	key := name + "\x00" + strings.TrimSpace(model)

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.built[key]; ok {
		return p, nil
	}
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown ai provider: %s", name)
	}
	p, err := f(ctx, model)
	if err != nil {
		return nil, err
	}
	r.built[key] = p
	return p, nil
}

func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
