package provider

import (
	"fmt"
	"sync"

	"github.com/cryptogate/gateway_service/internal/domain/entities"
	domainerrors "github.com/cryptogate/gateway_service/internal/domain/errors"
)

// Registry holds the enabled providers
type Registry struct {
	mu        sync.RWMutex
	providers map[entities.Provider]Provider
}

// NewRegistry creates a registry with the given providers
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[entities.Provider]Provider)}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register adds or replaces a provider
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns the provider by canonical name
func (r *Registry) Get(name entities.Provider) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domainerrors.ErrProviderNotFound, name)
	}
	return p, nil
}

// Lookup resolves a route slug such as "letsexchange"
func (r *Registry) Lookup(slug string) (Provider, error) {
	name, err := entities.ParseProvider(slug)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domainerrors.ErrProviderNotFound, slug)
	}
	return r.Get(name)
}

// All returns the enabled providers in display order
func (r *Registry) All() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Provider, 0, len(r.providers))
	for _, name := range entities.AllProviders {
		if p, ok := r.providers[name]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Names lists the enabled provider names
func (r *Registry) Names() []entities.Provider {
	all := r.All()
	out := make([]entities.Provider, len(all))
	for i, p := range all {
		out[i] = p.Name()
	}
	return out
}
