package auth

import (
	"fmt"
	"sort"

	"github.com/BlackMission/idpauth/internal/domain"
)

// Factory builds a fresh provider value for one request.
type Factory func() Provider

// Registry maps provider ids to factories. Providers are handed out fresh
// per request since building a widget URL mutates OAuth providers.
type Registry struct {
	providers map[string]Factory
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Factory),
	}
}

// Register adds a provider factory under id.
func (r *Registry) Register(id string, f Factory) error {
	if _, exists := r.providers[id]; exists {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateProvider, id)
	}
	r.providers[id] = f
	return nil
}

// RegisterOAuth registers an OAuth provider with fixed scopes and parameters.
func (r *Registry) RegisterOAuth(id string, scopes []string, params map[string]string) error {
	return r.Register(id, func() Provider {
		p := NewOAuthProvider(id)
		for _, s := range scopes {
			p.AddScope(s)
		}
		if len(params) > 0 {
			p.SetCustomParameters(params)
		}
		return p
	})
}

// Get returns a new provider value for id.
func (r *Registry) Get(id string) (Provider, error) {
	f, ok := r.providers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrProviderNotFound, id)
	}
	return f(), nil
}

// Names returns the registered provider ids, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
