package auth

import (
	"maps"
	"slices"
)

// Provider identifies an identity provider.
type Provider interface {
	ProviderID() string
}

// SimpleProvider is a provider without OAuth configuration (password,
// phone, ...). The widget only learns the operation type for these.
type SimpleProvider struct {
	ID string
}

func (p SimpleProvider) ProviderID() string { return p.ID }

// OAuthProvider is an OAuth-style provider with scopes and custom
// parameters forwarded to the widget.
//
// An OAuthProvider is request-scoped: building a widget URL sets its
// default language, so a value must not be shared across concurrent
// requests.
type OAuthProvider struct {
	id               string
	scopes           []string
	customParameters map[string]string
	defaultLanguage  string
}

// NewOAuthProvider creates an OAuth provider with the given provider id.
func NewOAuthProvider(providerID string) *OAuthProvider {
	return &OAuthProvider{id: providerID}
}

func (p *OAuthProvider) ProviderID() string { return p.id }

// AddScope appends a scope unless it is already requested.
func (p *OAuthProvider) AddScope(scope string) *OAuthProvider {
	if scope != "" && !slices.Contains(p.scopes, scope) {
		p.scopes = append(p.scopes, scope)
	}
	return p
}

// Scopes returns a copy of the requested scopes.
func (p *OAuthProvider) Scopes() []string {
	return slices.Clone(p.scopes)
}

// SetCustomParameters replaces the custom OAuth parameters.
func (p *OAuthProvider) SetCustomParameters(params map[string]string) *OAuthProvider {
	p.customParameters = maps.Clone(params)
	return p
}

// CustomParameters returns a copy of the custom OAuth parameters.
func (p *OAuthProvider) CustomParameters() map[string]string {
	return maps.Clone(p.customParameters)
}

// SetDefaultLanguage sets the language the provider page should use when no
// explicit locale parameter is given.
func (p *OAuthProvider) SetDefaultLanguage(lang string) {
	p.defaultLanguage = lang
}

// DefaultLanguage returns the language set by SetDefaultLanguage.
func (p *OAuthProvider) DefaultLanguage() string {
	return p.defaultLanguage
}
