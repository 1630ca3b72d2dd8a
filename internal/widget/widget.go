// Package widget builds the URL of the hosted auth handler that conducts the
// IdP handshake in a popup or redirect.
package widget

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/BlackMission/idpauth/internal/auth"
	"github.com/BlackMission/idpauth/internal/domain"
)

// Path is the handler path under the auth domain.
const Path = "/__/auth/handler"

// Params is the flattened query of a widget URL.
type Params struct {
	APIKey           string
	AppName          string
	AuthType         domain.AuthEventType
	RedirectURL      string
	Version          string
	EventID          string
	ProviderID       string
	Scopes           string
	CustomParameters string
}

// Encode renders p as a query string. Keys keep a fixed order and empty
// values are left out.
func (p Params) Encode() string {
	fields := [...]struct{ key, value string }{
		{"apiKey", p.APIKey},
		{"appName", p.AppName},
		{"authType", string(p.AuthType)},
		{"redirectUrl", p.RedirectURL},
		{"v", p.Version},
		{"eventId", p.EventID},
		{"providerId", p.ProviderID},
		{"scopes", p.Scopes},
		{"customParameters", p.CustomParameters},
	}

	var b strings.Builder
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(f.key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(f.value))
	}
	return b.String()
}

// NewParams collects the widget parameters for a. OAuth providers get the
// instance language as their default language.
func NewParams(a *auth.Auth, p auth.Provider, t domain.AuthEventType, eventID string) (Params, error) {
	if err := a.Validate(); err != nil {
		return Params{}, err
	}

	params := Params{
		APIKey:      a.Config.APIKey,
		AppName:     a.Name,
		AuthType:    t,
		RedirectURL: a.CurrentURL(),
		Version:     a.Config.SDKVersion,
		EventID:     eventID,
	}

	if op, ok := p.(*auth.OAuthProvider); ok {
		op.SetDefaultLanguage(a.LanguageCode)
		params.ProviderID = op.ProviderID()
		if custom := op.CustomParameters(); len(custom) > 0 {
			raw, err := json.Marshal(custom)
			if err != nil {
				return Params{}, fmt.Errorf("encoding custom parameters: %w", err)
			}
			params.CustomParameters = string(raw)
		}
		if scopes := op.Scopes(); len(scopes) > 0 {
			params.Scopes = strings.Join(scopes, ",")
		}
	}

	return params, nil
}

// Build returns the widget URL for a sign-in, link or reauthentication of
// type t with provider p.
func Build(a *auth.Auth, p auth.Provider, t domain.AuthEventType, eventID string) (string, error) {
	params, err := NewParams(a, p, t, eventID)
	if err != nil {
		return "", err
	}
	return "https://" + a.Config.AuthDomain + Path + "?" + params.Encode(), nil
}
