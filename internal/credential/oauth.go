package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"github.com/BlackMission/idpauth/internal/auth"
	"github.com/BlackMission/idpauth/internal/domain"
)

const oauthRequestURI = "http://localhost"

// OAuthCredential carries tokens already obtained from an OAuth provider. It
// is portable and can be serialized.
type OAuthCredential struct {
	Provider string
	Method   string
	IDToken  string
	Token    *oauth2.Token
	Nonce    string
}

type oauthCredentialJSON struct {
	ProviderID   string `json:"providerId"`
	SignInMethod string `json:"signInMethod"`
	IDToken      string `json:"idToken,omitempty"`
	AccessToken  string `json:"accessToken,omitempty"`
	Nonce        string `json:"nonce,omitempty"`
}

// NewOAuthCredential creates a credential from provider tokens. Either
// idToken or the access token of tok must be set.
func NewOAuthCredential(providerID, idToken string, tok *oauth2.Token) (*OAuthCredential, error) {
	if idToken == "" && (tok == nil || tok.AccessToken == "") {
		return nil, fmt.Errorf("%w: id token or access token required", domain.ErrInvalidConfig)
	}
	return &OAuthCredential{Provider: providerID, Method: providerID, IDToken: idToken, Token: tok}, nil
}

// OAuthCredentialFromJSON restores a credential written by ToJSON.
func OAuthCredentialFromJSON(data []byte) (*OAuthCredential, error) {
	var raw oauthCredentialJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding credential: %w", err)
	}
	if raw.ProviderID == "" {
		return nil, fmt.Errorf("decoding credential: missing providerId")
	}
	c := &OAuthCredential{
		Provider: raw.ProviderID,
		Method:   raw.SignInMethod,
		IDToken:  raw.IDToken,
		Nonce:    raw.Nonce,
	}
	if raw.AccessToken != "" {
		c.Token = &oauth2.Token{AccessToken: raw.AccessToken}
	}
	return c, nil
}

func (c *OAuthCredential) ProviderID() string   { return c.Provider }
func (c *OAuthCredential) SignInMethod() string { return c.Method }

// ToJSON serializes the credential.
func (c *OAuthCredential) ToJSON() ([]byte, error) {
	raw := oauthCredentialJSON{
		ProviderID:   c.Provider,
		SignInMethod: c.Method,
		IDToken:      c.IDToken,
		Nonce:        c.Nonce,
	}
	if c.Token != nil {
		raw.AccessToken = c.Token.AccessToken
	}
	return json.Marshal(raw)
}

func (c *OAuthCredential) IDTokenResponse(ctx context.Context, a *auth.Auth) (*domain.IDTokenResponse, error) {
	return Exchange(ctx, a, c.request(a, ""))
}

func (c *OAuthCredential) LinkToIDToken(ctx context.Context, a *auth.Auth, idToken string) (*domain.IDTokenResponse, error) {
	return Exchange(ctx, a, c.request(a, idToken))
}

func (c *OAuthCredential) ReauthenticationResponse(ctx context.Context, a *auth.Auth) (*domain.IDTokenResponse, error) {
	return Exchange(ctx, a, c.request(a, ""))
}

func (c *OAuthCredential) request(a *auth.Auth, idToken string) *domain.SignInWithIdpRequest {
	body := c.postBody()
	return &domain.SignInWithIdpRequest{
		RequestURI:        oauthRequestURI,
		PostBody:          &body,
		TenantID:          a.TenantID,
		IDToken:           idToken,
		ReturnSecureToken: true,
	}
}

// postBody renders the provider tokens as a form body with a fixed key order.
func (c *OAuthCredential) postBody() string {
	fields := [...]struct{ key, value string }{
		{"id_token", c.IDToken},
		{"access_token", c.accessToken()},
		{"nonce", c.Nonce},
		{"providerId", c.Provider},
	}
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if f.value != "" {
			parts = append(parts, f.key+"="+url.QueryEscape(f.value))
		}
	}
	return strings.Join(parts, "&")
}

func (c *OAuthCredential) accessToken() string {
	if c.Token == nil {
		return ""
	}
	return c.Token.AccessToken
}
