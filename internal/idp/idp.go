// Package idp turns the result of a popup or redirect into a credential and
// runs the sign-in, link or reauthentication it was started for.
package idp

import (
	"context"
	"fmt"

	"github.com/BlackMission/idpauth/internal/auth"
	"github.com/BlackMission/idpauth/internal/credential"
	"github.com/BlackMission/idpauth/internal/domain"
	"github.com/BlackMission/idpauth/internal/session"
)

const providerID = "custom"

// TaskParams is the request context of one IdP round trip.
type TaskParams struct {
	Auth         *auth.Auth
	RequestURI   string
	SessionID    string
	TenantID     string
	PostBody     string
	PendingToken string
	User         *auth.User
}

// ParamsFromEvent builds task parameters from the data of a settled event.
func ParamsFromEvent(a *auth.Auth, data *domain.EventData, u *auth.User) TaskParams {
	p := TaskParams{Auth: a, User: u}
	if data != nil {
		p.RequestURI = data.URLResponse
		p.SessionID = data.SessionID
		p.TenantID = data.TenantID
		p.PostBody = data.PostBody
		p.PendingToken = data.PendingToken
	}
	return p
}

// Credential exchanges a live IdP response. It wraps request state, not
// portable tokens, so it does not implement credential.Serializable.
type Credential struct {
	params TaskParams
}

var _ credential.Credential = (*Credential)(nil)

// NewCredential wraps params.
func NewCredential(params TaskParams) *Credential {
	return &Credential{params: params}
}

func (c *Credential) ProviderID() string   { return providerID }
func (c *Credential) SignInMethod() string { return providerID }

func (c *Credential) IDTokenResponse(ctx context.Context, a *auth.Auth) (*domain.IDTokenResponse, error) {
	return credential.Exchange(ctx, a, c.request(""))
}

func (c *Credential) LinkToIDToken(ctx context.Context, a *auth.Auth, idToken string) (*domain.IDTokenResponse, error) {
	return credential.Exchange(ctx, a, c.request(idToken))
}

func (c *Credential) ReauthenticationResponse(ctx context.Context, a *auth.Auth) (*domain.IDTokenResponse, error) {
	return credential.Exchange(ctx, a, c.request(""))
}

// request builds a fresh exchange request on every call.
func (c *Credential) request(idToken string) *domain.SignInWithIdpRequest {
	req := &domain.SignInWithIdpRequest{
		RequestURI:        c.params.RequestURI,
		SessionID:         c.params.SessionID,
		TenantID:          c.params.TenantID,
		PendingToken:      c.params.PendingToken,
		IDToken:           idToken,
		ReturnSecureToken: true,
	}
	if c.params.PostBody != "" {
		body := c.params.PostBody
		req.PostBody = &body
	}
	return req
}

// Task completes one operation from its IdP parameters.
type Task func(ctx context.Context, params TaskParams) (*session.UserCredential, error)

// SignIn signs in with the IdP response.
func SignIn(ctx context.Context, params TaskParams) (*session.UserCredential, error) {
	if err := requireAuth(params); err != nil {
		return nil, err
	}
	return session.SignInWithCredential(ctx, params.Auth, NewCredential(params))
}

// Reauth reauthenticates params.User with the IdP response.
func Reauth(ctx context.Context, params TaskParams) (*session.UserCredential, error) {
	if err := requireAuth(params); err != nil {
		return nil, err
	}
	if params.User == nil {
		return nil, domain.NewAuthError(params.Auth.Name, domain.ErrMissingUser)
	}
	return session.Reauthenticate(ctx, params.Auth, params.User, NewCredential(params))
}

// Link links the IdP identity to params.User.
func Link(ctx context.Context, params TaskParams) (*session.UserCredential, error) {
	if err := requireAuth(params); err != nil {
		return nil, err
	}
	if params.User == nil {
		return nil, domain.NewAuthError(params.Auth.Name, domain.ErrMissingUser)
	}
	return session.Link(ctx, params.Auth, params.User, NewCredential(params))
}

func requireAuth(params TaskParams) error {
	if params.Auth == nil {
		return fmt.Errorf("%w: auth instance is required", domain.ErrMissingConfig)
	}
	return nil
}

// TaskFor returns the task that completes operations of type t, or nil for
// event types that carry no user operation.
func TaskFor(t domain.AuthEventType) Task {
	switch t {
	case domain.SignInViaPopup, domain.SignInViaRedirect:
		return SignIn
	case domain.LinkViaPopup, domain.LinkViaRedirect:
		return Link
	case domain.ReauthViaPopup, domain.ReauthViaRedirect:
		return Reauth
	default:
		return nil
	}
}
