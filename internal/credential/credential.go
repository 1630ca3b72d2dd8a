// Package credential defines the capabilities of auth credentials consumed by
// the sign-in, link and reauthenticate paths.
package credential

import (
	"context"
	"fmt"

	"github.com/BlackMission/idpauth/internal/auth"
	"github.com/BlackMission/idpauth/internal/domain"
)

// Credential can be exchanged with the backend for a token response.
type Credential interface {
	ProviderID() string
	SignInMethod() string
	IDTokenResponse(ctx context.Context, a *auth.Auth) (*domain.IDTokenResponse, error)
	LinkToIDToken(ctx context.Context, a *auth.Auth, idToken string) (*domain.IDTokenResponse, error)
	ReauthenticationResponse(ctx context.Context, a *auth.Auth) (*domain.IDTokenResponse, error)
}

// Serializable is implemented by credentials that can be persisted.
type Serializable interface {
	ToJSON() ([]byte, error)
}

// ToJSON serializes c, or fails with domain.ErrNotSerializable when c holds
// a live request context instead of portable state.
func ToJSON(c Credential) ([]byte, error) {
	s, ok := c.(Serializable)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotSerializable, c.ProviderID())
	}
	return s.ToJSON()
}

// Exchange sends req through the exchanger of a.
func Exchange(ctx context.Context, a *auth.Auth, req *domain.SignInWithIdpRequest) (*domain.IDTokenResponse, error) {
	if a.Exchanger == nil {
		return nil, domain.NewAuthError(a.Name, fmt.Errorf("%w: no token exchanger", domain.ErrConfiguration))
	}
	return a.Exchanger.SignInWithIdp(ctx, req)
}
