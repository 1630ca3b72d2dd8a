// Package session finishes sign-in, link and reauthentication once a
// credential has been exchanged with the backend.
package session

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/BlackMission/idpauth/internal/auth"
	"github.com/BlackMission/idpauth/internal/credential"
	"github.com/BlackMission/idpauth/internal/domain"
)

// OperationType names what a UserCredential was produced by.
type OperationType string

const (
	OperationSignIn OperationType = "signIn"
	OperationLink   OperationType = "link"
	OperationReauth OperationType = "reauthenticate"
)

// UserCredential is the result of a completed operation.
type UserCredential struct {
	User          *auth.User
	ProviderID    string
	OperationType OperationType
	OAuthToken    *oauth2.Token
	IsNewUser     bool
}

type idTokenClaims struct {
	jwt.RegisteredClaims
	Email    string `json:"email,omitempty"`
	Firebase struct {
		Tenant         string `json:"tenant,omitempty"`
		SignInProvider string `json:"sign_in_provider,omitempty"`
	} `json:"firebase"`
}

var now = time.Now

// SignInWithCredential exchanges c and makes the resulting user current.
func SignInWithCredential(ctx context.Context, a *auth.Auth, c credential.Credential) (*UserCredential, error) {
	resp, err := c.IDTokenResponse(ctx, a)
	if err != nil {
		return nil, err
	}
	uc, err := newUserCredential(resp, c.ProviderID(), OperationSignIn, nil)
	if err != nil {
		return nil, err
	}
	a.SetCurrentUser(uc.User)
	return uc, nil
}

// Link attaches the identity of c to u.
func Link(ctx context.Context, a *auth.Auth, u *auth.User, c credential.Credential) (*UserCredential, error) {
	if u == nil {
		return nil, domain.NewAuthError(a.Name, domain.ErrMissingUser)
	}
	if slices.Contains(u.ProviderIDs, c.ProviderID()) {
		return nil, domain.NewAuthError(a.Name, fmt.Errorf("%w: provider %s already linked", domain.ErrPrecondition, c.ProviderID()))
	}
	resp, err := c.LinkToIDToken(ctx, a, u.IDToken)
	if err != nil {
		return nil, err
	}
	uc, err := newUserCredential(resp, c.ProviderID(), OperationLink, u)
	if err != nil {
		return nil, err
	}
	if cur := a.CurrentUser(); cur != nil && cur.UID == uc.User.UID {
		a.SetCurrentUser(uc.User)
	}
	return uc, nil
}

// Reauthenticate proves again that the holder of c is u.
func Reauthenticate(ctx context.Context, a *auth.Auth, u *auth.User, c credential.Credential) (*UserCredential, error) {
	if u == nil {
		return nil, domain.NewAuthError(a.Name, domain.ErrMissingUser)
	}
	resp, err := c.ReauthenticationResponse(ctx, a)
	if err != nil {
		return nil, err
	}
	uc, err := newUserCredential(resp, c.ProviderID(), OperationReauth, u)
	if err != nil {
		return nil, err
	}
	if uc.User.UID != u.UID {
		return nil, domain.NewAuthError(a.Name, domain.ErrUserMismatch)
	}
	return uc, nil
}

// newUserCredential builds the result from a token response. base, when
// set, is the user the operation applies to.
func newUserCredential(resp *domain.IDTokenResponse, providerID string, op OperationType, base *auth.User) (*UserCredential, error) {
	if resp.MFAPendingCredential != "" {
		return nil, &domain.MultiFactorError{
			PendingCredential: resp.MFAPendingCredential,
			Info:              resp.MFAInfo,
			Response:          resp,
		}
	}

	u, err := userFromResponse(resp)
	if err != nil {
		return nil, err
	}
	if base != nil {
		u.ProviderIDs = mergeProviders(base.ProviderIDs, u.ProviderIDs)
		if u.Email == "" {
			u.Email = base.Email
		}
	}
	if resp.ProviderID != "" {
		providerID = resp.ProviderID
	}
	if !slices.Contains(u.ProviderIDs, providerID) {
		u.ProviderIDs = append(u.ProviderIDs, providerID)
	}

	return &UserCredential{
		User:          u,
		ProviderID:    providerID,
		OperationType: op,
		OAuthToken:    oauthToken(resp),
		IsNewUser:     resp.IsNewUser,
	}, nil
}

func userFromResponse(resp *domain.IDTokenResponse) (*auth.User, error) {
	u := &auth.User{
		UID:          resp.LocalID,
		Email:        resp.Email,
		TenantID:     resp.TenantID,
		IDToken:      resp.IDToken,
		RefreshToken: resp.RefreshToken,
	}
	if resp.IDToken == "" {
		if u.UID == "" {
			return nil, fmt.Errorf("%w: response carries no user", domain.ErrBackend)
		}
		return u, nil
	}

	var claims idTokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(resp.IDToken, &claims); err != nil {
		return nil, fmt.Errorf("%w: malformed id token: %v", domain.ErrBackend, err)
	}
	if claims.Subject != "" {
		u.UID = claims.Subject
	}
	if claims.Email != "" {
		u.Email = claims.Email
	}
	if claims.Firebase.Tenant != "" {
		u.TenantID = claims.Firebase.Tenant
	}
	if u.UID == "" {
		return nil, fmt.Errorf("%w: id token has no subject", domain.ErrBackend)
	}
	return u, nil
}

func oauthToken(resp *domain.IDTokenResponse) *oauth2.Token {
	if resp.OAuthAccessToken == "" && resp.OAuthIDToken == "" {
		return nil
	}
	tok := &oauth2.Token{
		AccessToken: resp.OAuthAccessToken,
		TokenType:   "Bearer",
	}
	if resp.OAuthExpireIn > 0 {
		tok.Expiry = now().Add(time.Duration(resp.OAuthExpireIn) * time.Second)
	}
	extra := map[string]any{}
	if resp.OAuthIDToken != "" {
		extra["id_token"] = resp.OAuthIDToken
	}
	if resp.OAuthTokenSecret != "" {
		extra["oauth_token_secret"] = resp.OAuthTokenSecret
	}
	if len(extra) > 0 {
		tok = tok.WithExtra(extra)
	}
	return tok
}

func mergeProviders(a, b []string) []string {
	out := slices.Clone(a)
	for _, p := range b {
		if !slices.Contains(out, p) {
			out = append(out, p)
		}
	}
	return out
}
