package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BlackMission/idpauth/internal/auth"
	"github.com/BlackMission/idpauth/internal/domain"
)

// stubCredential returns a fixed response from every entry point and records
// the id token passed to LinkToIDToken.
type stubCredential struct {
	resp       *domain.IDTokenResponse
	err        error
	linkedWith string
}

func (s *stubCredential) ProviderID() string   { return "google.com" }
func (s *stubCredential) SignInMethod() string { return "google.com" }
func (s *stubCredential) IDTokenResponse(context.Context, *auth.Auth) (*domain.IDTokenResponse, error) {
	return s.resp, s.err
}
func (s *stubCredential) LinkToIDToken(_ context.Context, _ *auth.Auth, idToken string) (*domain.IDTokenResponse, error) {
	s.linkedWith = idToken
	return s.resp, s.err
}
func (s *stubCredential) ReauthenticationResponse(context.Context, *auth.Auth) (*domain.IDTokenResponse, error) {
	return s.resp, s.err
}

func idToken(t *testing.T, sub, email, tenant string) string {
	t.Helper()
	claims := jwt.MapClaims{"sub": sub, "email": email}
	if tenant != "" {
		claims["firebase"] = map[string]any{"tenant": tenant}
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func newAuth() *auth.Auth {
	return auth.New("app", auth.Config{APIKey: "k", AuthDomain: "d"}, nil)
}

func TestSignInWithCredential(t *testing.T) {
	a := newAuth()
	c := &stubCredential{resp: &domain.IDTokenResponse{
		IDToken:          idToken(t, "uid-1", "a@example.com", "tenant-1"),
		RefreshToken:     "refresh",
		ProviderID:       "google.com",
		IsNewUser:        true,
		OAuthAccessToken: "provider-access",
		OAuthIDToken:     "provider-id",
		OAuthExpireIn:    3600,
	}}

	uc, err := SignInWithCredential(context.Background(), a, c)
	require.NoError(t, err)

	assert.Equal(t, OperationSignIn, uc.OperationType)
	assert.Equal(t, "uid-1", uc.User.UID)
	assert.Equal(t, "a@example.com", uc.User.Email)
	assert.Equal(t, "tenant-1", uc.User.TenantID)
	assert.Equal(t, []string{"google.com"}, uc.User.ProviderIDs)
	assert.True(t, uc.IsNewUser)
	require.NotNil(t, uc.OAuthToken)
	assert.Equal(t, "provider-access", uc.OAuthToken.AccessToken)
	assert.Equal(t, "provider-id", uc.OAuthToken.Extra("id_token"))
	assert.WithinDuration(t, time.Now().Add(time.Hour), uc.OAuthToken.Expiry, time.Minute)

	assert.Same(t, uc.User, a.CurrentUser())
}

func TestSignInWithCredential_NoIDTokenUsesLocalID(t *testing.T) {
	a := newAuth()
	c := &stubCredential{resp: &domain.IDTokenResponse{LocalID: "uid-2"}}

	uc, err := SignInWithCredential(context.Background(), a, c)
	require.NoError(t, err)
	assert.Equal(t, "uid-2", uc.User.UID)
	assert.Nil(t, uc.OAuthToken)
}

func TestSignInWithCredential_MalformedIDToken(t *testing.T) {
	a := newAuth()
	c := &stubCredential{resp: &domain.IDTokenResponse{IDToken: "not-a-jwt"}}

	_, err := SignInWithCredential(context.Background(), a, c)
	assert.ErrorIs(t, err, domain.ErrBackend)
	assert.Nil(t, a.CurrentUser())
}

func TestSignInWithCredential_MultiFactor(t *testing.T) {
	a := newAuth()
	c := &stubCredential{resp: &domain.IDTokenResponse{
		MFAPendingCredential: "opaque",
		MFAInfo:              []domain.MFAInfo{{MFAEnrollmentID: "enr-1"}},
	}}

	_, err := SignInWithCredential(context.Background(), a, c)
	var mfa *domain.MultiFactorError
	require.True(t, errors.As(err, &mfa))
	assert.Equal(t, "opaque", mfa.PendingCredential)
	assert.Equal(t, "enr-1", mfa.Info[0].MFAEnrollmentID)
	assert.Nil(t, a.CurrentUser())
}

func TestSignInWithCredential_ExchangeError(t *testing.T) {
	a := newAuth()
	boom := errors.New("boom")
	_, err := SignInWithCredential(context.Background(), a, &stubCredential{err: boom})
	assert.ErrorIs(t, err, boom)
}

func TestLink(t *testing.T) {
	a := newAuth()
	u := &auth.User{UID: "uid-1", IDToken: "current", ProviderIDs: []string{"password"}, Email: "a@example.com"}
	a.SetCurrentUser(u)
	c := &stubCredential{resp: &domain.IDTokenResponse{LocalID: "uid-1", ProviderID: "google.com"}}

	uc, err := Link(context.Background(), a, u, c)
	require.NoError(t, err)

	assert.Equal(t, "current", c.linkedWith)
	assert.Equal(t, OperationLink, uc.OperationType)
	assert.Equal(t, []string{"password", "google.com"}, uc.User.ProviderIDs)
	assert.Equal(t, "a@example.com", uc.User.Email)
	assert.Same(t, uc.User, a.CurrentUser())
}

func TestLink_AlreadyLinked(t *testing.T) {
	a := newAuth()
	u := &auth.User{UID: "uid-1", ProviderIDs: []string{"google.com"}}
	c := &stubCredential{}

	_, err := Link(context.Background(), a, u, c)
	assert.ErrorIs(t, err, domain.ErrPrecondition)
	assert.Empty(t, c.linkedWith)
}

func TestReauthenticate(t *testing.T) {
	a := newAuth()
	u := &auth.User{UID: "uid-1"}
	c := &stubCredential{resp: &domain.IDTokenResponse{IDToken: idToken(t, "uid-1", "", "")}}

	uc, err := Reauthenticate(context.Background(), a, u, c)
	require.NoError(t, err)
	assert.Equal(t, OperationReauth, uc.OperationType)
}

func TestReauthenticate_UserMismatch(t *testing.T) {
	a := newAuth()
	u := &auth.User{UID: "uid-1"}
	c := &stubCredential{resp: &domain.IDTokenResponse{IDToken: idToken(t, "someone-else", "", "")}}

	_, err := Reauthenticate(context.Background(), a, u, c)
	assert.ErrorIs(t, err, domain.ErrUserMismatch)
	var ae *domain.AuthError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "app", ae.AppName)
}

func TestMissingUser(t *testing.T) {
	a := newAuth()
	c := &stubCredential{}

	_, err := Link(context.Background(), a, nil, c)
	assert.ErrorIs(t, err, domain.ErrMissingUser)
	_, err = Reauthenticate(context.Background(), a, nil, c)
	assert.ErrorIs(t, err, domain.ErrMissingUser)
}
