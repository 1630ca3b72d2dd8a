package widget

import (
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BlackMission/idpauth/internal/auth"
	"github.com/BlackMission/idpauth/internal/domain"
)

func newAuth() *auth.Auth {
	return auth.New("", auth.Config{
		APIKey:      "AIza-key",
		AuthDomain:  "proj.firebaseapp.com",
		RedirectURL: "http://localhost:3000/cb",
		SDKVersion:  "test/1.0",
	}, nil)
}

func TestBuild_OAuthProvider(t *testing.T) {
	a := newAuth()
	p := auth.NewOAuthProvider("google.com").AddScope("email").AddScope("profile")

	got, err := Build(a, p, domain.SignInViaPopup, "abc123")
	require.NoError(t, err)

	want := "https://proj.firebaseapp.com/__/auth/handler?" +
		"apiKey=AIza-key&appName=%5BDEFAULT%5D&authType=signInViaPopup" +
		"&redirectUrl=http%3A%2F%2Flocalhost%3A3000%2Fcb&v=test%2F1.0" +
		"&eventId=abc123&providerId=google.com&scopes=email%2Cprofile"
	assert.Equal(t, want, got)
}

func TestBuild_CustomParameters(t *testing.T) {
	a := newAuth()
	p := auth.NewOAuthProvider("google.com").
		SetCustomParameters(map[string]string{"prompt": "consent", "login_hint": "a@b.c"})

	got, err := Build(a, p, domain.LinkViaRedirect, "")
	require.NoError(t, err)

	u, err := url.Parse(got)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, `{"login_hint":"a@b.c","prompt":"consent"}`, q.Get("customParameters"))
	assert.False(t, q.Has("eventId"), "empty event id must be omitted")
	assert.False(t, q.Has("scopes"), "empty scopes must be omitted")
	assert.True(t, strings.HasSuffix(got, "customParameters="+url.QueryEscape(`{"login_hint":"a@b.c","prompt":"consent"}`)))
}

func TestBuild_NonOAuthProvider(t *testing.T) {
	a := newAuth()

	got, err := Build(a, auth.SimpleProvider{ID: "password"}, domain.ReauthViaPopup, "e1")
	require.NoError(t, err)

	u, err := url.Parse(got)
	require.NoError(t, err)
	q := u.Query()
	assert.False(t, q.Has("providerId"))
	assert.False(t, q.Has("scopes"))
	assert.False(t, q.Has("customParameters"))
	assert.Equal(t, "reauthViaPopup", q.Get("authType"))
}

func TestBuild_NoEmptyValues(t *testing.T) {
	a := newAuth()
	a.Config.RedirectURL = ""

	got, err := Build(a, auth.NewOAuthProvider("github.com"), domain.SignInViaRedirect, "")
	require.NoError(t, err)

	u, err := url.Parse(got)
	require.NoError(t, err)
	for key, values := range u.Query() {
		for _, v := range values {
			assert.NotEmpty(t, v, "key %s has empty value", key)
		}
	}
	assert.False(t, u.Query().Has("redirectUrl"))
}

func TestBuild_SetsDefaultLanguage(t *testing.T) {
	a := newAuth()
	a.LanguageCode = "fr"
	p := auth.NewOAuthProvider("google.com")

	_, err := Build(a, p, domain.SignInViaPopup, "e1")
	require.NoError(t, err)
	assert.Equal(t, "fr", p.DefaultLanguage())
}

func TestBuild_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  auth.Config
		want error
	}{
		{"missing auth domain", auth.Config{APIKey: "k"}, domain.ErrMissingAuthDomain},
		{"missing api key", auth.Config{AuthDomain: "d.example.com"}, domain.ErrInvalidAPIKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := auth.New("secondary", tt.cfg, nil)
			p := auth.NewOAuthProvider("google.com")
			a.LanguageCode = "de"

			_, err := Build(a, p, domain.SignInViaPopup, "e1")
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want))
			assert.True(t, errors.Is(err, domain.ErrConfiguration))

			var ae *domain.AuthError
			require.True(t, errors.As(err, &ae))
			assert.Equal(t, "secondary", ae.AppName)
			assert.Empty(t, p.DefaultLanguage(), "provider must not be touched on failure")
		})
	}
}

func TestParamsEncode_StableOrder(t *testing.T) {
	p := Params{
		CustomParameters: "{}",
		Scopes:           "a",
		ProviderID:       "p",
		EventID:          "e",
		Version:          "v1",
		RedirectURL:      "r",
		AuthType:         domain.SignInViaPopup,
		AppName:          "n",
		APIKey:           "k",
	}
	assert.Equal(t,
		"apiKey=k&appName=n&authType=signInViaPopup&redirectUrl=r&v=v1&eventId=e&providerId=p&scopes=a&customParameters=%7B%7D",
		p.Encode())
}
