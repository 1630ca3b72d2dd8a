package idp

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BlackMission/idpauth/internal/auth"
	"github.com/BlackMission/idpauth/internal/credential"
	"github.com/BlackMission/idpauth/internal/domain"
)

type fakeExchanger struct {
	calls []*domain.SignInWithIdpRequest
	resp  *domain.IDTokenResponse
}

func (f *fakeExchanger) SignInWithIdp(_ context.Context, req *domain.SignInWithIdpRequest) (*domain.IDTokenResponse, error) {
	f.calls = append(f.calls, req)
	return f.resp, nil
}

func newParams(ex *fakeExchanger) TaskParams {
	a := auth.New("my-app", auth.Config{APIKey: "k", AuthDomain: "d"}, ex)
	return TaskParams{
		Auth:         a,
		RequestURI:   "https://app/cb?code=1",
		SessionID:    "sess",
		TenantID:     "t1",
		PendingToken: "pending",
	}
}

func TestCredential_Requests(t *testing.T) {
	ex := &fakeExchanger{resp: &domain.IDTokenResponse{LocalID: "uid"}}
	p := newParams(ex)
	c := NewCredential(p)

	_, err := c.IDTokenResponse(context.Background(), p.Auth)
	require.NoError(t, err)
	_, err = c.LinkToIDToken(context.Background(), p.Auth, "user-token")
	require.NoError(t, err)
	_, err = c.ReauthenticationResponse(context.Background(), p.Auth)
	require.NoError(t, err)

	require.Len(t, ex.calls, 3)
	for _, req := range ex.calls {
		assert.Equal(t, "https://app/cb?code=1", req.RequestURI)
		assert.Equal(t, "sess", req.SessionID)
		assert.Equal(t, "t1", req.TenantID)
		assert.Equal(t, "pending", req.PendingToken)
		assert.Nil(t, req.PostBody, "empty post body must be sent as null")
		assert.True(t, req.ReturnSecureToken)
	}
	assert.Empty(t, ex.calls[0].IDToken)
	assert.Equal(t, "user-token", ex.calls[1].IDToken)
	assert.Empty(t, ex.calls[2].IDToken)

	// Each call builds its own request.
	assert.NotSame(t, ex.calls[0], ex.calls[2])
}

func TestCredential_PostBody(t *testing.T) {
	ex := &fakeExchanger{resp: &domain.IDTokenResponse{LocalID: "uid"}}
	p := newParams(ex)
	p.PostBody = "oauth_token=x"

	_, err := NewCredential(p).IDTokenResponse(context.Background(), p.Auth)
	require.NoError(t, err)
	require.NotNil(t, ex.calls[0].PostBody)
	assert.Equal(t, "oauth_token=x", *ex.calls[0].PostBody)
}

func TestCredential_NotSerializable(t *testing.T) {
	c := NewCredential(newParams(&fakeExchanger{}))
	assert.Equal(t, "custom", c.ProviderID())

	_, err := credential.ToJSON(c)
	assert.ErrorIs(t, err, domain.ErrUnsupported)
}

func TestSignIn(t *testing.T) {
	ex := &fakeExchanger{resp: &domain.IDTokenResponse{LocalID: "uid-1", ProviderID: "google.com"}}
	p := newParams(ex)

	uc, err := SignIn(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "uid-1", uc.User.UID)
	assert.Equal(t, "google.com", uc.ProviderID)
	assert.Equal(t, "uid-1", p.Auth.CurrentUser().UID)
}

func TestLinkAndReauth_RequireUser(t *testing.T) {
	for name, task := range map[string]Task{"link": Link, "reauth": Reauth} {
		t.Run(name, func(t *testing.T) {
			ex := &fakeExchanger{}
			_, err := task(context.Background(), newParams(ex))

			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrMissingUser)
			assert.ErrorIs(t, err, domain.ErrPrecondition)
			var ae *domain.AuthError
			require.True(t, errors.As(err, &ae))
			assert.Equal(t, "my-app", ae.AppName)
			assert.Empty(t, ex.calls, "no network call expected")
		})
	}
}

func TestTasks_RequireAuth(t *testing.T) {
	for name, task := range map[string]Task{"signin": SignIn, "link": Link, "reauth": Reauth} {
		t.Run(name, func(t *testing.T) {
			params := newParams(&fakeExchanger{})
			params.Auth = nil
			params.User = &auth.User{UID: "uid"}

			uc, err := task(context.Background(), params)
			assert.Nil(t, uc)
			assert.ErrorIs(t, err, domain.ErrMissingConfig)
			assert.ErrorIs(t, err, domain.ErrConfiguration)
		})
	}
}

func TestLink(t *testing.T) {
	ex := &fakeExchanger{resp: &domain.IDTokenResponse{LocalID: "uid-1"}}
	p := newParams(ex)
	p.User = &auth.User{UID: "uid-1", IDToken: "current-token"}

	uc, err := Link(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "current-token", ex.calls[0].IDToken)
	assert.Contains(t, uc.User.ProviderIDs, "custom")
}

func TestReauth(t *testing.T) {
	ex := &fakeExchanger{resp: &domain.IDTokenResponse{LocalID: "uid-1"}}
	p := newParams(ex)
	p.User = &auth.User{UID: "uid-1", IDToken: "current-token"}

	_, err := Reauth(context.Background(), p)
	require.NoError(t, err)
	assert.Empty(t, ex.calls[0].IDToken)
}

func TestTaskFor(t *testing.T) {
	same := func(a, b Task) bool {
		return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
	}
	assert.True(t, same(TaskFor(domain.SignInViaPopup), SignIn))
	assert.True(t, same(TaskFor(domain.SignInViaRedirect), SignIn))
	assert.True(t, same(TaskFor(domain.LinkViaPopup), Link))
	assert.True(t, same(TaskFor(domain.ReauthViaRedirect), Reauth))
	assert.Nil(t, TaskFor(domain.VerifyAppViaPopup))
	assert.Nil(t, TaskFor(domain.UnknownAuthEventType))
}

func TestParamsFromEvent(t *testing.T) {
	a := auth.New("app", auth.Config{}, nil)
	u := &auth.User{UID: "u"}
	p := ParamsFromEvent(a, &domain.EventData{
		URLResponse:  "https://app/cb",
		SessionID:    "s",
		PostBody:     "b",
		TenantID:     "t",
		PendingToken: "pt",
	}, u)

	assert.Equal(t, "https://app/cb", p.RequestURI)
	assert.Equal(t, "s", p.SessionID)
	assert.Equal(t, "b", p.PostBody)
	assert.Equal(t, "t", p.TenantID)
	assert.Equal(t, "pt", p.PendingToken)
	assert.Same(t, u, p.User)
	assert.Same(t, a, p.Auth)
}
