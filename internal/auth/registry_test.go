package auth

import (
	"errors"
	"testing"

	"github.com/BlackMission/idpauth/internal/domain"
)

func TestRegisterAndGet(t *testing.T) {
	r := NewRegistry()

	if err := r.RegisterOAuth("google.com", []string{"email"}, nil); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	got, err := r.Get("google.com")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.ProviderID() != "google.com" {
		t.Errorf("expected 'google.com', got %q", got.ProviderID())
	}
	op, ok := got.(*OAuthProvider)
	if !ok {
		t.Fatalf("expected *OAuthProvider, got %T", got)
	}
	if s := op.Scopes(); len(s) != 1 || s[0] != "email" {
		t.Errorf("unexpected scopes: %v", s)
	}
}

func TestGetReturnsFreshProvider(t *testing.T) {
	r := NewRegistry()
	r.RegisterOAuth("google.com", nil, map[string]string{"prompt": "consent"})

	a, _ := r.Get("google.com")
	b, _ := r.Get("google.com")
	a.(*OAuthProvider).SetDefaultLanguage("fr")

	if b.(*OAuthProvider).DefaultLanguage() != "" {
		t.Error("expected providers not to share state")
	}
	if b.(*OAuthProvider).CustomParameters()["prompt"] != "consent" {
		t.Error("expected custom parameters to be set")
	}
}

func TestUnknownProvider(t *testing.T) {
	r := NewRegistry()

	_, err := r.Get("unknown")
	if !errors.Is(err, domain.ErrProviderNotFound) {
		t.Errorf("expected ErrProviderNotFound, got %v", err)
	}
}

func TestDuplicateProvider(t *testing.T) {
	r := NewRegistry()

	if err := r.Register("password", func() Provider { return SimpleProvider{ID: "password"} }); err != nil {
		t.Fatalf("first Register error: %v", err)
	}

	err := r.Register("password", func() Provider { return SimpleProvider{ID: "password"} })
	if !errors.Is(err, domain.ErrDuplicateProvider) {
		t.Errorf("expected ErrDuplicateProvider, got %v", err)
	}
}

func TestNames(t *testing.T) {
	r := NewRegistry()
	r.RegisterOAuth("google.com", nil, nil)
	r.RegisterOAuth("github.com", nil, nil)

	names := r.Names()
	if len(names) != 2 {
		t.Fatalf("expected 2 names, got %d", len(names))
	}
	if names[0] != "github.com" || names[1] != "google.com" {
		t.Errorf("expected sorted names, got %v", names)
	}
}

func TestAddScopeDeduplicates(t *testing.T) {
	p := NewOAuthProvider("google.com").AddScope("a").AddScope("b").AddScope("a").AddScope("")

	if s := p.Scopes(); len(s) != 2 || s[0] != "a" || s[1] != "b" {
		t.Errorf("expected [a b], got %v", s)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want error
	}{
		{"ok", Config{APIKey: "k", AuthDomain: "d"}, nil},
		{"missing domain", Config{APIKey: "k"}, domain.ErrMissingAuthDomain},
		{"missing key", Config{AuthDomain: "d"}, domain.ErrInvalidAPIKey},
		{"both missing", Config{}, domain.ErrMissingAuthDomain},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := New("my-app", tt.cfg, nil)
			err := a.Validate()
			if tt.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if !errors.Is(err, domain.ErrConfiguration) {
				t.Errorf("expected configuration class, got %v", err)
			}
			var ae *domain.AuthError
			if !errors.As(err, &ae) || ae.AppName != "my-app" {
				t.Errorf("expected AuthError naming my-app, got %v", err)
			}
		})
	}
}

func TestNewDefaults(t *testing.T) {
	a := New("", Config{}, nil)
	if a.Name != domain.DefaultAppName {
		t.Errorf("expected default app name, got %q", a.Name)
	}
	if a.Config.SDKVersion != domain.SDKVersion {
		t.Errorf("expected default sdk version, got %q", a.Config.SDKVersion)
	}
}

func TestCurrentUser(t *testing.T) {
	a := New("app", Config{}, nil)
	if a.CurrentUser() != nil {
		t.Fatal("expected no user")
	}
	a.SetCurrentUser(&User{UID: "u1"})
	if a.CurrentUser().UID != "u1" {
		t.Errorf("expected u1, got %q", a.CurrentUser().UID)
	}
}
