package auth

import (
	"context"
	"sync"

	"github.com/BlackMission/idpauth/internal/domain"
)

// Exchanger performs the backend token exchange for an IdP response.
type Exchanger interface {
	SignInWithIdp(ctx context.Context, req *domain.SignInWithIdpRequest) (*domain.IDTokenResponse, error)
}

// Config is the project configuration of an auth instance.
type Config struct {
	APIKey      string
	AuthDomain  string
	APIBaseURL  string
	RedirectURL string
	SDKVersion  string
}

// User is a signed-in account as seen by the auth instance.
type User struct {
	UID          string
	Email        string
	TenantID     string
	IDToken      string
	RefreshToken string
	ProviderIDs  []string
}

// Auth is one named auth instance. Operations take it explicitly; there is
// no process-global default.
type Auth struct {
	Name         string
	Config       Config
	LanguageCode string
	TenantID     string
	Exchanger    Exchanger

	mu          sync.RWMutex
	currentUser *User
}

// New creates an auth instance. An empty name selects the default app name.
func New(name string, cfg Config, ex Exchanger) *Auth {
	if name == "" {
		name = domain.DefaultAppName
	}
	if cfg.SDKVersion == "" {
		cfg.SDKVersion = domain.SDKVersion
	}
	return &Auth{Name: name, Config: cfg, Exchanger: ex}
}

// Validate checks the configuration needed to talk to the hosted widget.
func (a *Auth) Validate() error {
	if a.Config.AuthDomain == "" {
		return domain.NewAuthError(a.Name, domain.ErrMissingAuthDomain)
	}
	if a.Config.APIKey == "" {
		return domain.NewAuthError(a.Name, domain.ErrInvalidAPIKey)
	}
	return nil
}

// CurrentURL is the location the widget returns to.
func (a *Auth) CurrentURL() string {
	return a.Config.RedirectURL
}

// CurrentUser returns the signed-in user, or nil.
func (a *Auth) CurrentUser() *User {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.currentUser
}

// SetCurrentUser replaces the signed-in user.
func (a *Auth) SetCurrentUser(u *User) {
	a.mu.Lock()
	a.currentUser = u
	a.mu.Unlock()
}
