// Package idpauth signs users in, links identities and reauthenticates with
// federated identity providers through the hosted auth widget.
package idpauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BlackMission/idpauth/internal/auth"
	"github.com/BlackMission/idpauth/internal/domain"
	"github.com/BlackMission/idpauth/internal/event"
	"github.com/BlackMission/idpauth/internal/idp"
	"github.com/BlackMission/idpauth/internal/logger"
	"github.com/BlackMission/idpauth/internal/metrics"
	"github.com/BlackMission/idpauth/internal/resolver"
	"github.com/BlackMission/idpauth/internal/server"
	"github.com/BlackMission/idpauth/internal/session"
)

const (
	defaultPopupTimeout = 5 * time.Minute
	healthTimeout       = 5 * time.Second
)

type (
	// UserCredential is the result of a completed operation.
	UserCredential = session.UserCredential
	// User is a signed-in account.
	User = auth.User
)

// Config holds the configuration of a Client.
type Config struct {
	Auth      *auth.Auth
	Providers *auth.Registry
	Resolver  *resolver.Resolver

	// PopupTimeout bounds how long an operation waits for its auth event.
	// On expiry the operation fails with domain.ErrPopupTimeout.
	PopupTimeout time.Duration

	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Client runs popup and redirect operations for one auth instance.
type Client struct {
	auth         *auth.Auth
	providers    *auth.Registry
	resolver     *resolver.Resolver
	ids          *event.IDGenerator
	popupTimeout time.Duration
	log          *zap.Logger
	tracer       trace.Tracer
	http         *http.Client
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	if cfg.Auth == nil {
		return nil, fmt.Errorf("%w: auth instance is required", domain.ErrMissingConfig)
	}
	log := logger.OrNop(cfg.Logger)
	timeout := cfg.PopupTimeout
	if timeout == 0 {
		timeout = defaultPopupTimeout
	}
	res := cfg.Resolver
	if res == nil {
		res = resolver.New(resolver.WithLogger(log), resolver.WithMetrics(cfg.Metrics))
	}
	providers := cfg.Providers
	if providers == nil {
		providers = auth.NewRegistry()
	}
	return &Client{
		auth:         cfg.Auth,
		providers:    providers,
		resolver:     res,
		ids:          event.NewIDGenerator(),
		popupTimeout: timeout,
		log:          log.With(logger.App(cfg.Auth.Name)),
		tracer:       otel.Tracer("github.com/BlackMission/idpauth/pkg/idpauth"),
		http:         &http.Client{Timeout: healthTimeout},
	}, nil
}

// Auth returns the auth instance the client operates on.
func (c *Client) Auth() *auth.Auth {
	return c.auth
}

// Provider returns a fresh provider configured under id.
func (c *Client) Provider(id string) (auth.Provider, error) {
	return c.providers.Get(id)
}

// Providers returns the configured provider ids.
func (c *Client) Providers() []string {
	return c.providers.Names()
}

// SignInWithPopup signs in with p in a popup window.
func (c *Client) SignInWithPopup(ctx context.Context, p auth.Provider) (*UserCredential, error) {
	return c.runPopup(ctx, p, domain.SignInViaPopup, nil)
}

// LinkWithPopup links the identity of p to u.
func (c *Client) LinkWithPopup(ctx context.Context, u *User, p auth.Provider) (*UserCredential, error) {
	return c.runPopup(ctx, p, domain.LinkViaPopup, u)
}

// ReauthenticateWithPopup proves again that the user signed in with p is u.
func (c *Client) ReauthenticateWithPopup(ctx context.Context, u *User, p auth.Provider) (*UserCredential, error) {
	return c.runPopup(ctx, p, domain.ReauthViaPopup, u)
}

// runPopup registers the event before the window opens so a fast reply
// cannot arrive unmatched.
func (c *Client) runPopup(ctx context.Context, p auth.Provider, t domain.AuthEventType, u *User) (*UserCredential, error) {
	ctx, span := c.tracer.Start(ctx, "idpauth."+string(t), trace.WithAttributes(
		attribute.String("provider", p.ProviderID()),
	))
	defer span.End()

	uc, err := c.popup(ctx, p, t, u)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.log.Warn("popup operation failed", logger.EventType(string(t)), logger.Provider(p.ProviderID()), zap.Error(err))
		return nil, err
	}
	c.log.Info("popup operation completed", logger.EventType(string(t)), logger.Provider(uc.ProviderID), zap.String("uid", uc.User.UID))
	return uc, nil
}

func (c *Client) popup(ctx context.Context, p auth.Provider, t domain.AuthEventType, u *User) (*UserCredential, error) {
	if err := c.requireUser(t, u); err != nil {
		return nil, err
	}

	m, err := c.resolver.Initialize(ctx, c.auth)
	if err != nil {
		return nil, err
	}

	pending, err := m.Register(c.ids.New(), t)
	if err != nil {
		return nil, domain.NewAuthError(c.auth.Name, err)
	}

	if _, err := c.resolver.OpenPopup(ctx, c.auth, p, t, pending.ID); err != nil {
		m.Cancel(pending.ID, err)
		return nil, err
	}

	data, err := c.await(ctx, m, pending)
	if err != nil {
		return nil, err
	}
	return c.dispatch(ctx, t, data, u)
}

// await waits for pending to settle. When ctx ends or the popup timeout
// fires first, the event is cancelled so it never outlives the operation.
// Closing the resolver settles it with domain.ErrChannelClosed.
func (c *Client) await(ctx context.Context, m *event.Manager, pending *event.Pending) (*domain.EventData, error) {
	waitCtx, cancel := context.WithTimeout(ctx, c.popupTimeout)
	defer cancel()

	select {
	case <-pending.Done():
	case <-waitCtx.Done():
		cause := domain.ErrPopupTimeout
		if err := ctx.Err(); err != nil {
			cause = fmt.Errorf("%w: %w", domain.ErrEventCancelled, err)
		}
		m.Cancel(pending.ID, domain.NewAuthError(c.auth.Name, cause))
	}
	data, err := pending.Wait(context.Background())
	var ae *domain.AuthError
	if errors.Is(err, domain.ErrChannelClosed) && !errors.As(err, &ae) {
		err = domain.NewAuthError(c.auth.Name, err)
	}
	return data, err
}

func (c *Client) dispatch(ctx context.Context, t domain.AuthEventType, data *domain.EventData, u *User) (*UserCredential, error) {
	task := idp.TaskFor(t)
	if task == nil {
		return nil, domain.NewAuthError(c.auth.Name, fmt.Errorf("%w: no task for event type %s", domain.ErrPrecondition, t))
	}
	return task(ctx, idp.ParamsFromEvent(c.auth, data, u))
}

func (c *Client) requireUser(t domain.AuthEventType, u *User) error {
	switch t {
	case domain.LinkViaPopup, domain.LinkViaRedirect, domain.ReauthViaPopup, domain.ReauthViaRedirect:
		if u == nil {
			return domain.NewAuthError(c.auth.Name, domain.ErrMissingUser)
		}
	}
	return nil
}

// ChannelURL is the base URL auth events are posted to, or "" before the
// first operation.
func (c *Client) ChannelURL() string {
	return c.resolver.ChannelURL()
}

// HealthCheck returns true if the channel is up and answering.
func (c *Client) HealthCheck(ctx context.Context) bool {
	base := c.ChannelURL()
	if base == "" {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+server.HealthPath, nil)
	if err != nil {
		return false
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	var data struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return false
	}
	return data.Status == "ok"
}

// Close releases the channel. Operations still waiting fail with
// domain.ErrChannelClosed.
func (c *Client) Close(ctx context.Context) error {
	c.http.CloseIdleConnections()
	return c.resolver.Close(ctx)
}
