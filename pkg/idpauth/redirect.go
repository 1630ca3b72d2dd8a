package idpauth

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/BlackMission/idpauth/internal/auth"
	"github.com/BlackMission/idpauth/internal/domain"
	"github.com/BlackMission/idpauth/internal/event"
	"github.com/BlackMission/idpauth/internal/logger"
)

// Redirect is a started redirect operation. The caller navigates to URL and
// calls Complete once the widget has returned.
type Redirect struct {
	URL     string
	EventID string
	Type    domain.AuthEventType

	client  *Client
	manager *event.Manager
	pending *event.Pending
	user    *User

	once   sync.Once
	result *UserCredential
	err    error
}

// StartRedirect registers a redirect operation of type t with p. Link and
// reauthenticate types require u.
func (c *Client) StartRedirect(ctx context.Context, p auth.Provider, t domain.AuthEventType, u *User) (*Redirect, error) {
	if !t.IsRedirect() || t == domain.VerifyAppViaRedirect {
		return nil, domain.NewAuthError(c.auth.Name, fmt.Errorf("%w: %s is not a redirect operation", domain.ErrPrecondition, t))
	}
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

	url, err := c.resolver.RedirectURL(c.auth, p, t, pending.ID)
	if err != nil {
		m.Cancel(pending.ID, err)
		return nil, err
	}

	c.log.Info("redirect started", logger.EventID(pending.ID), logger.EventType(string(t)), logger.Provider(p.ProviderID()))
	return &Redirect{
		URL:     url,
		EventID: pending.ID,
		Type:    t,
		client:  c,
		manager: m,
		pending: pending,
		user:    u,
	}, nil
}

// Complete waits for the auth event of the redirect and finishes the
// operation. Later calls return the first result.
func (r *Redirect) Complete(ctx context.Context) (*UserCredential, error) {
	r.once.Do(func() {
		data, err := r.client.await(ctx, r.manager, r.pending)
		if err != nil {
			r.err = err
		} else {
			r.result, r.err = r.client.dispatch(ctx, r.Type, data, r.user)
		}
		if r.err != nil {
			r.client.log.Warn("redirect failed", logger.EventID(r.EventID), zap.Error(r.err))
		}
	})
	return r.result, r.err
}

// Cancel abandons the redirect. It reports whether the operation was still
// waiting.
func (r *Redirect) Cancel() bool {
	return r.manager.Cancel(r.EventID, domain.NewAuthError(r.client.auth.Name, domain.ErrEventCancelled))
}
