// Package resolver opens widget popups, prepares redirects and owns the one
// channel auth events are received on.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/BlackMission/idpauth/internal/auth"
	"github.com/BlackMission/idpauth/internal/domain"
	"github.com/BlackMission/idpauth/internal/event"
	"github.com/BlackMission/idpauth/internal/handler"
	"github.com/BlackMission/idpauth/internal/logger"
	"github.com/BlackMission/idpauth/internal/metrics"
	"github.com/BlackMission/idpauth/internal/popup"
	"github.com/BlackMission/idpauth/internal/server"
	"github.com/BlackMission/idpauth/internal/widget"
)

// Channel is the inbound message channel of a resolver.
type Channel interface {
	Register(eventType string, h handler.MessageHandler) error
	AllowAuthDomain(authDomain string)
	URL() string
	Close(ctx context.Context) error
}

// ChannelOpener starts the channel for a, the first auth instance to need
// one.
type ChannelOpener func(ctx context.Context, a *auth.Auth) (Channel, error)

// ServerChannel opens loopback channels with cfg. The widget origin is taken
// from the auth instance.
func ServerChannel(cfg server.Config, deps server.Deps) ChannelOpener {
	return func(ctx context.Context, a *auth.Auth) (Channel, error) {
		c := cfg
		c.AuthDomain = a.Config.AuthDomain
		return server.Open(ctx, c, deps)
	}
}

// initKey is the singleflight key of the channel start.
const initKey = "channel"

type entry struct {
	manager *event.Manager
	channel Channel
}

// Resolver is the popup and redirect resolver. It is safe for concurrent use.
type Resolver struct {
	opener      popup.Opener
	openChannel ChannelOpener
	ids         *event.IDGenerator
	log         *zap.Logger
	metrics     *metrics.Metrics
	managerOpts []event.Option
	tracer      trace.Tracer

	group  singleflight.Group
	mu     sync.Mutex
	entry  *entry
	closed bool
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithOpener sets the popup opener.
func WithOpener(o popup.Opener) Option {
	return func(r *Resolver) { r.opener = o }
}

// WithChannelOpener sets how channels are started.
func WithChannelOpener(fn ChannelOpener) Option {
	return func(r *Resolver) { r.openChannel = fn }
}

// WithIDGenerator sets the generator used for popup window names.
func WithIDGenerator(g *event.IDGenerator) Option {
	return func(r *Resolver) { r.ids = g }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) { r.log = logger.OrNop(l) }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// WithManagerOptions passes options to every event manager created.
func WithManagerOptions(opts ...event.Option) Option {
	return func(r *Resolver) { r.managerOpts = append(r.managerOpts, opts...) }
}

// New creates a resolver. Without options it opens the system browser and a
// loopback channel on 127.0.0.1 with an ephemeral port.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		log:    zap.NewNop(),
		tracer: otel.Tracer("github.com/BlackMission/idpauth/internal/resolver"),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.opener == nil {
		r.opener = popup.NewBrowserOpener(popup.WithLogger(r.log))
	}
	if r.openChannel == nil {
		r.openChannel = ServerChannel(server.Config{Host: "127.0.0.1"}, server.Deps{Logger: r.log, Metrics: r.metrics})
	}
	if r.ids == nil {
		r.ids = event.NewIDGenerator()
	}
	return r
}

// OpenPopup builds the widget URL and opens it in a new window. URL errors
// are returned before any window is opened.
func (r *Resolver) OpenPopup(ctx context.Context, a *auth.Auth, p auth.Provider, t domain.AuthEventType, eventID string) (*popup.Popup, error) {
	ctx, span := r.tracer.Start(ctx, "resolver.OpenPopup", trace.WithAttributes(
		attribute.String("provider", p.ProviderID()),
		attribute.String("event_type", string(t)),
	))
	defer span.End()

	url, err := widget.Build(a, p, t, eventID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	pp, err := r.opener.Open(ctx, a.Name, url, r.ids.New())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	r.metrics.PopupOpened(p.ProviderID())
	return pp, nil
}

// RedirectURL returns the widget URL the current page should navigate to.
func (r *Resolver) RedirectURL(a *auth.Auth, p auth.Provider, t domain.AuthEventType, eventID string) (string, error) {
	url, err := widget.Build(a, p, t, eventID)
	if err != nil {
		return "", err
	}
	r.log.Debug("redirect prepared", logger.App(a.Name), logger.Provider(p.ProviderID()), logger.EventID(eventID))
	return url, nil
}

// Initialize returns the event manager of the resolver, starting its channel
// on first use. Every auth instance shares the one channel; a's auth domain
// is added to the origins it accepts. Concurrent callers share one channel
// start; a failed start is not remembered and the next call tries again.
func (r *Resolver) Initialize(ctx context.Context, a *auth.Auth) (*event.Manager, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	e, err := r.current(a)
	if err != nil {
		return nil, err
	}
	if e == nil {
		ch := r.group.DoChan(initKey, func() (any, error) {
			if e, err := r.current(a); e != nil || err != nil {
				return e, err
			}
			return r.initialize(context.WithoutCancel(ctx), a)
		})

		select {
		case res := <-ch:
			if res.Err != nil {
				return nil, res.Err
			}
			e = res.Val.(*entry)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	e.channel.AllowAuthDomain(a.Config.AuthDomain)
	return e.manager, nil
}

func (r *Resolver) initialize(ctx context.Context, a *auth.Auth) (*entry, error) {
	ctx, span := r.tracer.Start(ctx, "resolver.Initialize", trace.WithAttributes(attribute.String("app", a.Name)))
	defer span.End()

	ch, err := r.openChannel(ctx, a)
	r.metrics.ChannelInit(err == nil)
	if err != nil {
		if !errors.Is(err, domain.ErrChannelInit) {
			err = fmt.Errorf("%w: %v", domain.ErrChannelInit, err)
		}
		span.SetStatus(codes.Error, err.Error())
		r.log.Warn("channel init failed", logger.App(a.Name), zap.Error(err))
		return nil, domain.NewAuthError(a.Name, err)
	}

	m := event.NewManager(append([]event.Option{event.WithLogger(r.log), event.WithMetrics(r.metrics)}, r.managerOpts...)...)
	if err := ch.Register(domain.AuthEventMessageType, r.authEventHandler(m)); err != nil {
		r.closeChannel(ctx, ch)
		return nil, domain.NewAuthError(a.Name, fmt.Errorf("%w: %v", domain.ErrChannelInit, err))
	}

	e := &entry{manager: m, channel: ch}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.closeChannel(ctx, ch)
		return nil, domain.NewAuthError(a.Name, domain.ErrChannelClosed)
	}
	r.entry = e
	r.mu.Unlock()

	r.log.Info("channel initialized", logger.App(a.Name), zap.String("url", ch.URL()))
	return e, nil
}

func (r *Resolver) closeChannel(ctx context.Context, ch Channel) {
	if err := ch.Close(ctx); err != nil {
		r.log.Warn("channel close failed", zap.Error(err))
	}
}

// authEventHandler forwards auth events to m. Every message is
// acknowledged, whether or not it settled anything.
func (r *Resolver) authEventHandler(m *event.Manager) handler.MessageHandler {
	return func(ctx context.Context, msg *domain.Message) (any, error) {
		if msg.AuthEvent != nil {
			m.OnEvent(ctx, msg.AuthEvent)
		} else {
			r.log.Debug("auth event message without event")
		}
		r.metrics.MessageAcked(msg.EventType)
		return domain.NewAck(), nil
	}
}

// ChannelURL returns the base URL of the channel, or "" before Initialize.
func (r *Resolver) ChannelURL() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entry == nil {
		return ""
	}
	return r.entry.channel.URL()
}

// Close shuts the channel down. Operations still waiting fail with
// domain.ErrChannelClosed, and later calls to Initialize are refused.
func (r *Resolver) Close(ctx context.Context) error {
	r.mu.Lock()
	e := r.entry
	r.entry = nil
	r.closed = true
	r.mu.Unlock()

	if e == nil {
		return nil
	}
	if n := e.manager.CancelAll(domain.ErrChannelClosed); n > 0 {
		r.log.Info("pending events cancelled on close", zap.Int("count", n))
	}
	if err := e.channel.Close(ctx); err != nil {
		return fmt.Errorf("closing channel: %w", err)
	}
	return nil
}

// current returns the live entry, nil before the first start, or an error
// once the resolver is closed.
func (r *Resolver) current(a *auth.Auth) (*entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, domain.NewAuthError(a.Name, domain.ErrChannelClosed)
	}
	return r.entry, nil
}
