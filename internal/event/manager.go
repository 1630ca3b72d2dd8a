// Package event correlates inbound auth events with the operations waiting
// for them.
package event

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BlackMission/idpauth/internal/domain"
	"github.com/BlackMission/idpauth/internal/logger"
	"github.com/BlackMission/idpauth/internal/metrics"
)

const defaultSettledTTL = 10 * time.Minute

// Manager holds the pending events of one channel. The registry is changed
// only by Register (insert), a matching OnEvent (remove), Cancel (remove)
// and CancelAll (clear).
type Manager struct {
	mu      sync.Mutex
	pending map[string]*Pending

	// issued holds every id ever registered; an id is accepted once.
	issued map[string]struct{}

	// settled remembers recently completed ids so redeliveries can be told
	// apart from strays.
	settled    *gocache.Cache
	settledTTL time.Duration

	log     *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.log = logger.OrNop(l) }
}

// WithMetrics sets the metrics sink.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithSettledTTL sets how long settled ids are remembered.
func WithSettledTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.settledTTL = ttl
		}
	}
}

// NewManager creates an empty event manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		pending:    make(map[string]*Pending),
		issued:     make(map[string]struct{}),
		settledTTL: defaultSettledTTL,
		log:        zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.settled = gocache.New(m.settledTTL, m.settledTTL)
	return m
}

// SetNow overrides the time function (for testing).
func (m *Manager) SetNow(fn func() time.Time) {
	m.now = fn
}

// Register adds a pending event for id. The id must be new: an id this
// manager has registered before is rejected, pending or settled.
func (m *Manager) Register(id string, t domain.AuthEventType) (*Pending, error) {
	if id == "" {
		return nil, domain.ErrMissingEventID
	}

	m.mu.Lock()
	if _, seen := m.issued[id]; seen {
		m.mu.Unlock()
		return nil, domain.ErrDuplicateEvent
	}
	p := newPending(id, t, m.now())
	m.issued[id] = struct{}{}
	m.pending[id] = p
	m.mu.Unlock()

	m.metrics.EventRegistered(string(t))
	m.log.Debug("event registered", logger.EventID(id), logger.EventType(string(t)))
	return p, nil
}

// OnEvent delivers an inbound auth event. It reports whether the event
// settled a pending operation. Events that match nothing leave the registry
// untouched; an "unknown" outcome is informational and keeps the entry
// pending.
func (m *Manager) OnEvent(ctx context.Context, ev *domain.AuthEvent) bool {
	if ev == nil {
		return false
	}

	m.mu.Lock()
	p, ok := m.pending[ev.EventID]
	result := metrics.ResultMatched
	switch {
	case !ok:
		result = metrics.ResultUnmatched
		if _, done := m.settled.Get(ev.EventID); done {
			result = metrics.ResultDuplicate
		}
	case ev.Type != p.Type:
		result = metrics.ResultTypeMismatch
	case ev.Outcome != domain.OutcomeSuccess && ev.Outcome != domain.OutcomeFailure:
		result = metrics.ResultInformational
	default:
		delete(m.pending, ev.EventID)
		m.settled.SetDefault(ev.EventID, struct{}{})
	}
	m.mu.Unlock()

	m.metrics.EventReceived(result)
	trace.SpanFromContext(ctx).AddEvent("auth_event", trace.WithAttributes(
		attribute.String("event_id", ev.EventID),
		attribute.String("result", result),
	))
	fields := []zap.Field{
		logger.EventID(ev.EventID),
		logger.EventType(string(ev.Type)),
		logger.Outcome(string(ev.Outcome)),
		zap.String("result", result),
	}

	if result != metrics.ResultMatched {
		m.log.Debug("event not delivered", fields...)
		return false
	}

	if ev.Outcome == domain.OutcomeSuccess {
		if ev.Data == nil {
			p.settle(nil, &domain.EventError{Code: "missing-event-data", Message: "success event without data"})
		} else {
			p.settle(ev.Data, nil)
		}
	} else {
		p.settle(nil, failure(ev.Error))
	}
	m.log.Info("event delivered", fields...)
	return true
}

// Cancel removes a pending event and settles it with cause. It is how the
// caller abandons an operation (timeout, closed window). It reports whether
// id was pending.
func (m *Manager) Cancel(id string, cause error) bool {
	if cause == nil {
		cause = domain.ErrEventCancelled
	}

	m.mu.Lock()
	p, ok := m.pending[id]
	if ok {
		delete(m.pending, id)
		m.settled.SetDefault(id, struct{}{})
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	p.settle(nil, cause)
	m.metrics.EventCancelled()
	m.log.Info("event cancelled", logger.EventID(id), zap.Error(cause))
	return true
}

// CancelAll settles every pending event with cause and empties the registry.
// It returns the number of events cancelled.
func (m *Manager) CancelAll(cause error) int {
	if cause == nil {
		cause = domain.ErrEventCancelled
	}

	m.mu.Lock()
	pending := m.pending
	m.pending = make(map[string]*Pending)
	for id := range pending {
		m.settled.SetDefault(id, struct{}{})
	}
	m.mu.Unlock()

	for id, p := range pending {
		p.settle(nil, cause)
		m.metrics.EventCancelled()
		m.log.Info("event cancelled", logger.EventID(id), zap.Error(cause))
	}
	return len(pending)
}

// Len returns the number of pending events.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// IsPending reports whether id is registered and unsettled.
func (m *Manager) IsPending(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pending[id]
	return ok
}

func failure(e *domain.EventError) error {
	if e == nil {
		return &domain.EventError{Code: "internal-error"}
	}
	cp := *e
	return &cp
}
