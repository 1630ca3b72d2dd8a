package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "idpauth"

// Event classification labels for EventReceived.
const (
	ResultMatched       = "matched"
	ResultInformational = "informational"
	ResultUnmatched     = "unmatched"
	ResultDuplicate     = "duplicate"
	ResultTypeMismatch  = "type_mismatch"
)

// Metrics holds the collectors of one process. All methods are safe on a nil
// receiver so components can run without instrumentation.
type Metrics struct {
	gatherer prometheus.Gatherer

	eventsRegistered *prometheus.CounterVec
	eventsReceived   *prometheus.CounterVec
	eventsCancelled  prometheus.Counter
	pendingEvents    prometheus.Gauge
	messagesAcked    *prometheus.CounterVec
	popupsOpened     *prometheus.CounterVec
	channelInit      *prometheus.CounterVec
	exchangeRequests *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg uses a
// fresh private registry.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		eventsRegistered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_registered_total",
			Help:      "Pending auth events registered, by event type.",
		}, []string{"type"}),
		eventsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_received_total",
			Help:      "Inbound auth events, by classification.",
		}, []string{"result"}),
		eventsCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_cancelled_total",
			Help:      "Pending auth events abandoned before a result arrived.",
		}),
		pendingEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_events",
			Help:      "Auth events waiting for a result.",
		}),
		messagesAcked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_messages_acked_total",
			Help:      "Channel messages acknowledged, by message type.",
		}, []string{"event_type"}),
		popupsOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "popups_opened_total",
			Help:      "Widget windows opened, by provider.",
		}, []string{"provider"}),
		channelInit: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_init_total",
			Help:      "Channel initialization attempts, by result.",
		}, []string{"result"}),
		exchangeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exchange_requests_total",
			Help:      "Backend token exchange requests, by result.",
		}, []string{"result"}),
	}

	var err error
	if m.eventsRegistered, err = register(reg, m.eventsRegistered); err != nil {
		return nil, err
	}
	if m.eventsReceived, err = register(reg, m.eventsReceived); err != nil {
		return nil, err
	}
	if m.eventsCancelled, err = register(reg, m.eventsCancelled); err != nil {
		return nil, err
	}
	if m.pendingEvents, err = register(reg, m.pendingEvents); err != nil {
		return nil, err
	}
	if m.messagesAcked, err = register(reg, m.messagesAcked); err != nil {
		return nil, err
	}
	if m.popupsOpened, err = register(reg, m.popupsOpened); err != nil {
		return nil, err
	}
	if m.channelInit, err = register(reg, m.channelInit); err != nil {
		return nil, err
	}
	if m.exchangeRequests, err = register(reg, m.exchangeRequests); err != nil {
		return nil, err
	}

	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	} else {
		m.gatherer = prometheus.DefaultGatherer
	}
	return m, nil
}

// register adds c to reg. When an equal collector is already registered the
// existing one is returned so repeated construction shares series.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// Handler serves the registered metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) EventRegistered(eventType string) {
	if m == nil {
		return
	}
	m.eventsRegistered.WithLabelValues(eventType).Inc()
	m.pendingEvents.Inc()
}

func (m *Metrics) EventReceived(result string) {
	if m == nil {
		return
	}
	m.eventsReceived.WithLabelValues(result).Inc()
	if result == ResultMatched {
		m.pendingEvents.Dec()
	}
}

func (m *Metrics) EventCancelled() {
	if m == nil {
		return
	}
	m.eventsCancelled.Inc()
	m.pendingEvents.Dec()
}

func (m *Metrics) MessageAcked(eventType string) {
	if m == nil {
		return
	}
	m.messagesAcked.WithLabelValues(eventType).Inc()
}

func (m *Metrics) PopupOpened(provider string) {
	if m == nil {
		return
	}
	m.popupsOpened.WithLabelValues(provider).Inc()
}

func (m *Metrics) ChannelInit(ok bool) {
	if m == nil {
		return
	}
	m.channelInit.WithLabelValues(result(ok)).Inc()
}

func (m *Metrics) ExchangeRequest(ok bool) {
	if m == nil {
		return
	}
	m.exchangeRequests.WithLabelValues(result(ok)).Inc()
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
