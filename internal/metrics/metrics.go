package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the live poll collectors. A nil *Metrics is valid and
// records nothing, which keeps tests free of registry wiring.
type Metrics struct {
	registry *prometheus.Registry

	ResponsesAccepted *prometheus.CounterVec
	ResponsesRejected *prometheus.CounterVec
	ActiveSessions    prometheus.Gauge
	Subscribers       *prometheus.GaugeVec
	EventsDropped     prometheus.Counter
	StoreDuration     *prometheus.HistogramVec
}

// New registers all collectors on a dedicated registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ResponsesAccepted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "livepoll_responses_accepted_total",
				Help: "Accepted responses by question type",
			},
			[]string{"type"},
		),
		ResponsesRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "livepoll_responses_rejected_total",
				Help: "Rejected responses by reason",
			},
			[]string{"reason"},
		),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "livepoll_active_sessions",
			Help: "Sessions currently accepting responses",
		}),
		Subscribers: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "livepoll_subscribers",
				Help: "Connected subscribers by role",
			},
			[]string{"role"},
		),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livepoll_events_dropped_total",
			Help: "Events discarded because a subscriber buffer was full",
		}),
		StoreDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "livepoll_store_duration_seconds",
				Help:    "Durable store call latency",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"op", "status"},
		),
	}
	m.registry.MustRegister(
		m.ResponsesAccepted,
		m.ResponsesRejected,
		m.ActiveSessions,
		m.Subscribers,
		m.EventsDropped,
		m.StoreDuration,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Accepted(questionType string) {
	if m == nil {
		return
	}
	m.ResponsesAccepted.WithLabelValues(questionType).Inc()
}

func (m *Metrics) Rejected(reason string) {
	if m == nil {
		return
	}
	m.ResponsesRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

func (m *Metrics) SessionEnded() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}

func (m *Metrics) SubscriberAdded(role string) {
	if m == nil {
		return
	}
	m.Subscribers.WithLabelValues(role).Inc()
}

func (m *Metrics) SubscriberRemoved(role string) {
	if m == nil {
		return
	}
	m.Subscribers.WithLabelValues(role).Dec()
}

func (m *Metrics) EventDropped() {
	if m == nil {
		return
	}
	m.EventsDropped.Inc()
}

// ObserveStore records one durable store call.
func (m *Metrics) ObserveStore(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.StoreDuration.WithLabelValues(op, status).Observe(time.Since(start).Seconds())
}
