package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "persona_bridge"

// Metrics holds the bridge's Prometheus collectors. A Metrics created with a
// nil registerer works normally but is never exported.
type Metrics struct {
	reg prometheus.Registerer

	StreamConnects    prometheus.Counter
	StreamDisconnects *prometheus.CounterVec
	FramesReceived    *prometheus.CounterVec
	DecodeFailures    prometheus.Counter

	MessagesSent       prometheus.Counter
	DeletionsScheduled prometheus.Counter
	DeletionsExecuted  *prometheus.CounterVec

	Completions        *prometheus.CounterVec
	PersonaSwitches    *prometheus.CounterVec
	CooldownRejections prometheus.Counter
	IdentityMutations  *prometheus.CounterVec
}

// New creates the collectors and registers them on reg when it is not nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		reg: reg,
		StreamConnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "stream_connects_total",
			Help: "Realtime stream connections established.",
		}),
		StreamDisconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "stream_disconnects_total",
			Help: "Realtime stream disconnections by reason.",
		}, []string{"reason"}),
		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "frames_received_total",
			Help: "Decoded realtime frames by type.",
		}, []string{"type"}),
		DecodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "frame_decode_failures_total",
			Help: "Realtime frames dropped because they could not be decoded.",
		}),
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "messages_sent_total",
			Help: "Outbound message chunks sent.",
		}),
		DeletionsScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "deletions_scheduled_total",
			Help: "Delayed deletions scheduled.",
		}),
		DeletionsExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "deletions_executed_total",
			Help: "Delayed deletions that fired, by result.",
		}, []string{"result"}),
		Completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "completions_total",
			Help: "Completion backend calls by result code.",
		}, []string{"result"}),
		PersonaSwitches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "persona_switches_total",
			Help: "Persona selections resolved, by menu kind.",
		}, []string{"kind"}),
		CooldownRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "cooldown_rejections_total",
			Help: "Alternate persona requests rejected by the cooldown.",
		}),
		IdentityMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "identity_mutations_total",
			Help: "Profile identity updates by result.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.StreamConnects, m.StreamDisconnects, m.FramesReceived, m.DecodeFailures,
			m.MessagesSent, m.DeletionsScheduled, m.DeletionsExecuted,
			m.Completions, m.PersonaSwitches, m.CooldownRejections, m.IdentityMutations,
		)
	}
	return m
}

// OrNop returns m, or an unregistered Metrics if m is nil.
func OrNop(m *Metrics) *Metrics {
	if m != nil {
		return m
	}
	return New(nil)
}

// GaugeFunc registers a gauge whose value is computed on scrape.
func (m *Metrics) GaugeFunc(name, help string, fn func() float64) {
	if m.reg == nil {
		return
	}
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace, Name: name, Help: help,
	}, fn))
}

// Handler serves the metrics gathered from g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
