// Package metrics exposes stream and request counters for the local /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	Registry *prometheus.Registry

	Turns           *prometheus.CounterVec
	ToolCalls       *prometheus.CounterVec
	Citations       prometheus.Counter
	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	Refreshes       *prometheus.CounterVec
}

// New registers all collectors on a private registry so tests can create
// as many instances as they like.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "plaichat",
			Name:      "turns_total",
			Help:      "Stream turns by outcome (closed, aborted, errored, superseded).",
		}, []string{"outcome"}),
		ToolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "plaichat",
			Name:      "tool_calls_total",
			Help:      "Decoded tool calls by the recovery strategy that produced them.",
		}, []string{"strategy"}),
		Citations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "plaichat",
			Name:      "document_citations_total",
			Help:      "Document citations decoded from streams.",
		}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "plaichat",
			Name:      "api_requests_total",
			Help:      "Backend requests by endpoint group and status code.",
		}, []string{"op", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "plaichat",
			Name:      "api_request_duration_seconds",
			Help:      "Backend request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "plaichat",
			Name:      "token_refreshes_total",
			Help:      "Access token refresh attempts by result.",
		}, []string{"result"}),
	}

	m.Registry.MustRegister(m.Turns, m.ToolCalls, m.Citations, m.Requests, m.RequestDuration, m.Refreshes)
	return m
}

// ToolCallDecoded satisfies the decoder's observer hook.
func (m *Metrics) ToolCallDecoded(strategy string) {
	if m == nil {
		return
	}
	m.ToolCalls.WithLabelValues(strategy).Inc()
}

func (m *Metrics) CitationDecoded() {
	if m == nil {
		return
	}
	m.Citations.Inc()
}

func (m *Metrics) TurnFinished(outcome string) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(outcome).Inc()
}
