package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"supreme-bot/internal/flow"
)

type Metrics struct {
	flowEvents *prometheus.CounterVec
	replies    *prometheus.CounterVec
	generative *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		flowEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "supreme_flow_events_total",
			Help: "Flow lifecycle events by flow and event.",
		}, []string{"flow", "event"}),
		replies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "supreme_replies_total",
			Help: "Ticket replies by source.",
		}, []string{"source"}),
		generative: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "supreme_generative_seconds",
			Help:    "Latency of generative responder calls.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.flowEvents, m.replies, m.generative)
	return m
}

func (m *Metrics) FlowEvent(ctx context.Context, ev flow.Event) {
	m.flowEvents.WithLabelValues(ev.Flow, ev.Name).Inc()
}

func (m *Metrics) Reply(source string) {
	m.replies.WithLabelValues(source).Inc()
}

func (m *Metrics) Generative(d time.Duration, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.generative.WithLabelValues(outcome).Observe(d.Seconds())
}
