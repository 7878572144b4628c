package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Decision reasons, exported as the reason label of
// viewport_inval_decisions_total.
const (
	reasonRefresh  = "refresh"
	reasonHouse    = "house"
	reasonBBox     = "bbox"
	reasonH3       = "h3"
	reasonEmpty    = "empty"
	reasonDisjoint = "disjoint"
	reasonStale    = "stale_version"
)

const (
	actionInvalidate = "invalidate"
	actionSkip       = "skip"
)

var decisionLabels = map[string][]string{
	actionInvalidate: {reasonRefresh, reasonHouse, reasonBBox, reasonH3},
	actionSkip:       {reasonEmpty, reasonDisjoint, reasonStale},
}

type metricSet struct {
	msgs        *prometheus.CounterVec
	decisions   *prometheus.CounterVec
	proc        *prometheus.HistogramVec
	lagGauge    prometheus.Gauge
	lastCleared prometheus.Gauge
}

func newMetricSet(r prometheus.Registerer) *metricSet {
	m := &metricSet{
		msgs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "viewport_inval_messages_total",
				Help: "Invalidation messages by result (ok, error, rejected).",
			},
			[]string{"result"},
		),
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "viewport_inval_decisions_total",
				Help: "Whether an invalidation event cleared the viewport cache, and why.",
			},
			[]string{"action", "reason"},
		),
		proc: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "viewport_inval_processing_seconds",
				Help:    "Time to decode, decide and apply one invalidation event.",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
			},
			[]string{"op"},
		),
		lagGauge: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "viewport_inval_lag_seconds",
				Help: "Now minus the timestamp of the last consumed message.",
			},
		),
		lastCleared: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "viewport_inval_last_cleared_timestamp_seconds",
				Help: "Unix time the cached viewport was last cleared by an event.",
			},
		),
	}
	for _, res := range []string{"ok", "error", "rejected"} {
		m.msgs.WithLabelValues(res)
	}
	for action, reasons := range decisionLabels {
		for _, reason := range reasons {
			m.decisions.WithLabelValues(action, reason)
		}
	}
	if r != nil {
		r.MustRegister(m.msgs, m.decisions, m.proc, m.lagGauge, m.lastCleared)
	}
	return m
}

func (m *metricSet) decide(action, reason string) {
	m.decisions.WithLabelValues(action, reason).Inc()
}
