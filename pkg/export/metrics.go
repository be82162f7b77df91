package export

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the export counters. A nil *Metrics records nothing.
type Metrics struct {
	// Senses counts finished senses by result (ok, failed, malformed).
	Senses *prometheus.CounterVec
	// Units counts unit attempts by op and result (ok, error).
	Units *prometheus.CounterVec
	// Skipped counts options and links left out of a plan, by reason.
	Skipped *prometheus.CounterVec
	// SenseDuration observes the wall time of one sense's write sequence.
	SenseDuration prometheus.Histogram
}

// NewMetrics creates the metrics and registers them with reg when it is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Senses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lexigraph_senses_total",
				Help: "Total number of senses exported, by result",
			},
			[]string{"result"},
		),
		Units: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lexigraph_units_total",
				Help: "Total number of graph write units attempted",
			},
			[]string{"op", "result"},
		),
		Skipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lexigraph_skipped_total",
				Help: "Options and links skipped before writing",
			},
			[]string{"reason"},
		),
		SenseDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lexigraph_sense_duration_seconds",
			Help:    "Time spent writing one sense",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Senses, m.Units, m.Skipped, m.SenseDuration)
	}
	return m
}

func (m *Metrics) sense(result string) {
	if m != nil {
		m.Senses.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) unit(op, result string) {
	if m != nil {
		m.Units.WithLabelValues(op, result).Inc()
	}
}

func (m *Metrics) skipped(reason string) {
	if m != nil {
		m.Skipped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) observe(seconds float64) {
	if m != nil {
		m.SenseDuration.Observe(seconds)
	}
}
