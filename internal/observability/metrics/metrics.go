package metrics

import "github.com/prometheus/client_golang/prometheus"

// PipelineMetrics exposes counters/histograms for conversation processing.
type PipelineMetrics struct {
	turnsTotal      *prometheus.CounterVec
	escalationsOpen prometheus.Gauge
	turnLatency     *prometheus.HistogramVec
	lockedTurns     prometheus.Counter
}

func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	m := &PipelineMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "concierge",
			Subsystem: "pipeline",
			Name:      "turns_total",
			Help:      "Total processed conversation turns",
		}, []string{"action", "language"}),
		escalationsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "concierge",
			Subsystem: "pipeline",
			Name:      "escalations_open",
			Help:      "Conversations currently waiting in the escalation queue",
		}),
		turnLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "concierge",
			Subsystem: "pipeline",
			Name:      "turn_latency_seconds",
			Help:      "End-to-end latency of one conversation turn",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action"}),
		lockedTurns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "concierge",
			Subsystem: "pipeline",
			Name:      "locked_turns_total",
			Help:      "Turns short-circuited because a human holds the conversation",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.escalationsOpen, m.turnLatency, m.lockedTurns)
	return m
}

func (m *PipelineMetrics) ObserveTurn(action, language string, seconds float64) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(action, language).Inc()
	m.turnLatency.WithLabelValues(action).Observe(seconds)
}

func (m *PipelineMetrics) ObserveLockedTurn() {
	if m == nil {
		return
	}
	m.lockedTurns.Inc()
}

func (m *PipelineMetrics) SetEscalationsOpen(n int) {
	if m == nil {
		return
	}
	m.escalationsOpen.Set(float64(n))
}

// DeliveryMetrics tracks outbound message delivery across the strategy
// cascade.
type DeliveryMetrics struct {
	attemptsTotal *prometheus.CounterVec
	failuresTotal prometheus.Counter
}

func NewDeliveryMetrics(reg prometheus.Registerer) *DeliveryMetrics {
	m := &DeliveryMetrics{
		attemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "concierge",
			Subsystem: "delivery",
			Name:      "attempts_total",
			Help:      "Delivery attempts by strategy and outcome",
		}, []string{"strategy", "outcome"}),
		failuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "concierge",
			Subsystem: "delivery",
			Name:      "failures_total",
			Help:      "Messages the whole cascade failed to deliver",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.attemptsTotal, m.failuresTotal)
	return m
}

func (m *DeliveryMetrics) ObserveAttempt(strategy, outcome string) {
	if m == nil {
		return
	}
	m.attemptsTotal.WithLabelValues(strategy, outcome).Inc()
}

func (m *DeliveryMetrics) ObserveCascadeFailure() {
	if m == nil {
		return
	}
	m.failuresTotal.Inc()
}
