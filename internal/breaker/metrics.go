package breaker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for a registry of breakers.
type Metrics struct {
	requests           *prometheus.CounterVec
	successes          *prometheus.CounterVec
	failures           *prometheus.CounterVec
	rejections         *prometheus.CounterVec
	preemptiveBlocks   *prometheus.CounterVec
	stateChanges       *prometheus.CounterVec
	currentState       *prometheus.GaugeVec
	requestLatency     *prometheus.HistogramVec
	failureProbability *prometheus.GaugeVec
	anomalyScore       *prometheus.GaugeVec
	predictConfidence  *prometheus.GaugeVec
}

// NewMetrics registers and returns breaker metrics under the given
// namespace. Call at most once per namespace per process; promauto
// panics on duplicate registration.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		requests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "callguard_requests_total",
				Help:      "Total number of admission attempts",
			},
			[]string{"name"},
		),
		successes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "callguard_successes_total",
				Help:      "Total number of successful calls",
			},
			[]string{"name"},
		),
		failures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "callguard_failures_total",
				Help:      "Total number of failed calls",
			},
			[]string{"name"},
		),
		rejections: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "callguard_rejections_total",
				Help:      "Total number of calls rejected while open",
			},
			[]string{"name"},
		),
		preemptiveBlocks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "callguard_preemptive_blocks_total",
				Help:      "Total number of calls blocked by the predictive model",
			},
			[]string{"name"},
		),
		stateChanges: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "callguard_state_changes_total",
				Help:      "Total number of state changes",
			},
			[]string{"name", "from", "to"},
		),
		currentState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "callguard_state",
				Help:      "Current breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),
		requestLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "callguard_call_duration_seconds",
				Help:      "Guarded call duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"name", "status"},
		),
		failureProbability: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "callguard_failure_probability",
				Help:      "Predicted failure probability (0.0-1.0)",
			},
			[]string{"name"},
		),
		anomalyScore: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "callguard_anomaly_score",
				Help:      "Latency anomaly score (0-10)",
			},
			[]string{"name"},
		),
		predictConfidence: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "callguard_prediction_confidence",
				Help:      "Confidence of the latest prediction (0.0-1.0)",
			},
			[]string{"name"},
		),
	}
}

// RecordOutcome records a single call outcome with its latency.
func (m *Metrics) RecordOutcome(name string, o Outcome) {
	m.requests.WithLabelValues(name).Inc()

	switch {
	case o.Rejected:
		m.rejections.WithLabelValues(name).Inc()
		if o.Err == ErrPredictiveBlock {
			m.preemptiveBlocks.WithLabelValues(name).Inc()
		}
	case o.Success:
		m.successes.WithLabelValues(name).Inc()
		m.requestLatency.WithLabelValues(name, "success").Observe(o.Duration.Seconds())
	default:
		m.failures.WithLabelValues(name).Inc()
		m.requestLatency.WithLabelValues(name, "failure").Observe(o.Duration.Seconds())
	}
}

// RecordStateChange records a state transition and the new state gauge.
func (m *Metrics) RecordStateChange(name string, from, to State) {
	m.stateChanges.WithLabelValues(name, from.String(), to.String()).Inc()
	m.currentState.WithLabelValues(name).Set(float64(to))
}

// RecordPrediction exports the latest prediction for a breaker.
func (m *Metrics) RecordPrediction(name string, p PredictionResult) {
	m.failureProbability.WithLabelValues(name).Set(p.FailureProbability)
	m.anomalyScore.WithLabelValues(name).Set(p.AnomalyScore)
	m.predictConfidence.WithLabelValues(name).Set(p.Confidence)
}

// Remove drops all series for the named breaker.
func (m *Metrics) Remove(name string) {
	m.requests.DeleteLabelValues(name)
	m.successes.DeleteLabelValues(name)
	m.failures.DeleteLabelValues(name)
	m.rejections.DeleteLabelValues(name)
	m.preemptiveBlocks.DeleteLabelValues(name)
	m.currentState.DeleteLabelValues(name)
	m.failureProbability.DeleteLabelValues(name)
	m.anomalyScore.DeleteLabelValues(name)
	m.predictConfidence.DeleteLabelValues(name)
}
