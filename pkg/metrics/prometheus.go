package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	runsRouted  *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
	costSpent   prometheus.Counter
	costAvoided prometheus.Counter
	brier       *prometheus.HistogramVec
	resolutions *prometheus.CounterVec
	queueDepth  prometheus.Gauge
	latency     *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		runsRouted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dealwatch_runs_routed_total",
				Help: "Assessment runs routed, by strategy and tier",
			},
			[]string{"strategy", "tier"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dealwatch_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		costSpent: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "dealwatch_cost_spent_total",
				Help: "Estimated executor cost spent",
			},
		),
		costAvoided: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "dealwatch_cost_avoided_total",
				Help: "Estimated executor cost avoided by reuse",
			},
		),
		brier: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dealwatch_brier_score",
				Help:    "Brier scores of resolved predictions, by signal",
				Buckets: prometheus.LinearBuckets(0, 0.05, 21),
			},
			[]string{"signal"},
		),
		resolutions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dealwatch_prediction_resolutions_total",
				Help: "Prediction lifecycle transitions, by terminal status",
			},
			[]string{"status"},
		),
		queueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "dealwatch_review_queue_depth",
				Help: "Open review queue items",
			},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dealwatch_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordRunRouted records one routed assessment run.
func (r *Recorder) RecordRunRouted(strategy, tier string) {
	r.runsRouted.WithLabelValues(strategy, tier).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordCost records executor cost spent and cost avoided by reuse.
func (r *Recorder) RecordCost(spent, avoided float64) {
	if spent > 0 {
		r.costSpent.Add(spent)
	}
	if avoided > 0 {
		r.costAvoided.Add(avoided)
	}
}

// RecordBrier records one resolved prediction's Brier score.
func (r *Recorder) RecordBrier(signal string, score float64) {
	r.brier.WithLabelValues(signal).Observe(score)
}

// RecordResolution records a prediction reaching a terminal status.
func (r *Recorder) RecordResolution(status string) {
	r.resolutions.WithLabelValues(status).Inc()
}

// RecordQueueDepth sets the open review queue size.
func (r *Recorder) RecordQueueDepth(n int) {
	r.queueDepth.Set(float64(n))
}
