package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	ReviewLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dealwatch",
			Subsystem: "review_api",
			Name:      "latency_seconds",
			Help:      "Latency of review surface endpoints",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	ReviewErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dealwatch",
			Subsystem: "review_api",
			Name:      "errors_total",
			Help:      "Errors by review surface endpoint",
		},
		[]string{"endpoint"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(ReviewLatency, ReviewErrors)
	})
}
