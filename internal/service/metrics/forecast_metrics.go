package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	ForecastLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "stockpulse",
			Subsystem: "forecast",
			Name:      "latency_seconds",
			Help:      "Latency of forecast stages",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	ForecastsServed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stockpulse",
			Subsystem: "forecast",
			Name:      "served_total",
			Help:      "Forecasts served by source (model or fallback)",
		},
		[]string{"source"},
	)

	TrainingRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stockpulse",
			Subsystem: "forecast",
			Name:      "training_runs_total",
			Help:      "Background training runs by outcome",
		},
		[]string{"outcome"},
	)

	ForecastErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stockpulse",
			Subsystem: "forecast",
			Name:      "errors_total",
			Help:      "Errors by forecast stage",
		},
		[]string{"stage"},
	)
)

// Register attaches the collectors to the default registry. Safe to call more
// than once.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(ForecastLatency, ForecastsServed, TrainingRuns, ForecastErrors)
	})
}
