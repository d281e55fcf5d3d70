package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "judge",
		Subsystem: "dispatch",
		Name:      "queue_depth",
		Help:      "Submissions waiting for a worker.",
	})
	metricVerdicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "judge",
		Subsystem: "dispatch",
		Name:      "verdicts_total",
		Help:      "Judged submissions by final verdict.",
	}, []string{"verdict"})
	metricRunSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "judge",
		Subsystem: "dispatch",
		Name:      "run_duration_seconds",
		Help:      "Wall time of one sandbox run.",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
	})
)
