package enrichment

import (
	"time"

	"github.com/bissquit/resilio/internal/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Job results.
const (
	resultApplied   = "applied"
	resultStale     = "stale"
	resultFailed    = "failed"
	resultDropped   = "dropped"
	resultApplyFail = "apply_failed"
)

var (
	jobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "enrichment",
			Name:      "jobs_total",
			Help:      "Enrichment jobs by result",
		},
		[]string{"result"},
	)

	analyzeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: metrics.Namespace,
			Subsystem: "enrichment",
			Name:      "analyze_duration_seconds",
			Help:      "Time spent waiting for the classifier",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	queueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: "enrichment",
			Name:      "queue_depth",
			Help:      "Jobs waiting for a worker",
		},
	)
)

func recordJob(result string) {
	jobsTotal.WithLabelValues(result).Inc()
}

func recordAnalyzeDuration(d time.Duration) {
	analyzeDuration.Observe(d.Seconds())
}
