package incidents

import (
	"github.com/bissquit/resilio/internal/domain"
	"github.com/bissquit/resilio/internal/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Reasons a rescuer leaves a task.
const (
	releaseResolved   = "resolved"
	releaseReassigned = "reassigned"
	releaseReconciled = "reconciled"
)

var (
	incidentsReported = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "incidents",
			Name:      "reported_total",
			Help:      "Incidents reported",
		},
	)

	statusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "incidents",
			Name:      "status_transitions_total",
			Help:      "Committed incident status changes",
		},
		[]string{"from", "to"},
	)

	rescuerReleases = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "incidents",
			Name:      "rescuer_releases_total",
			Help:      "Rescuer task releases and reconciler repairs by reason",
		},
		[]string{"reason"},
	)
)

func recordTransition(from, to domain.IncidentStatus) {
	if from == to {
		return
	}
	statusTransitions.WithLabelValues(string(from), string(to)).Inc()
}

func recordRelease(reason string, n int) {
	rescuerReleases.WithLabelValues(reason).Add(float64(n))
}
