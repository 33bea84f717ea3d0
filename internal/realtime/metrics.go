package realtime

import (
	"github.com/bissquit/resilio/internal/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	subscribersGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: "realtime",
			Name:      "subscribers",
			Help:      "Number of connected realtime subscribers",
		},
	)

	eventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "realtime",
			Name:      "events_published_total",
			Help:      "Total events published to the bus by type",
		},
		[]string{"event"},
	)

	eventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "realtime",
			Name:      "events_dropped_total",
			Help:      "Events dropped because a subscriber buffer was full",
		},
	)

	slowSubscribersEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "realtime",
			Name:      "slow_subscribers_evicted_total",
			Help:      "Subscribers disconnected after dropping too many events",
		},
	)
)
