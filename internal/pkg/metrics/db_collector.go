package metrics

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultDBPoolInterval is how often pool statistics are sampled.
const DefaultDBPoolInterval = 15 * time.Second

// RecordDBPoolMetrics samples pool statistics once.
func RecordDBPoolMetrics(pool *pgxpool.Pool) {
	stats := pool.Stat()

	dbPoolConnections.WithLabelValues("in_use").Set(float64(stats.AcquiredConns()))
	dbPoolConnections.WithLabelValues("idle").Set(float64(stats.IdleConns()))
	dbPoolConnections.WithLabelValues("constructing").Set(float64(stats.ConstructingConns()))
	dbPoolConnections.WithLabelValues("max").Set(float64(stats.MaxConns()))
	dbPoolWaits.Set(float64(stats.EmptyAcquireCount()))
}

// RunDBPoolCollector samples pool statistics immediately and then every
// interval until ctx is done.
func RunDBPoolCollector(ctx context.Context, pool *pgxpool.Pool, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultDBPoolInterval
	}

	RecordDBPoolMetrics(pool)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			RecordDBPoolMetrics(pool)
		}
	}
}
