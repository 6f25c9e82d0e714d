package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncstore_requests_total",
			Help: "Total number of storage API requests by operation and status",
		},
		[]string{"operation", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "syncstore_request_duration_seconds",
			Help:    "Storage API request duration in seconds by operation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	LockWaitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "syncstore_lock_wait_seconds",
			Help:    "Time spent waiting to acquire a per-collection lock",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	ConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "syncstore_conflicts_total",
			Help: "Total number of write-lock conflicts (stale write_lock rejections)",
		},
	)

	QuotaRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncstore_quota_rejections_total",
			Help: "Total number of writes rejected for exceeding quota",
		},
		[]string{"collection"},
	)

	BatchCommitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncstore_batch_commits_total",
			Help: "Total number of commit_batch calls by outcome",
		},
		[]string{"outcome"},
	)

	BatchSizeBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "syncstore_batch_size_bytes",
			Help:    "Size in bytes of committed batch payloads",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
		},
	)

	PoolConnectionsInUse = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "syncstore_pool_connections_in_use",
			Help: "Number of backend connections currently checked out",
		},
	)

	PoolConnectionsIdle = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "syncstore_pool_connections_idle",
			Help: "Number of idle backend connections in the pool",
		},
	)

	PoolConnectionsMax = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "syncstore_pool_connections_max",
			Help: "Configured maximum backend connection pool size",
		},
	)

	BSOPayloadBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "syncstore_bso_payload_bytes",
			Help:    "Size in bytes of individual BSO payloads written",
			Buckets: prometheus.ExponentialBuckets(64, 4, 10),
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		LockWaitDuration,
		ConflictsTotal,
		QuotaRejectionsTotal,
		BatchCommitsTotal,
		BatchSizeBytes,
		PoolConnectionsInUse,
		PoolConnectionsIdle,
		PoolConnectionsMax,
		BSOPayloadBytes,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ReportPoolStats publishes a backend's current connection pool occupancy.
func ReportPoolStats(active, idle, max int) {
	PoolConnectionsInUse.Set(float64(active))
	PoolConnectionsIdle.Set(float64(idle))
	PoolConnectionsMax.Set(float64(max))
}
