/*
Package metrics provides Prometheus metrics collection and exposition for
syncstored.

Metrics are defined and registered with the default Prometheus registry at
package init, then exposed over HTTP for scraping.

# Metrics Catalog

	syncstore_requests_total{operation,status}       Counter  wire API requests
	syncstore_request_duration_seconds{operation}     Histogram  request latency
	syncstore_lock_wait_seconds{mode}                 Histogram  time to acquire a collection lock
	syncstore_conflicts_total                         Counter  write_lock conflicts (stale-timestamp rejections)
	syncstore_quota_rejections_total{collection}      Counter  writes rejected for exceeding quota
	syncstore_batch_commits_total{outcome}            Counter  commit_batch calls by outcome
	syncstore_batch_size_bytes                        Histogram  committed batch payload sizes
	syncstore_pool_connections_in_use                 Gauge  backend connections checked out
	syncstore_pool_connections_idle                   Gauge  idle backend connections
	syncstore_pool_connections_max                    Gauge  configured pool ceiling
	syncstore_bso_payload_bytes                       Histogram  individual BSO payload sizes

# Usage

	timer := metrics.NewTimer()
	// ... handle request ...
	timer.ObserveDurationVec(metrics.RequestDuration, "post_bsos")

	metrics.RequestsTotal.WithLabelValues("post_bsos", "200").Inc()
	metrics.ReportPoolStats(active, idle, max)

/metrics is served by metrics.Handler(); /health, /ready, and /live by
metrics.HealthHandler(), metrics.ReadyHandler(), and metrics.LivenessHandler(),
which track component health via metrics.RegisterComponent.
*/
package metrics
