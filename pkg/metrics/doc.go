/*
Package metrics defines and registers Directord's Prometheus metrics
and the coordinator's health/readiness endpoints.

Gauges (directord_workers_total, directord_jobs_total,
directord_queue_depth) are set periodically by a Collector polling a
Source (see collector.go) — this package never imports pkg/coordinator
directly so pkg/coordinator is free to import pkg/metrics for its own
inline histogram and counter updates without a cyclic dependency.

Histograms (directord_dispatch_latency_seconds,
directord_execution_duration_seconds, directord_roundtrip_duration_seconds)
are observed with the Timer helper. /health and /ready follow the
teacher's HealthChecker pattern, generalized from Raft/containerd
readiness to the driver/datastore components Directord actually has.
*/
package metrics
