package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// WorkersTotal counts currently known client identities by
	// liveness status (alive/expired).
	WorkersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "directord_workers_total",
			Help: "Total number of known client identities by status",
		},
		[]string{"status"},
	)

	// JobsTotal counts jobs by lifecycle state.
	JobsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "directord_jobs_total",
			Help: "Total number of jobs by state",
		},
		[]string{"state"},
	)

	// QueueDepth tracks the pending per-identity dispatch queue size.
	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "directord_queue_depth",
			Help: "Pending jobs in a per-identity dispatch queue",
		},
		[]string{"identity"},
	)

	// DispatchLatency measures time from job creation to the frame
	// leaving the dispatcher.
	DispatchLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "directord_dispatch_latency_seconds",
			Help:    "Time from job creation to dispatch in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// ExecutionDuration measures a component's RUN subprocess duration
	// as reported in each NodeResult.
	ExecutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "directord_execution_duration_seconds",
			Help:    "Per-identity component execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"verb"},
	)

	// RoundtripDuration measures time from dispatch to the return
	// frame's arrival.
	RoundtripDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "directord_roundtrip_duration_seconds",
			Help:    "Per-identity round-trip duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"verb"},
	)

	// RetriesTotal counts driver-level send retries before a frame is
	// declared NACKED.
	RetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "directord_send_retries_total",
			Help: "Total number of driver send retries",
		},
		[]string{"channel"},
	)

	// NackedFramesTotal counts frames that exhausted retries.
	NackedFramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "directord_nacked_frames_total",
			Help: "Total number of frames that exhausted retries",
		},
		[]string{"channel"},
	)
)

func init() {
	prometheus.MustRegister(WorkersTotal)
	prometheus.MustRegister(JobsTotal)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(DispatchLatency)
	prometheus.MustRegister(ExecutionDuration)
	prometheus.MustRegister(RoundtripDuration)
	prometheus.MustRegister(RetriesTotal)
	prometheus.MustRegister(NackedFramesTotal)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
