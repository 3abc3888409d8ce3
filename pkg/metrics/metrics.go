package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Block store metrics
	BlocksStoredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "blockd_blocks_stored_total",
			Help: "Total number of blocks written to the local store",
		},
	)

	BlocksDeletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "blockd_blocks_deleted_total",
			Help: "Total number of blocks removed from the local store",
		},
	)

	BlocksQuarantinedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "blockd_blocks_quarantined_total",
			Help: "Total number of blocks moved aside after failing an integrity check",
		},
	)

	BlockStoreBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "blockd_block_store_bytes",
			Help: "Approximate bytes occupied by blocks in the local store",
		},
	)

	// Reference count metrics
	RefcountIncrefTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "blockd_refcount_incref_total",
			Help: "Total number of reference count increments",
		},
	)

	RefcountDecrefTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "blockd_refcount_decref_total",
			Help: "Total number of reference count decrements",
		},
	)

	// Resync queue metrics
	ResyncQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "blockd_resync_queue_depth",
			Help: "Current number of pending tasks in the resync queue",
		},
	)

	ResyncTasksEnqueuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "blockd_resync_tasks_enqueued_total",
			Help: "Total number of resync tasks enqueued",
		},
	)

	ResyncOffloadsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "blockd_resync_offloads_total",
			Help: "Total number of blocks offloaded to peers before local deletion",
		},
	)

	ResyncFetchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "blockd_resync_fetches_total",
			Help: "Total number of blocks fetched from peers to satisfy a need",
		},
	)

	ResyncQuorumUnavailableTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "blockd_resync_quorum_unavailable_total",
			Help: "Total number of reconciliation attempts aborted for lack of quorum",
		},
	)

	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "blockd_reconciliation_duration_seconds",
			Help:    "Time taken for a single resync reconciliation in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "blockd_reconciliation_cycles_total",
			Help: "Total number of resync reconciliations completed",
		},
	)

	// RPC metrics
	RPCRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blockd_rpc_requests_total",
			Help: "Total number of RPC requests by message kind and status",
		},
		[]string{"kind", "status"},
	)

	RPCRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "blockd_rpc_request_duration_seconds",
			Help:    "RPC request duration in seconds by message kind",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// Maintenance metrics
	ScrubRunsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "blockd_scrub_runs_total",
			Help: "Total number of block files read back by scrub",
		},
	)

	ScrubCorruptionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "blockd_scrub_corruptions_total",
			Help: "Total number of corrupted blocks found by scrub",
		},
	)

	RepairRunsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "blockd_repair_runs_total",
			Help: "Total number of repair sweeps started",
		},
	)
)

func init() {
	prometheus.MustRegister(BlocksStoredTotal)
	prometheus.MustRegister(BlocksDeletedTotal)
	prometheus.MustRegister(BlocksQuarantinedTotal)
	prometheus.MustRegister(BlockStoreBytes)
	prometheus.MustRegister(RefcountIncrefTotal)
	prometheus.MustRegister(RefcountDecrefTotal)
	prometheus.MustRegister(ResyncQueueDepth)
	prometheus.MustRegister(ResyncTasksEnqueuedTotal)
	prometheus.MustRegister(ResyncOffloadsTotal)
	prometheus.MustRegister(ResyncFetchesTotal)
	prometheus.MustRegister(ResyncQuorumUnavailableTotal)
	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(ReconciliationCyclesTotal)
	prometheus.MustRegister(RPCRequestsTotal)
	prometheus.MustRegister(RPCRequestDuration)
	prometheus.MustRegister(ScrubRunsTotal)
	prometheus.MustRegister(ScrubCorruptionsTotal)
	prometheus.MustRegister(RepairRunsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
