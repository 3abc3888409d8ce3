/*
Package metrics provides Prometheus metrics collection and exposition for blockd.

The metrics package defines and registers every blockd metric using the Prometheus
client library, giving operators visibility into block storage occupancy, refcount
churn, resync queue depth and convergence behavior, RPC traffic, and scrub/repair
sweep outcomes. Metrics are exposed via an HTTP endpoint for scraping by Prometheus.

# Architecture

blockd's metrics system follows the usual Prometheus client conventions:

	┌──────────────────── METRICS SYSTEM ───────────────────────┐
	│                                                             │
	│  ┌─────────────────────────────────────────────┐          │
	│  │           Prometheus Registry                │          │
	│  │  - Default global registry                   │          │
	│  │  - MustRegister at package init               │          │
	│  └──────────────────┬──────────────────────────┘          │
	│                     │                                       │
	│  ┌──────────────────▼──────────────────────────┐          │
	│  │              Metric Families                  │          │
	│  │                                                │          │
	│  │  Blob store: stored/deleted/quarantined,      │          │
	│  │              bytes on disk                    │          │
	│  │  Refcount:   incref/decref totals              │          │
	│  │  Resync:     queue depth, enqueued, offloads,  │          │
	│  │              fetches, quorum-unavailable,      │          │
	│  │              reconciliation cycles/duration    │          │
	│  │  RPC:        requests by kind, duration        │          │
	│  │  Maintenance: scrub runs/corruptions, repair    │          │
	│  │              runs                              │          │
	│  └──────────────────┬──────────────────────────┘          │
	│                     │                                       │
	│  ┌──────────────────▼──────────────────────────┐          │
	│  │         Health / Readiness Registry           │          │
	│  │  - RegisterComponent(name, healthy, detail)   │          │
	│  │  - /healthz, /ready, /live HTTP handlers       │          │
	│  └────────────────────────────────────────────┘           │
	└─────────────────────────────────────────────────────────┘

# Metric Reference

Blob Store Metrics:

blockd_blocks_stored_total:
  - Type: Counter
  - Description: Total blocks written to the canonical on-disk path
  - Example: blockd_blocks_stored_total 18231

blockd_blocks_deleted_total:
  - Type: Counter
  - Description: Total blocks removed after a safe offload-then-delete
  - Example: blockd_blocks_deleted_total 942

blockd_blocks_quarantined_total:
  - Type: Counter
  - Description: Total blocks renamed to *.corrupted after a hash mismatch
  - Example: blockd_blocks_quarantined_total 2

blockd_block_store_bytes:
  - Type: Gauge
  - Description: Bytes currently occupied by this node's block files
  - Example: blockd_block_store_bytes 48293812

Refcount Metrics:

blockd_refcount_incref_total / blockd_refcount_decref_total:
  - Type: Counter
  - Description: Total incref/decref calls observed by this node

Resync Metrics:

blockd_resync_queue_depth:
  - Type: Gauge
  - Description: Pending entries in the durable resync priority queue

blockd_resync_tasks_enqueued_total:
  - Type: Counter
  - Description: Total resync tasks pushed, across all reasons (incref,
    decref, corruption, repair scan)

blockd_resync_offloads_total / blockd_resync_fetches_total:
  - Type: Counter
  - Description: Reconcile outcomes that sent a block to a peer before
    deleting it locally, or pulled one down from a peer, respectively

blockd_resync_quorum_unavailable_total:
  - Type: Counter
  - Description: Offloads aborted because fewer than write_quorum peers
    were reported as write nodes for the hash

blockd_reconciliation_cycles_total / blockd_reconciliation_duration_seconds:
  - Type: Counter / Histogram
  - Description: Count and latency distribution of resync engine reconcile
    calls, one observation per hash processed

RPC Metrics:

blockd_rpc_requests_total{kind, status}:
  - Type: CounterVec
  - Description: Peer RPC requests handled, labeled by message kind
    (GetBlock, PutBlock, NeedBlockQuery, ...) and status (ok, error)

blockd_rpc_request_duration_seconds{kind}:
  - Type: HistogramVec
  - Description: Peer RPC handling latency by message kind

Maintenance Metrics:

blockd_scrub_runs_total / blockd_scrub_corruptions_total:
  - Type: Counter
  - Description: Block files scrubbed, and how many of those reads
    surfaced a corrupt-data error

blockd_repair_runs_total:
  - Type: Counter
  - Description: Repair sweeps started (reference-table + data-dir scan),
    counted whether or not the sweep completes

# Usage Example

	package main

	import (
		"net/http"

		"github.com/cuemby/blockd/pkg/metrics"
	)

	func main() {
		metrics.BlockStoreBytes.Set(48293812)
		metrics.RegisterComponent("store", true, "open")

		timer := metrics.NewTimer()
		reconcileOneHash()
		timer.ObserveDuration(metrics.ReconciliationDuration)

		http.Handle("/metrics", metrics.Handler())
		http.Handle("/healthz", metrics.HealthHandler())
		http.ListenAndServe(":9091", nil)
	}

# Integration Points

This package integrates with:

  - pkg/blob: blocks stored/deleted/quarantined counters, store size gauge
  - pkg/refcount: incref/decref counters
  - pkg/resync: queue depth gauge, enqueue/offload/fetch/quorum counters,
    reconciliation cycle counter and duration histogram
  - pkg/rpc: request counters and duration histograms by message kind
  - pkg/maintenance: scrub and repair counters
  - Prometheus: scrapes /metrics; load balancers/orchestrators poll
    /healthz, /ready, /live

# Design Patterns

Package Init Registration:
  - All metrics are registered in metrics.go's init-time var block
  - MustRegister panics on duplicate registration, catching copy-paste
    errors at startup rather than silently dropping a metric

Label Discipline:
  - Only bounded-cardinality labels are used (message kind, outcome,
    component name) - never hashes or node IDs

Health Registry:
  - RegisterComponent records the latest health snapshot for a named
    subsystem (store, rpc, resync); ReadyHandler requires all of
    store, rpc, and resync to report healthy before 200
*/
package metrics
