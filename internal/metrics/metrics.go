// Package metrics defines the process-wide Prometheus collectors
// exposed on GET /metrics, grounded on the teacher's habit of a single
// package-level registry rather than one per subsystem.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DispatchTotal counts every dispatched command by outcome
	// ("success"/"error"/"auth_error"), per SPEC_FULL.md §4.5.
	DispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feisync_dispatch_total",
		Help: "Total dispatched commands by name and outcome.",
	}, []string{"command", "outcome"})

	// DispatchDuration observes wall-clock handler time per command.
	DispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "feisync_dispatch_duration_seconds",
		Help:    "Dispatched command handler duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"command"})

	// TransferBytesTotal tracks cumulative bytes moved by direction.
	TransferBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feisync_transfer_bytes_total",
		Help: "Cumulative bytes transferred by direction.",
	}, []string{"direction"})

	// TransferTasksTotal counts completed transfer tasks by terminal status.
	TransferTasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feisync_transfer_tasks_total",
		Help: "Completed transfer tasks by direction and terminal status.",
	}, []string{"direction", "status"})

	// SyncRunsTotal counts completed sync runs by outcome.
	SyncRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feisync_sync_runs_total",
		Help: "Completed sync task runs by outcome.",
	}, []string{"outcome"})

	// SyncRunDuration observes one sync run's wall-clock duration.
	SyncRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "feisync_sync_run_duration_seconds",
		Help:    "Sync task run duration in seconds.",
		Buckets: prometheus.DefBuckets,
	})

	// ActiveTransfers gauges the number of in-flight transfer tasks.
	ActiveTransfers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "feisync_active_transfers",
		Help: "Number of currently running transfer tasks.",
	})
)
