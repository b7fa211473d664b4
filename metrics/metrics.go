// Package metrics holds the Prometheus instruments the copier updates while
// running:
//   - copier_opens_total{kind}          - follower orders opened (market|pending)
//   - copier_closes_total{reason}       - follower orders closed/removed, by reason
//   - copier_rejections_total{check}    - safety-guard vetoes, by check code
//   - copier_sync_cycles_total{trigger} - sync cycles, by trigger (change|timer)
//   - copier_sync_errors_total          - per-follower sync failures
//   - copier_snapshot_publishes_total   - snapshots written by the publisher
//   - copier_active_items               - master active item count (gauge)
//
// Served at /metrics when a metrics address is configured.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Opens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copier_opens_total",
			Help: "Follower orders opened by the copier",
		},
		[]string{"kind"}, // market|pending
	)

	Closes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copier_closes_total",
			Help: "Follower orders closed or removed by the copier",
		},
		[]string{"reason"}, // master_closed|strict_cleanup|limit_violation|drawdown
	)

	Rejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copier_rejections_total",
			Help: "Safety guard vetoes by check code",
		},
		[]string{"check"},
	)

	SyncCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copier_sync_cycles_total",
			Help: "Sync cycles executed, by trigger",
		},
		[]string{"trigger"}, // change|timer
	)

	SyncErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "copier_sync_errors_total",
			Help: "Follower sync attempts that failed",
		},
	)

	SnapshotPublishes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "copier_snapshot_publishes_total",
			Help: "Master snapshots written to the transport",
		},
	)

	ActiveItems = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "copier_active_items",
			Help: "Active items (positions + pending orders) in the last published snapshot",
		},
	)
)

func init() {
	prometheus.MustRegister(
		Opens,
		Closes,
		Rejections,
		SyncCycles,
		SyncErrors,
		SnapshotPublishes,
		ActiveItems,
	)
}

// Handler returns the Prometheus exposition handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve starts a blocking metrics listener on addr.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	return http.ListenAndServe(addr, mux)
}
