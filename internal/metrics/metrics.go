// Package metrics declares the prometheus collectors qalpha exposes over
// /metrics, grounded on pkg/metrics.Register's "package-level collectors,
// registered once, updated by call sites as they run" pattern.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SolverQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qalpha_solver_queries_total",
			Help: "Total check-sat family queries issued, by result kind",
		},
		[]string{"kind"},
	)

	SolverQueryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "qalpha_solver_query_duration_seconds",
			Help:    "Wall-clock duration of a single check-sat family query",
			Buckets: prometheus.DefBuckets,
		},
	)

	FrameWeakestSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "qalpha_frame_weakest_size",
			Help: "Current size of the active induction frame's weakest-candidate set",
		},
	)

	FrameFrontierSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "qalpha_frame_frontier_size",
			Help: "Current size of the active induction frame's frontier",
		},
	)

	FrameBlockedSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "qalpha_frame_blocked_size",
			Help: "Current size of the active induction frame's blocked-lemma table",
		},
	)

	// CTIsFound is exported directly since callers increment it from
	// outside any HandleMetrics-style refresh pass.
	CTIsFound = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qalpha_ctis_found_total",
			Help: "Total counterexamples to induction found across all domains",
		},
	)

	DomainsExplored = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "qalpha_domains_explored_total",
			Help: "Total lemma-QF domains run to a local fixpoint",
		},
	)
)

// Register installs every collector with the default registry. Call once
// at process startup before serving /metrics.
func Register() {
	prometheus.MustRegister(SolverQueries)
	prometheus.MustRegister(SolverQueryDuration)
	prometheus.MustRegister(FrameWeakestSize)
	prometheus.MustRegister(FrameFrontierSize)
	prometheus.MustRegister(FrameBlockedSize)
	prometheus.MustRegister(CTIsFound)
	prometheus.MustRegister(DomainsExplored)
}

// Handler returns the HTTP handler cmd/qalpha mounts at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
