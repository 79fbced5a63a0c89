// Package metrics exposes the operator's own Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TrackedClusters = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "flink_operator",
		Name:      "tracked_clusters",
		Help:      "Number of Flink clusters currently tracked by this node.",
	})

	PollTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flink_operator",
		Name:      "tracker_polls_total",
		Help:      "Tracker poll rounds by kind.",
	}, []string{"kind"})

	PollErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flink_operator",
		Name:      "tracker_poll_errors_total",
		Help:      "Failed tracker poll rounds by kind.",
	}, []string{"kind"})

	CacheEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "flink_operator",
		Name:      "cache_entries",
		Help:      "Live entries per replicated cache.",
	}, []string{"store"})
)
