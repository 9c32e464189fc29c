// Package metrics exposes Prometheus counters for sync outcomes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ItemsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offlinecache_sync_items_processed_total",
			Help: "Queue items successfully applied to the remote backend.",
		},
		[]string{"entity_type", "operation"},
	)

	ItemsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offlinecache_sync_items_failed_total",
			Help: "Queue items that failed and were scheduled for retry.",
		},
		[]string{"entity_type", "operation"},
	)

	ConflictsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offlinecache_sync_conflicts_total",
			Help: "Conflicts detected during pre-update checks.",
		},
		[]string{"entity_type"},
	)

	DraftsPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "offlinecache_drafts_pruned_total",
			Help: "Drafts evicted by storage limit enforcement.",
		},
	)
)
