package syncobj

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	updatesBroadcast = promauto.NewCounter(prometheus.CounterOpts{
		Name: "syncboard_sync_updates_broadcast_total",
		Help: "Non-empty object diffs broadcast to session subscribers",
	})

	deliveriesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "syncboard_sync_deliveries_dropped_total",
		Help: "Per-subscriber deliveries dropped, by reason",
	}, []string{"reason"})

	resyncsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "syncboard_sync_resyncs_total",
		Help: "Full snapshots re-sent to subscribers that fell behind",
	})

	registeredObjects = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "syncboard_sync_registered_objects",
		Help: "Synchronized objects currently registered across all sessions",
	})

	activeSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "syncboard_sync_subscribers",
		Help: "Subscribers currently attached across all sessions",
	})
)
