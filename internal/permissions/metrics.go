package permissions

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "syncboard_permissions_cache_lookups_total",
		Help: "Effective permission lookups, by cache result",
	}, []string{"result"})

	providerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "syncboard_permissions_provider_failures_total",
		Help: "Layer provider fetches that failed and contributed zero layers",
	}, []string{"provider"})

	temporaryChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "syncboard_permissions_temporary_changes_total",
		Help: "Temporary permission overrides set or cleared",
	}, []string{"action"})

	recomputes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "syncboard_permissions_recomputes_total",
		Help: "Participants recomputed after a layer change",
	})
)
