package hub

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	commandsQueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "syncboard_hub_commands_queued_total",
		Help: "Inbound commands accepted onto a worker queue",
	})

	commandsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "syncboard_hub_commands_rejected_total",
		Help: "Inbound commands refused because the worker queue was full",
	})

	commandsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "syncboard_hub_commands_failed_total",
		Help: "Commands the router refused or could not apply",
	})
)
