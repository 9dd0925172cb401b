package router

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcomes recorded on commandsRouted
const (
	resultOK          = "ok"
	resultInvalid     = "invalid"
	resultRateLimited = "rate_limited"
	resultDenied      = "denied"
	resultFailed      = "failed"
)

// unknownCommand is the type label of commands outside the known set
const unknownCommand = "unknown"

var commandsRouted = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "syncboard_router_commands_total",
	Help: "Inbound commands by type and outcome",
}, []string{"type", "result"})
