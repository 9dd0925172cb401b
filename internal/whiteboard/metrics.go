package whiteboard

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	actionsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "syncboard_whiteboard_actions_total",
		Help: "Canvas actions executed, by action kind",
	}, []string{"kind"})

	historySteps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "syncboard_whiteboard_history_steps_total",
		Help: "Undo and redo steps applied",
	}, []string{"direction"})

	activeBoards = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "syncboard_whiteboard_boards",
		Help: "Whiteboards currently held in memory",
	})
)
