package executor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	plansStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "quillops",
		Subsystem: "executor",
		Name:      "plans_started_total",
		Help:      "Total plan executions started.",
	})
	tasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quillops",
		Subsystem: "executor",
		Name:      "tasks_total",
		Help:      "Tasks reaching a terminal status.",
	}, []string{"status"})
	tasksInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "quillops",
		Subsystem: "executor",
		Name:      "tasks_in_flight",
		Help:      "Tasks currently running.",
	})
)
