package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "quillops",
	Subsystem: "scheduler",
	Name:      "runs_total",
	Help:      "Scheduled task runs by outcome.",
}, []string{"outcome"})
