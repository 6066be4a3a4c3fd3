package suggest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	scansTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "quillops",
		Subsystem: "suggest",
		Name:      "scans_total",
		Help:      "Total suggestion scans run.",
	})
	itemsEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "quillops",
		Subsystem: "suggest",
		Name:      "items_emitted_total",
		Help:      "Suggestions emitted after cool-down dedup.",
	})
)
