package gate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Package-level collectors registered once against the default registry;
// every Gate instance shares them.
var (
	acquiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "quillops",
		Subsystem: "gate",
		Name:      "acquired_total",
		Help:      "Total budget acquisitions granted.",
	})
	throttledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "quillops",
		Subsystem: "gate",
		Name:      "throttled_total",
		Help:      "Total acquisition waits due to exhausted window budget.",
	})
	windowRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "quillops",
		Subsystem: "gate",
		Name:      "window_requests",
		Help:      "Requests consumed within the current rolling window.",
	})
	windowUnits = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "quillops",
		Subsystem: "gate",
		Name:      "window_units",
		Help:      "Resource units consumed within the current rolling window.",
	})
	inFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "quillops",
		Subsystem: "gate",
		Name:      "in_flight",
		Help:      "Unreleased gate tokens.",
	})
)

type metrics struct {
	acquired      prometheus.Counter
	throttled     prometheus.Counter
	requestsGauge prometheus.Gauge
	unitsGauge    prometheus.Gauge
	inFlightGauge prometheus.Gauge
}

func newMetrics() *metrics {
	return &metrics{
		acquired:      acquiredTotal,
		throttled:     throttledTotal,
		requestsGauge: windowRequests,
		unitsGauge:    windowUnits,
		inFlightGauge: inFlight,
	}
}

func (m *metrics) observeAcquire(requests int, units int64, inFlight int) {
	m.acquired.Inc()
	m.requestsGauge.Set(float64(requests))
	m.unitsGauge.Set(float64(units))
	m.inFlightGauge.Set(float64(inFlight))
}
