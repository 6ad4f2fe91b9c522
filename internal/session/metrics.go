package session

import "github.com/prometheus/client_golang/prometheus"

var (
	transitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flickd",
			Subsystem: "session",
			Name:      "transitions_total",
			Help:      "Status publishes per session and state",
		},
		[]string{"session", "state"},
	)

	staleCallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flickd",
			Subsystem: "session",
			Name:      "stale_callbacks_total",
			Help:      "Classifier callbacks dropped because their session had moved on",
		},
		[]string{"kind"},
	)

	actuationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flickd",
			Subsystem: "session",
			Name:      "actuations_total",
			Help:      "Actuator triggers by result",
		},
		[]string{"result"},
	)

	failuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "flickd",
			Subsystem: "session",
			Name:      "failures_total",
			Help:      "Sessions stopped on a failure, by error code",
		},
		[]string{"session", "code"},
	)
)

func init() {
	prometheus.MustRegister(transitionsTotal, staleCallbacksTotal, actuationsTotal, failuresTotal)
}

// ListenerFailuresCollector exposes the failure count of the orchestrator's
// store. It is per instance, so the caller registers it.
func (o *Orchestrator) ListenerFailuresCollector() prometheus.Collector {
	return prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Namespace: "flickd",
			Subsystem: "store",
			Name:      "listener_failures_total",
			Help:      "Store listener invocations that panicked",
		},
		func() float64 { return float64(o.store.Failures()) },
	)
}
