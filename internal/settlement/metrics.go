package settlement

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_events_total",
		Help: "Processor events applied, by event type and outcome.",
	}, []string{"type", "outcome"})

	reconcileTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconcile_items_total",
		Help: "Orders examined by the reconciler, by result.",
	}, []string{"result"})
)

func observe(eventType string, outcome Outcome) {
	eventsTotal.WithLabelValues(eventType, string(outcome)).Inc()
}
