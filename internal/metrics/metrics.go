// Package metrics exposes the service's Prometheus instruments. All
// registration happens at init via promauto against the default registry;
// the /metrics route serves it.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReservationTransitions counts lifecycle transitions by resulting state.
	ReservationTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parking",
		Name:      "reservation_transitions_total",
		Help:      "Reservation lifecycle transitions by resulting state.",
	}, []string{"state"})

	// AssignConflicts counts assign calls lost to another holder.
	AssignConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "parking",
		Name:      "assign_conflicts_total",
		Help:      "Slot assignments rejected because the slot was taken.",
	})

	// SensorPollCycles counts occupancy feed poll cycles by outcome.
	SensorPollCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parking",
		Name:      "sensor_poll_cycles_total",
		Help:      "Occupancy feed poll cycles by outcome.",
	}, []string{"outcome"})

	// SlotsAvailable is the last reconciled count of available slots.
	SlotsAvailable = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "parking",
		Name:      "slots_available",
		Help:      "Slots currently displayed as available.",
	})

	// RateLimited counts requests rejected by the per-IP rate limiter.
	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "parking",
		Name:      "rate_limited_requests_total",
		Help:      "Requests rejected by the per-IP rate limiter.",
	})
)
