package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	EventsCaptured = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whrelay_events_captured_total",
			Help: "Queue entries written by change capture, by event type",
		},
		[]string{"event"},
	)

	QueueClaims = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "whrelay_queue_claims_total",
			Help: "Entries claimed for dispatch",
		},
	)

	Deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whrelay_deliveries_total",
			Help: "Delivery outcomes by result",
		},
		[]string{"result"}, // success|failed|rejected
	)

	DeliveryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "whrelay_delivery_duration_seconds",
			Help:    "Wall time of one full delivery attempt group",
			Buckets: prometheus.DefBuckets,
		},
	)

	BreakerTrips = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "whrelay_breaker_trips_total",
			Help: "Subscriptions suspended after consecutive failures",
		},
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		EventsCaptured,
		QueueClaims,
		Deliveries,
		DeliveryDuration,
		BreakerTrips,
	)
}
