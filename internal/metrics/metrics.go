// Package metrics exposes the Prometheus collectors of the booking core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SeatTransitions counts seats per reservation operation and outcome
	// (succeeded or rejected).
	SeatTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinema_seat_transitions_total",
			Help: "Seats processed by reservation operations, by operation and outcome",
		},
		[]string{"op", "outcome"},
	)

	HoldsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cinema_seat_holds_expired_total",
		Help: "Seat holds released by the expiry sweeper",
	})

	PendingBookingsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cinema_pending_bookings_expired_total",
		Help: "Pending bookings cancelled because their payment window lapsed",
	})

	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cinema_expiry_sweep_duration_seconds",
		Help:    "Duration of one expiry sweep",
		Buckets: prometheus.DefBuckets,
	})

	BookingsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinema_bookings_created_total",
			Help: "Pending bookings created, by channel (online or counter)",
		},
		[]string{"channel"},
	)

	BookingsSettled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinema_bookings_settled_total",
			Help: "Bookings settled, by payment outcome",
		},
		[]string{"outcome"},
	)

	TicketCheckIns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinema_ticket_checkins_total",
			Help: "Ticket check-in attempts, by result",
		},
		[]string{"result"},
	)

	RealtimeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cinema_realtime_connections",
		Help: "Open realtime connections on this node",
	})

	RealtimeRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cinema_realtime_rooms",
		Help: "Showtime rooms with at least one member on this node",
	})

	RealtimeEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinema_realtime_events_total",
			Help: "Realtime events delivered to local members, by event name",
		},
		[]string{"event"},
	)

	NotificationsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cinema_notifications_failed_total",
		Help: "Booking confirmation notifications that could not be dispatched",
	})
)

// RecordSeats adds succeeded and rejected seat counts for op.
func RecordSeats(op string, succeeded, rejected int) {
	if succeeded > 0 {
		SeatTransitions.WithLabelValues(op, "succeeded").Add(float64(succeeded))
	}
	if rejected > 0 {
		SeatTransitions.WithLabelValues(op, "rejected").Add(float64(rejected))
	}
}
