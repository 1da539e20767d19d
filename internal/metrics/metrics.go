package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "bioskin"

var (
	once sync.Once

	calendarRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calendar_requests_total",
			Help:      "Calls to the external calendar store by operation and result.",
		},
		[]string{"op", "result"},
	)

	calendarLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "calendar_request_duration_seconds",
			Help:      "Latency of calls to the external calendar store.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2, 5},
		},
		[]string{"op"},
	)

	slotGrids = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_grid_total",
			Help:      "Day availability grids computed, by result.",
		},
		[]string{"result"},
	)

	blockHours = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "block_hours_total",
			Help:      "Blocked hours processed, by outcome.",
		},
		[]string{"outcome"},
	)

	appointments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointments_total",
			Help:      "Appointment actions, by action.",
		},
		[]string{"action"},
	)

	windowDays = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agenda_day_fetch_total",
			Help:      "Per-day fetches of the agenda window, by result.",
		},
		[]string{"result"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP API requests by route.",
		},
		[]string{"route"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			calendarRequests,
			calendarLatency,
			slotGrids,
			blockHours,
			appointments,
			windowDays,
			httpRequests,
		)
	})
}

// ObserveCalendar records one call to the calendar store.
func ObserveCalendar(op string, started time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	calendarRequests.WithLabelValues(op, result).Inc()
	calendarLatency.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

func IncSlotGrid(result string) {
	slotGrids.WithLabelValues(result).Inc()
}

func IncBlockHour(outcome string) {
	blockHours.WithLabelValues(outcome).Inc()
}

func IncAppointment(action string) {
	appointments.WithLabelValues(action).Inc()
}

func IncWindowDay(result string) {
	windowDays.WithLabelValues(result).Inc()
}

func IncHTTP(route string) {
	httpRequests.WithLabelValues(route).Inc()
}
