package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics implements the reservation service's Hooks against the default
// prometheus registry, scraped at /metrics.
type Metrics struct {
	createTotal    *prometheus.CounterVec
	createLatency  *prometheus.HistogramVec
	conflictTotal  *prometheus.CounterVec
	remainingSeats *prometheus.GaugeVec
}

var (
	initOnce sync.Once
	instance *Metrics
)

// Init registers the booking metrics once per process.
func Init() *Metrics {
	initOnce.Do(func() {
		instance = &Metrics{
			createTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "seatbook_reservation_create_total",
				Help: "Reservation create attempts by strategy and outcome",
			}, []string{"strategy", "status"}),
			createLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "seatbook_reservation_create_seconds",
				Help:    "Reservation create latency by strategy",
				Buckets: prometheus.DefBuckets,
			}, []string{"strategy"}),
			conflictTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "seatbook_capacity_version_conflicts_total",
				Help: "Version conflicts observed by the optimistic-retry facade",
			}, []string{"strategy"}),
			remainingSeats: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Name: "seatbook_remaining_seats",
				Help: "Remaining seats per slot-date pool",
			}, []string{"slot_date"}),
		}
	})
	return instance
}

func (m *Metrics) ObserveCreate(strategy, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.createTotal.WithLabelValues(strategy, status).Inc()
	m.createLatency.WithLabelValues(strategy).Observe(dur.Seconds())
}

func (m *Metrics) IncConflict(strategy string) {
	if m == nil {
		return
	}
	m.conflictTotal.WithLabelValues(strategy).Inc()
}

func (m *Metrics) SetRemaining(slotDate string, remaining float64) {
	if m == nil {
		return
	}
	m.remainingSeats.WithLabelValues(slotDate).Set(remaining)
}
