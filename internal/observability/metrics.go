// README: Prometheus metrics for lifecycle sweeps, allocations and HTTP traffic.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is nil-safe: every Observe* method is a no-op on a nil receiver.
type Metrics struct {
	SweepsTotal      *prometheus.CounterVec
	SweepDuration    prometheus.Histogram
	AutoAssigned     prometheus.Counter
	AutoCancelled    prometheus.Counter
	Allocations      *prometheus.CounterVec
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
	DriversAvailable *prometheus.GaugeVec
}

// NewMetrics registers all collectors on reg under the given namespace.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SweepsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lifecycle_sweeps_total",
			Help:      "Lifecycle sweeps by result",
		}, []string{"result"}),
		SweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lifecycle_sweep_duration_seconds",
			Help:      "Time spent in one lifecycle sweep",
			Buckets:   prometheus.DefBuckets,
		}),
		AutoAssigned: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_auto_assigned_total",
			Help:      "Bookings assigned by the lifecycle sweep",
		}),
		AutoCancelled: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_auto_cancelled_total",
			Help:      "Bookings auto-cancelled after the cancel deadline",
		}),
		Allocations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "allocations_total",
			Help:      "Allocation attempts by outcome",
		}, []string{"outcome"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests handled",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		DriversAvailable: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hospital_drivers",
			Help:      "Drivers per hospital and availability, sampled on overview reads",
		}, []string{"hospital", "availability"}),
	}
}

func (m *Metrics) ObserveSweep(assigned, cancelled int, err error, d time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.SweepsTotal.WithLabelValues(result).Inc()
	m.SweepDuration.Observe(d.Seconds())
	m.AutoAssigned.Add(float64(assigned))
	m.AutoCancelled.Add(float64(cancelled))
}

func (m *Metrics) ObserveSkippedSweep() {
	if m == nil {
		return
	}
	m.SweepsTotal.WithLabelValues("skipped").Inc()
}

func (m *Metrics) ObserveAllocation(outcome string) {
	if m == nil {
		return
	}
	m.Allocations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveHTTP(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, status).Inc()
	m.HTTPDuration.WithLabelValues(method, route, status).Observe(d.Seconds())
}

func (m *Metrics) SetDriverCount(hospital, availability string, n int) {
	if m == nil {
		return
	}
	m.DriversAvailable.WithLabelValues(hospital, availability).Set(float64(n))
}
