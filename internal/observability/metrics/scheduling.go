package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics tracks appointment lifecycle outcomes, slot queries and
// calendar mirroring.
type SchedulingMetrics struct {
	operations   *prometheus.CounterVec
	slotQueries  *prometheus.CounterVec
	openSlots    prometheus.Histogram
	calendarSync *prometheus.CounterVec
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "appointments",
			Name:      "operations_total",
			Help:      "Lifecycle operations by name and outcome",
		}, []string{"operation", "outcome"}),
		slotQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "slots",
			Name:      "validations_total",
			Help:      "Slot validations by decision",
		}, []string{"decision"}),
		openSlots: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "slots",
			Name:      "open_per_query",
			Help:      "Open slots returned per listing",
			Buckets:   prometheus.LinearBuckets(0, 4, 8),
		}),
		calendarSync: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "calendar",
			Name:      "sync_total",
			Help:      "Calendar mirror attempts by action and result",
		}, []string{"action", "result"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.operations, m.slotQueries, m.openSlots, m.calendarSync)
	return m
}

func (m *SchedulingMetrics) ObserveOperation(operation, outcome string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
}

func (m *SchedulingMetrics) ObserveValidation(decision string) {
	if m == nil {
		return
	}
	m.slotQueries.WithLabelValues(decision).Inc()
}

func (m *SchedulingMetrics) ObserveOpenSlots(count int) {
	if m == nil {
		return
	}
	m.openSlots.Observe(float64(count))
}

func (m *SchedulingMetrics) ObserveCalendarSync(action string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.calendarSync.WithLabelValues(action, result).Inc()
}
