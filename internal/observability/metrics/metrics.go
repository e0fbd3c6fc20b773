package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the booking workflow.
type BookingMetrics struct {
	createdTotal       *prometheus.CounterVec
	rejectionsTotal    *prometheus.CounterVec
	rollbacksTotal     prometheus.Counter
	sideEffectFailures *prometheus.CounterVec
	cancellationsTotal *prometheus.CounterVec
	workflowSeconds    *prometheus.HistogramVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		createdTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "workflow",
			Name:      "created_total",
			Help:      "Bookings created, by path (single|batch) and outcome",
		}, []string{"path", "status"}),
		rejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "workflow",
			Name:      "rejections_total",
			Help:      "Booking requests rejected by a policy gate",
		}, []string{"rule"}),
		rollbacksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "workflow",
			Name:      "rollbacks_total",
			Help:      "Bookings undone after a side-effect failure",
		}),
		sideEffectFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "workflow",
			Name:      "side_effect_failures_total",
			Help:      "Failed post-persist side effects",
		}, []string{"effect"}),
		cancellationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "workflow",
			Name:      "cancellations_total",
			Help:      "Cancelled bookings, split by late cancellation",
		}, []string{"late"}),
		workflowSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "booking",
			Subsystem: "workflow",
			Name:      "phase_seconds",
			Help:      "Duration of booking workflow phases",
			Buckets:   prometheus.DefBuckets,
		}, []string{"phase"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.createdTotal, m.rejectionsTotal, m.rollbacksTotal, m.sideEffectFailures, m.cancellationsTotal, m.workflowSeconds)
	return m
}

func (m *BookingMetrics) ObserveCreated(path, status string) {
	if m == nil {
		return
	}
	m.createdTotal.WithLabelValues(path, status).Inc()
}

func (m *BookingMetrics) ObserveRejection(rule string) {
	if m == nil {
		return
	}
	m.rejectionsTotal.WithLabelValues(rule).Inc()
}

func (m *BookingMetrics) ObserveRollback() {
	if m == nil {
		return
	}
	m.rollbacksTotal.Inc()
}

func (m *BookingMetrics) ObserveSideEffectFailure(effect string) {
	if m == nil {
		return
	}
	m.sideEffectFailures.WithLabelValues(effect).Inc()
}

func (m *BookingMetrics) ObserveCancellation(late bool) {
	if m == nil {
		return
	}
	label := "false"
	if late {
		label = "true"
	}
	m.cancellationsTotal.WithLabelValues(label).Inc()
}

func (m *BookingMetrics) ObservePhase(phase string, seconds float64) {
	if m == nil {
		return
	}
	m.workflowSeconds.WithLabelValues(phase).Observe(seconds)
}

// WorkerMetrics tracks scheduled message delivery and outbox draining.
type WorkerMetrics struct {
	messagesTotal *prometheus.CounterVec
	outboxTotal   *prometheus.CounterVec
}

func NewWorkerMetrics(reg prometheus.Registerer) *WorkerMetrics {
	m := &WorkerMetrics{
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "worker",
			Name:      "scheduled_messages_total",
			Help:      "Scheduled WhatsApp messages processed, by kind and outcome",
		}, []string{"kind", "status"}),
		outboxTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "worker",
			Name:      "outbox_events_total",
			Help:      "Outbox events dispatched, by event type and outcome",
		}, []string{"event_type", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.messagesTotal, m.outboxTotal)
	return m
}

func (m *WorkerMetrics) ObserveMessage(kind, status string) {
	if m == nil {
		return
	}
	m.messagesTotal.WithLabelValues(kind, status).Inc()
}

func (m *WorkerMetrics) ObserveOutbox(eventType, status string) {
	if m == nil {
		return
	}
	m.outboxTotal.WithLabelValues(eventType, status).Inc()
}
