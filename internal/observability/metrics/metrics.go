package metrics

import "github.com/prometheus/client_golang/prometheus"

// PlatformMetrics exposes counters/histograms for the SMS lifecycle flows.
type PlatformMetrics struct {
	inboundTotal    *prometheus.CounterVec
	repliesTotal    *prometheus.CounterVec
	webhookLatency  *prometheus.HistogramVec
	remindersTotal  *prometheus.CounterVec
	sweepDuration   prometheus.Histogram
	escalationTotal prometheus.Counter
}

func NewPlatformMetrics(reg prometheus.Registerer) *PlatformMetrics {
	m := &PlatformMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookline",
			Subsystem: "messaging",
			Name:      "inbound_webhook_total",
			Help:      "Total inbound SMS webhooks",
		}, []string{"event_type", "status"}),
		repliesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookline",
			Subsystem: "conversation",
			Name:      "replies_total",
			Help:      "Total engine replies by intent and outcome",
		}, []string{"intent", "outcome"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bookline",
			Subsystem: "messaging",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of inbound webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event_type"}),
		remindersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookline",
			Subsystem: "reminders",
			Name:      "processed_total",
			Help:      "Reminder sweep outcomes",
		}, []string{"result"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "bookline",
			Subsystem: "reminders",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of one reminder sweep",
			Buckets:   prometheus.DefBuckets,
		}),
		escalationTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bookline",
			Subsystem: "reschedule",
			Name:      "escalations_total",
			Help:      "Reschedule requests escalated past their SLA",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.repliesTotal, m.webhookLatency,
		m.remindersTotal, m.sweepDuration, m.escalationTotal)
	return m
}

func (m *PlatformMetrics) ObserveInbound(eventType, status string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(eventType, status).Inc()
}

func (m *PlatformMetrics) ObserveReply(intent, outcome string) {
	if m == nil {
		return
	}
	m.repliesTotal.WithLabelValues(intent, outcome).Inc()
}

func (m *PlatformMetrics) ObserveWebhookLatency(eventType string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(eventType).Observe(seconds)
}

// ObserveSweep records one sweep's tallies and duration.
func (m *PlatformMetrics) ObserveSweep(sent, skipped, errored int, seconds float64) {
	if m == nil {
		return
	}
	m.remindersTotal.WithLabelValues("sent").Add(float64(sent))
	m.remindersTotal.WithLabelValues("skipped").Add(float64(skipped))
	m.remindersTotal.WithLabelValues("errored").Add(float64(errored))
	m.sweepDuration.Observe(seconds)
}

func (m *PlatformMetrics) ObserveEscalations(n int64) {
	if m == nil {
		return
	}
	m.escalationTotal.Add(float64(n))
}
