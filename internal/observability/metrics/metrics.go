package metrics

import "github.com/prometheus/client_golang/prometheus"

// AgendaMetrics exposes counters/histograms for the scheduling grid and its
// calls to the clinic API.
type AgendaMetrics struct {
	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	mutations   *prometheus.CounterVec
	refetches   prometheus.Counter
	staleDrops  prometheus.Counter
	conflicts   prometheus.Counter
}

func NewAgendaMetrics(reg prometheus.Registerer) *AgendaMetrics {
	m := &AgendaMetrics{
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dental",
			Subsystem: "agenda",
			Name:      "api_requests_total",
			Help:      "Total requests sent to the clinic API",
		}, []string{"method", "endpoint", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dental",
			Subsystem: "agenda",
			Name:      "api_latency_seconds",
			Help:      "Latency of clinic API requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dental",
			Subsystem: "agenda",
			Name:      "mutations_total",
			Help:      "Appointment mutations by kind and outcome",
		}, []string{"kind", "outcome"}),
		refetches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dental",
			Subsystem: "agenda",
			Name:      "refetch_total",
			Help:      "Full refetches of the appointment collection",
		}),
		staleDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dental",
			Subsystem: "agenda",
			Name:      "stale_responses_total",
			Help:      "Refetch responses dropped because the view moved on or closed",
		}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dental",
			Subsystem: "agenda",
			Name:      "slot_conflicts_total",
			Help:      "Appointments hidden because another appointment won the same slot",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.apiRequests, m.apiLatency, m.mutations, m.refetches, m.staleDrops, m.conflicts)
	return m
}

func (m *AgendaMetrics) ObserveAPIRequest(method, endpoint, status string, seconds float64) {
	if m == nil {
		return
	}
	m.apiRequests.WithLabelValues(method, endpoint, status).Inc()
	m.apiLatency.WithLabelValues(method, endpoint).Observe(seconds)
}

// ObserveMutation counts a create/status/delete attempt.
func (m *AgendaMetrics) ObserveMutation(kind string, ok bool) {
	if m == nil {
		return
	}
	outcome := "error"
	if ok {
		outcome = "success"
	}
	m.mutations.WithLabelValues(kind, outcome).Inc()
}

func (m *AgendaMetrics) ObserveRefetch() {
	if m == nil {
		return
	}
	m.refetches.Inc()
}

func (m *AgendaMetrics) ObserveStaleResponse() {
	if m == nil {
		return
	}
	m.staleDrops.Inc()
}

func (m *AgendaMetrics) ObserveConflicts(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.conflicts.Add(float64(n))
}
