// Package metrics exposes the Prometheus collectors of the service. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "auditdesk"

// Analysis outcomes.
const (
	AnalysisStored    = "stored"
	AnalysisGenerated = "generated"
	AnalysisFailed    = "failed"
	AnalysisInFlight  = "in_flight"
)

type Metrics struct {
	gatherer prometheus.Gatherer

	reviewsTotal       *prometheus.CounterVec
	issueMutations     *prometheus.CounterVec
	correctiveActions  prometheus.Counter
	resubmissions      prometheus.Counter
	analysisTotal      *prometheus.CounterVec
	analysisDuration   prometheus.Histogram
	dashboardDegraded  prometheus.Counter
	dashboardDuration  prometheus.Histogram
	websocketConnected prometheus.Gauge
}

// New registers the collectors on reg. Pass prometheus.NewRegistry() in tests.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		gatherer: reg,
		reviewsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "form_reviews_total",
			Help:      "Form review decisions by resulting status.",
		}, []string{"status"}),
		issueMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "issue_mutations_total",
			Help:      "Issue writes by operation.",
		}, []string{"op"}),
		correctiveActions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "corrective_actions_created_total",
			Help:      "Corrective actions recorded by outlets.",
		}),
		resubmissions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "form_resubmissions_total",
			Help:      "Forms resubmitted by outlets.",
		}),
		analysisTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_requests_total",
			Help:      "Analysis requests by outcome.",
		}, []string{"outcome"}),
		analysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Time spent generating an analysis.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
		}),
		dashboardDegraded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dashboard_degraded_total",
			Help:      "Dashboard snapshots replaced by the empty fallback.",
		}),
		dashboardDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dashboard_snapshot_duration_seconds",
			Help:      "Time spent computing a dashboard snapshot.",
			Buckets:   prometheus.DefBuckets,
		}),
		websocketConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_connections",
			Help:      "Open form event websocket connections.",
		}),
	}

	reg.MustRegister(
		m.reviewsTotal,
		m.issueMutations,
		m.correctiveActions,
		m.resubmissions,
		m.analysisTotal,
		m.analysisDuration,
		m.dashboardDegraded,
		m.dashboardDuration,
		m.websocketConnected,
	)

	return m
}

// NewDefault builds a registry that also carries the Go runtime and process
// collectors.
func NewDefault() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return New(reg)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) Review(status string) {
	if m == nil {
		return
	}
	m.reviewsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) IssueMutation(op string) {
	if m == nil {
		return
	}
	m.issueMutations.WithLabelValues(op).Inc()
}

func (m *Metrics) CorrectiveActionCreated() {
	if m == nil {
		return
	}
	m.correctiveActions.Inc()
}

func (m *Metrics) Resubmission() {
	if m == nil {
		return
	}
	m.resubmissions.Inc()
}

func (m *Metrics) Analysis(outcome string) {
	if m == nil {
		return
	}
	m.analysisTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) AnalysisDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.analysisDuration.Observe(d.Seconds())
}

func (m *Metrics) DashboardDegraded() {
	if m == nil {
		return
	}
	m.dashboardDegraded.Inc()
}

func (m *Metrics) DashboardDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.dashboardDuration.Observe(d.Seconds())
}

// WebsocketOpened increments the open connection gauge and returns the
// matching decrement.
func (m *Metrics) WebsocketOpened() func() {
	if m == nil {
		return func() {}
	}
	m.websocketConnected.Inc()
	return m.websocketConnected.Dec
}
