package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsService exposes engine counters and timings to Prometheus.
type MetricsService struct {
	buildsTotal       *prometheus.CounterVec
	optimizeRuns      prometheus.Counter
	optimizeDuration  prometheus.Histogram
	validationsTotal  *prometheus.CounterVec
	reservationsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

// NewMetricsService registers engine metrics on the given registerer.
func NewMetricsService(reg prometheus.Registerer) *MetricsService {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &MetricsService{
		buildsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "timetable_builds_total",
			Help: "Timetable build runs by outcome.",
		}, []string{"outcome"}),
		optimizeRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "timetable_optimize_runs_total",
			Help: "Optimizer runs started.",
		}),
		optimizeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "timetable_optimize_duration_seconds",
			Help:    "Wall time of optimizer runs.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		validationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "timetable_validations_total",
			Help: "Validation passes by verdict.",
		}, []string{"verdict"}),
		reservationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reservations_processed_total",
			Help: "Reservation confirm attempts by result.",
		}, []string{"result"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(m.buildsTotal, m.optimizeRuns, m.optimizeDuration, m.validationsTotal, m.reservationsTotal, m.httpDuration)
	return m
}

// ObserveBuild records one build run outcome.
func (m *MetricsService) ObserveBuild(success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.buildsTotal.WithLabelValues(outcome).Inc()
}

// ObserveOptimize records one optimizer run.
func (m *MetricsService) ObserveOptimize(elapsed time.Duration) {
	m.optimizeRuns.Inc()
	m.optimizeDuration.Observe(elapsed.Seconds())
}

// ObserveValidation records one validation pass.
func (m *MetricsService) ObserveValidation(validated bool) {
	verdict := "validated"
	if !validated {
		verdict = "rejected"
	}
	m.validationsTotal.WithLabelValues(verdict).Inc()
}

// ObserveReservation records one reservation attempt.
func (m *MetricsService) ObserveReservation(confirmed bool) {
	result := "confirmed"
	if !confirmed {
		result = "failed"
	}
	m.reservationsTotal.WithLabelValues(result).Inc()
}

// ObserveHTTP records one request observation.
func (m *MetricsService) ObserveHTTP(method, route, status string, elapsed time.Duration) {
	m.httpDuration.WithLabelValues(method, route, status).Observe(elapsed.Seconds())
}
