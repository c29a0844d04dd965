package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/content-analyzer/internal/core/domain"
)

// JobMetrics records job lifecycle and outbound resilience measurements.
type JobMetrics struct {
	service string

	submittedTotal   prometheus.Counter
	inFlight         prometheus.Gauge
	finishedTotal    *prometheus.CounterVec
	jobDuration      *prometheus.HistogramVec
	stageDuration    *prometheus.HistogramVec
	extractionTotal  *prometheus.CounterVec
	extractedChars   *prometheus.HistogramVec
	suggestionsCount prometheus.Histogram
	retriesTotal     *prometheus.CounterVec
	breakerState     *prometheus.GaugeVec
}

func NewJobMetrics(registry *prometheus.Registry, service string) *JobMetrics {
	constLabels := prometheus.Labels{"service": service}

	m := &JobMetrics{
		service: service,
		submittedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "jobs",
			Name:        "submitted_total",
			Help:        "Total accepted uploads.",
			ConstLabels: constLabels,
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "jobs",
			Name:        "in_flight",
			Help:        "Jobs currently holding a processing slot.",
			ConstLabels: constLabels,
		}),
		finishedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "finished_total",
			Help:      "Total finished jobs by status.",
		}, []string{"service", "status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "duration_seconds",
			Help:      "Job processing duration in seconds by status.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"service", "status"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "stage_duration_seconds",
			Help:      "Duration of extraction and suggestion stages.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"service", "stage", "outcome"}),
		extractionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extraction",
			Name:      "total",
			Help:      "Successful extractions by method.",
		}, []string{"service", "method"}),
		extractedChars: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "extraction",
			Name:      "chars",
			Help:      "Characters of extracted text per job.",
			Buckets:   []float64{0, 10, 100, 500, 1000, 5000, 20000, 100000},
		}, []string{"service", "method"}),
		suggestionsCount: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "suggestions",
			Name:        "per_job",
			Help:        "Suggestions returned per successful generation.",
			Buckets:     []float64{0, 1, 2, 3, 4, 5, 8},
			ConstLabels: constLabels,
		}),
		retriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "retries_total",
			Help:      "Retries of outbound operations.",
		}, []string{"service", "operation"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "breaker_open",
			Help:      "Circuit breaker state per operation: 0 closed, 0.5 half-open, 1 open.",
		}, []string{"service", "operation"}),
	}

	registry.MustRegister(
		m.submittedTotal,
		m.inFlight,
		m.finishedTotal,
		m.jobDuration,
		m.stageDuration,
		m.extractionTotal,
		m.extractedChars,
		m.suggestionsCount,
		m.retriesTotal,
		m.breakerState,
	)
	return m
}

func (m *JobMetrics) ObserveJobSubmitted() {
	m.submittedTotal.Inc()
}

func (m *JobMetrics) ObserveJobsInFlight(delta int) {
	m.inFlight.Add(float64(delta))
}

func (m *JobMetrics) ObserveStage(stage, outcome string, elapsed time.Duration) {
	m.stageDuration.WithLabelValues(m.service, stage, outcome).Observe(elapsed.Seconds())
}

func (m *JobMetrics) ObserveExtraction(method domain.ExtractionMethod, chars int) {
	label := string(method)
	if label == "" {
		label = "unknown"
	}
	m.extractionTotal.WithLabelValues(m.service, label).Inc()
	m.extractedChars.WithLabelValues(m.service, label).Observe(float64(chars))
}

func (m *JobMetrics) ObserveSuggestions(count int) {
	m.suggestionsCount.Observe(float64(count))
}

func (m *JobMetrics) ObserveJobFinished(status domain.JobStatus, elapsed time.Duration) {
	if elapsed < 0 {
		elapsed = 0
	}
	m.finishedTotal.WithLabelValues(m.service, string(status)).Inc()
	m.jobDuration.WithLabelValues(m.service, string(status)).Observe(elapsed.Seconds())
}

func (m *JobMetrics) ObserveRetry(operation string) {
	m.retriesTotal.WithLabelValues(m.service, operation).Inc()
}

func (m *JobMetrics) ObserveBreakerState(operation string, state string) {
	value := 0.0
	switch state {
	case "open":
		value = 1
	case "half-open":
		value = 0.5
	}
	m.breakerState.WithLabelValues(m.service, operation).Set(value)
}
