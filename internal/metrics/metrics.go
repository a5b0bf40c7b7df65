// Package metrics provides Prometheus instrumentation for capture activity.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "inkwell"

// Metrics holds every collector. It satisfies capture.Recorder.
type Metrics struct {
	// Session metrics
	SessionsOpened prometheus.Counter
	Restarts       *prometheus.CounterVec
	ListeningGauge prometheus.Gauge

	// Retry metrics
	RetriesScheduled prometheus.Counter
	RetryDelay       prometheus.Histogram

	// Error metrics
	Errors *prometheus.CounterVec

	// Transcript metrics
	Commits        prometheus.Counter
	CommittedChars prometheus.Counter

	// Connectivity
	OnlineGauge prometheus.Gauge

	// Publish metrics
	PublishTotal  prometheus.Counter
	PublishErrors prometheus.Counter
}

// New creates and registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SessionsOpened: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_opened_total",
			Help:      "Total number of recognition sessions opened",
		}),
		Restarts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_restarts_total",
			Help:      "Total number of session restarts",
		}, []string{"reason"}),
		ListeningGauge: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "listening",
			Help:      "1 while the controller is listening",
		}),

		RetriesScheduled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_scheduled_total",
			Help:      "Total number of network retries scheduled",
		}),
		RetryDelay: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retry_delay_seconds",
			Help:      "Backoff delay of scheduled retries in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}),

		Errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total number of classified capture errors",
		}, []string{"kind"}),

		Commits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commits_total",
			Help:      "Total number of committed transcript growths",
		}),
		CommittedChars: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "committed_chars_total",
			Help:      "Total number of committed transcript characters",
		}),

		OnlineGauge: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online",
			Help:      "1 while the host is considered online",
		}),

		PublishTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_publish_total",
			Help:      "Total number of transcript events published",
		}),
		PublishErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_publish_errors_total",
			Help:      "Total number of transcript publish failures",
		}),
	}
}

// SessionOpened records a new recognition session.
func (m *Metrics) SessionOpened() {
	m.SessionsOpened.Inc()
}

// Restarted records a session restart for reason.
func (m *Metrics) Restarted(reason string) {
	m.Restarts.WithLabelValues(reason).Inc()
}

// RetryScheduled records a scheduled network retry.
func (m *Metrics) RetryScheduled(_ int, delay time.Duration) {
	m.RetriesScheduled.Inc()
	m.RetryDelay.Observe(delay.Seconds())
}

// ErrorObserved records a classified error.
func (m *Metrics) ErrorObserved(kind string) {
	m.Errors.WithLabelValues(kind).Inc()
}

// Committed records chars newly committed to the transcript.
func (m *Metrics) Committed(chars int) {
	m.Commits.Inc()
	m.CommittedChars.Add(float64(chars))
}

// Listening records the listening flag.
func (m *Metrics) Listening(on bool) {
	m.ListeningGauge.Set(boolValue(on))
}

// Online records the connectivity flag.
func (m *Metrics) Online(on bool) {
	m.OnlineGauge.Set(boolValue(on))
}

// RecordPublish records a transcript publish attempt.
func (m *Metrics) RecordPublish(err error) {
	m.PublishTotal.Inc()
	if err != nil {
		m.PublishErrors.Inc()
	}
}

func boolValue(on bool) float64 {
	if on {
		return 1
	}
	return 0
}
