package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the run counters in a dedicated Prometheus registry plus the
// health status reported on /health.
type Metrics struct {
	mu sync.RWMutex

	registry *prometheus.Registry

	articlesCollected prometheus.Counter
	sourceFailures    *prometheus.CounterVec
	synthesisAttempts prometheus.Counter
	synthesisOutcomes *prometheus.CounterVec
	storiesWritten    prometheus.Counter
	storiesDropped    prometheus.Counter
	runDuration       prometheus.Gauge
	lastSuccess       prometheus.Gauge

	// Status
	LastRunTime   time.Time
	LastErrorTime time.Time
	LastError     string
	IsHealthy     bool
}

var Global = New()

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		articlesCollected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hunews_articles_collected_total",
			Help: "Articles collected from all sources.",
		}),
		sourceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hunews_source_failures_total",
			Help: "Sources excluded from a run, by source and failure kind.",
		}, []string{"source", "kind"}),
		synthesisAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hunews_synthesis_attempts_total",
			Help: "Model calls made for synthesis.",
		}),
		synthesisOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hunews_synthesis_outcomes_total",
			Help: "Synthesis results by outcome.",
		}, []string{"outcome"}),
		storiesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hunews_stories_written_total",
			Help: "Stories persisted to the archive.",
		}),
		storiesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hunews_stories_dropped_total",
			Help: "Stories dropped because the model output failed validation.",
		}),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hunews_last_run_duration_seconds",
			Help: "Duration of the last pipeline run.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hunews_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run.",
		}),
		IsHealthy: true,
	}

	m.registry.MustRegister(
		m.articlesCollected,
		m.sourceFailures,
		m.synthesisAttempts,
		m.synthesisOutcomes,
		m.storiesWritten,
		m.storiesDropped,
		m.runDuration,
		m.lastSuccess,
	)
	return m
}

func (m *Metrics) AddArticles(n int) {
	m.articlesCollected.Add(float64(n))
}

func (m *Metrics) SourceFailed(source, kind string) {
	m.sourceFailures.WithLabelValues(source, kind).Inc()
}

func (m *Metrics) AddSynthesisAttempts(n int) {
	m.synthesisAttempts.Add(float64(n))
}

// SynthesisOutcome counts one synthesis result: "success", "error" or "aborted".
func (m *Metrics) SynthesisOutcome(outcome string) {
	m.synthesisOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) AddStoriesWritten(n int) {
	m.storiesWritten.Add(float64(n))
}

func (m *Metrics) AddStoriesDropped(n int) {
	m.storiesDropped.Add(float64(n))
}

// RecordRun stores the duration and status of a finished run.
func (m *Metrics) RecordRun(duration time.Duration, err error) {
	m.runDuration.Set(duration.Seconds())

	m.mu.Lock()
	defer m.mu.Unlock()

	m.LastRunTime = time.Now()
	if err != nil {
		m.LastError = err.Error()
		m.LastErrorTime = m.LastRunTime
		m.IsHealthy = false
		return
	}
	m.IsHealthy = true
	m.lastSuccess.Set(float64(m.LastRunTime.Unix()))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WriteTextfile writes the registry for the node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := map[string]interface{}{
		"last_error": m.LastError,
		"is_healthy": m.IsHealthy,
	}
	if !m.LastRunTime.IsZero() {
		stats["last_run_time"] = m.LastRunTime.Format(time.RFC3339)
	}
	if !m.LastErrorTime.IsZero() {
		stats["last_error_time"] = m.LastErrorTime.Format(time.RFC3339)
	}
	return stats
}
