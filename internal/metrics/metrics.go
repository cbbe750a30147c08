// Package metrics exposes Prometheus counters for Lectern operations.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	LectureOps        *prometheus.CounterVec
	Recordings        *prometheus.CounterVec
	RecordedSeconds   prometheus.Histogram
	TranscriptionJobs *prometheus.CounterVec
	AssistantQueries  *prometheus.CounterVec
	Exports           *prometheus.CounterVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		LectureOps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lectern",
			Name:      "lecture_operations_total",
			Help:      "Lecture store mutations by operation.",
		}, []string{"op"}),
		Recordings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lectern",
			Name:      "recordings_total",
			Help:      "Recording sessions by outcome.",
		}, []string{"outcome"}),
		RecordedSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lectern",
			Name:      "recording_duration_seconds",
			Help:      "Length of saved recordings.",
			Buckets:   []float64{30, 60, 300, 900, 1800, 3600, 7200},
		}),
		TranscriptionJobs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lectern",
			Name:      "transcription_jobs_total",
			Help:      "Transcription and summary jobs by kind and final status.",
		}, []string{"kind", "status"}),
		AssistantQueries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lectern",
			Name:      "assistant_queries_total",
			Help:      "Assistant queries by response category.",
		}, []string{"category"}),
		Exports: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lectern",
			Name:      "exports_total",
			Help:      "Document exports by format and status.",
		}, []string{"format", "status"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
