// Package metrics provides custom Prometheus metrics for birda runs.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// File outcome label values.
const (
	StatusProcessed = "processed"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
	StatusLocked    = "locked"
)

// PipelineMetrics contains all Prometheus metrics related to analysis runs.
type PipelineMetrics struct {
	FilesTotal        *prometheus.CounterVec
	DetectionsTotal   *prometheus.CounterVec
	SegmentsTotal     prometheus.Counter
	AudioSeconds      prometheus.Counter
	FileDuration      prometheus.Histogram
	InferenceDuration *prometheus.HistogramVec
	InferenceTotal    *prometheus.CounterVec
	StaleLocksRemoved prometheus.Counter
	RealtimeFactor    prometheus.Gauge
}

// NewPipelineMetrics creates and registers pipeline metrics.
func NewPipelineMetrics(registry prometheus.Registerer) (*PipelineMetrics, error) {
	m := &PipelineMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register pipeline metrics: %w", err)
	}
	return m, nil
}

func (m *PipelineMetrics) initMetrics() {
	m.FilesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "birda_files_total",
			Help: "Input files handled, partitioned by outcome.",
		},
		[]string{"status"},
	)
	m.DetectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "birda_detections_total",
			Help: "Detections written, partitioned by scientific name.",
		},
		[]string{"species"},
	)
	m.SegmentsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "birda_segments_total",
			Help: "Audio segments classified.",
		},
	)
	m.AudioSeconds = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "birda_audio_seconds_total",
			Help: "Seconds of audio analysed.",
		},
	)
	m.FileDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "birda_file_duration_seconds",
			Help:    "Wall time spent processing one input file.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~3.4min
		},
	)
	m.InferenceDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "birda_inference_duration_seconds",
			Help:    "Time taken by one classifier call.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		},
		[]string{"model"},
	)
	m.InferenceTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "birda_inference_calls_total",
			Help: "Classifier calls, partitioned by model and status.",
		},
		[]string{"model", "status"},
	)
	m.StaleLocksRemoved = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "birda_stale_locks_removed_total",
			Help: "Stale lock files removed before processing.",
		},
	)
	m.RealtimeFactor = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "birda_realtime_factor",
			Help: "Audio seconds analysed per wall clock second in the last run.",
		},
	)
}

// RecordFile records the outcome of one input file.
func (m *PipelineMetrics) RecordFile(status string, durationSeconds, audioSeconds float64, segments int) {
	m.FilesTotal.WithLabelValues(status).Inc()
	if status != StatusProcessed {
		return
	}
	m.FileDuration.Observe(durationSeconds)
	m.AudioSeconds.Add(audioSeconds)
	m.SegmentsTotal.Add(float64(segments))
}

// RecordDetection counts one written detection.
func (m *PipelineMetrics) RecordDetection(species string) {
	m.DetectionsTotal.WithLabelValues(species).Inc()
}

// RecordInference records one classifier call.
func (m *PipelineMetrics) RecordInference(model string, durationSeconds float64, err error) {
	if err != nil {
		m.InferenceTotal.WithLabelValues(model, "error").Inc()
		return
	}
	m.InferenceTotal.WithLabelValues(model, "success").Inc()
	m.InferenceDuration.WithLabelValues(model).Observe(durationSeconds)
}

// Describe implements the prometheus.Collector interface.
func (m *PipelineMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.FilesTotal.Describe(ch)
	m.DetectionsTotal.Describe(ch)
	ch <- m.SegmentsTotal.Desc()
	ch <- m.AudioSeconds.Desc()
	ch <- m.FileDuration.Desc()
	m.InferenceDuration.Describe(ch)
	m.InferenceTotal.Describe(ch)
	ch <- m.StaleLocksRemoved.Desc()
	ch <- m.RealtimeFactor.Desc()
}

// Collect implements the prometheus.Collector interface.
func (m *PipelineMetrics) Collect(ch chan<- prometheus.Metric) {
	m.FilesTotal.Collect(ch)
	m.DetectionsTotal.Collect(ch)
	ch <- m.SegmentsTotal
	ch <- m.AudioSeconds
	ch <- m.FileDuration
	m.InferenceDuration.Collect(ch)
	m.InferenceTotal.Collect(ch)
	ch <- m.StaleLocksRemoved
	ch <- m.RealtimeFactor
}
