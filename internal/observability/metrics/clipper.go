package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// ClipMetrics contains metrics for clip extraction.
type ClipMetrics struct {
	ClipsTotal   *prometheus.CounterVec
	ClipSeconds  prometheus.Counter
	SourceDecode prometheus.Histogram
}

// NewClipMetrics creates and registers clip extraction metrics.
func NewClipMetrics(registry prometheus.Registerer) (*ClipMetrics, error) {
	m := &ClipMetrics{
		ClipsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "birda_clips_total",
				Help: "Clips handled, partitioned by outcome (written, skipped, failed).",
			},
			[]string{"status"},
		),
		ClipSeconds: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "birda_clip_seconds_total",
				Help: "Seconds of audio written to clips.",
			},
		),
		SourceDecode: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "birda_clip_source_decode_seconds",
				Help:    "Time taken to decode one clip source file.",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register clip metrics: %w", err)
	}
	return m, nil
}

// RecordClip records one clip outcome and, when written, its length.
func (m *ClipMetrics) RecordClip(status string, seconds float64) {
	m.ClipsTotal.WithLabelValues(status).Inc()
	if status == "written" {
		m.ClipSeconds.Add(seconds)
	}
}

// Describe implements the prometheus.Collector interface.
func (m *ClipMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.ClipsTotal.Describe(ch)
	ch <- m.ClipSeconds.Desc()
	ch <- m.SourceDecode.Desc()
}

// Collect implements the prometheus.Collector interface.
func (m *ClipMetrics) Collect(ch chan<- prometheus.Metric) {
	m.ClipsTotal.Collect(ch)
	ch <- m.ClipSeconds
	ch <- m.SourceDecode
}
