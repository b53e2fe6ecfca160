// Package observability holds the Prometheus registry of a birda run and
// exports it as a node_exporter textfile when requested.
package observability

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tphakala/birda/internal/errors"
	"github.com/tphakala/birda/internal/logger"
	"github.com/tphakala/birda/internal/observability/metrics"
)

// Metrics holds all the metric collectors for a run.
type Metrics struct {
	registry *prometheus.Registry
	Pipeline *metrics.PipelineMetrics
	Clip     *metrics.ClipMetrics
}

// GetLogger returns the observability package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("observability")
}

// NewMetrics creates a fresh registry with all birda collectors registered.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	pipelineMetrics, err := metrics.NewPipelineMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline metrics: %w", err)
	}

	clipMetrics, err := metrics.NewClipMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create clip metrics: %w", err)
	}

	return &Metrics{
		registry: registry,
		Pipeline: pipelineMetrics,
		Clip:     clipMetrics,
	}, nil
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes all metrics in the text exposition format. The file
// is replaced atomically so a collector never reads a partial file.
func (m *Metrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.New(fmt.Errorf("failed to create metrics directory: %w", err)).
			Component("observability").
			Category(errors.CategoryFileIO).
			FileContext(path).
			Build()
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return errors.New(fmt.Errorf("failed to write metrics file: %w", err)).
			Component("observability").
			Category(errors.CategoryFileIO).
			FileContext(path).
			Build()
	}
	GetLogger().Debug("metrics written", logger.String("path", path))
	return nil
}
