package observability

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/birda/internal/observability/metrics"
)

func TestPipelineMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)

	p := m.Pipeline
	p.RecordFile(metrics.StatusProcessed, 1.5, 60, 20)
	p.RecordFile(metrics.StatusProcessed, 0.5, 30, 10)
	p.RecordFile(metrics.StatusFailed, 0.1, 0, 0)
	p.RecordDetection("Parus major")
	p.RecordDetection("Parus major")
	p.RecordInference("birdnet-v24", 0.02, nil)
	p.RecordInference("birdnet-v24", 0, errors.New("invoke failed"))

	assert.InDelta(t, 2, testutil.ToFloat64(p.FilesTotal.WithLabelValues(metrics.StatusProcessed)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(p.FilesTotal.WithLabelValues(metrics.StatusFailed)), 0)
	assert.InDelta(t, 90, testutil.ToFloat64(p.AudioSeconds), 1e-9)
	assert.InDelta(t, 30, testutil.ToFloat64(p.SegmentsTotal), 1e-9)
	assert.InDelta(t, 2, testutil.ToFloat64(p.DetectionsTotal.WithLabelValues("Parus major")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(p.InferenceTotal.WithLabelValues("birdnet-v24", "error")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(p.InferenceTotal.WithLabelValues("birdnet-v24", "success")), 0)
}

func TestClipMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)

	m.Clip.RecordClip("written", 8)
	m.Clip.RecordClip("skipped", 8)
	assert.InDelta(t, 8, testutil.ToFloat64(m.Clip.ClipSeconds), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Clip.ClipsTotal.WithLabelValues("skipped")), 0)
}

func TestWriteTextfile(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)
	m.Pipeline.RecordFile(metrics.StatusProcessed, 1, 3, 1)
	m.Pipeline.RealtimeFactor.Set(12.5)

	path := filepath.Join(t.TempDir(), "nested", "birda.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `birda_files_total{status="processed"} 1`)
	assert.Contains(t, text, "birda_realtime_factor 12.5")
}
