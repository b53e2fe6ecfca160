package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/birda/internal/errors"
	"github.com/tphakala/birda/internal/events"
	"github.com/tphakala/birda/internal/locking"
	"github.com/tphakala/birda/internal/logger"
	"github.com/tphakala/birda/internal/myaudio"
	"github.com/tphakala/birda/internal/observability"
	"github.com/tphakala/birda/internal/observability/metrics"
	"github.com/tphakala/birda/internal/output"
	"github.com/tphakala/birda/internal/reporter"
)

// RunnerConfig holds the run-level settings.
type RunnerConfig struct {
	OutputDir        string // empty writes next to each input
	Force            bool
	FailFast         bool
	StaleLockTimeout time.Duration // zero disables stale lock recovery
	Combine          bool
	CombinedPrefix   string
	MetricsFile      string
}

// Stats accumulates file outcomes over a run.
type Stats struct {
	Processed       int
	Failed          int
	Skipped         int
	TotalDetections int
	TotalSegments   int
	AudioSeconds    float64
	Duration        time.Duration
	CombinedOutputs []string
}

// RealtimeFactor is analysed audio seconds per wall clock second.
func (s *Stats) RealtimeFactor() float64 {
	secs := s.Duration.Seconds()
	if secs <= 0 {
		return 0
	}
	return s.AudioSeconds / secs
}

// Status is the overall pipeline status.
func (s *Stats) Status() events.PipelineStatus {
	return events.StatusFor(s.Processed, s.Failed)
}

// Runner processes a list of files and reports every milestone.
type Runner struct {
	processor *Processor
	reporter  reporter.Reporter
	metrics   *observability.Metrics
	cfg       RunnerConfig
	runID     string
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.New().String()
}

// NewRunner creates a runner. The processor's run id, if set, identifies
// the run in events and lock files; otherwise a new one is generated.
func NewRunner(processor *Processor, rep reporter.Reporter, m *observability.Metrics, cfg RunnerConfig) *Runner {
	if rep == nil {
		rep = reporter.Null{}
	}
	if cfg.CombinedPrefix == "" {
		cfg.CombinedPrefix = "BirdNET"
	}
	if processor.opts.RunID == "" {
		processor.opts.RunID = NewRunID()
	}
	if m != nil && processor.metrics == nil {
		processor.metrics = m.Pipeline
	}
	return &Runner{
		processor: processor,
		reporter:  rep,
		metrics:   m,
		cfg:       cfg,
		runID:     processor.opts.RunID,
	}
}

// RunID returns the run identifier.
func (r *Runner) RunID() string { return r.runID }

// Run processes files in order. It returns an error when fail-fast stopped
// the run or ctx was cancelled; failed files otherwise only count in Stats.
// A fail-fast error is reported as a fatal error event before
// pipeline_completed and comes back marked with errors.Reported.
func (r *Runner) Run(ctx context.Context, files []string) (*Stats, error) {
	start := time.Now()
	opts := &r.processor.opts
	log := GetLogger().With(logger.String("run_id", r.runID))

	r.reporter.PipelineStarted(events.PipelineStartedPayload{
		TotalFiles:    len(files),
		Model:         opts.ModelName,
		MinConfidence: opts.MinConfidence,
		RunID:         r.runID,
	})
	log.Info("pipeline started", logger.Int("files", len(files)))

	stats := &Stats{}
	var combined []output.Detection
	var failErr error

	for i, file := range files {
		if ctx.Err() != nil {
			return stats, r.cancel(stats, i, len(files))
		}

		outputDir := OutputDirFor(file, r.cfg.OutputDir)
		r.recoverStaleLock(file, outputDir)

		switch ShouldProcess(file, outputDir, opts.Formats, r.cfg.Force, opts.StdoutMode) {
		case SkipLocked:
			log.Info("skipping locked file", logger.String("file", file))
			r.skip(stats, file, events.FileLocked, metrics.StatusLocked)
			r.batchProgress(i+1, len(files))
			continue
		case SkipExists:
			log.Info("skipping file with existing output", logger.String("file", file))
			r.skip(stats, file, events.FileSkipped, metrics.StatusSkipped)
			r.batchProgress(i+1, len(files))
			continue
		case Process:
		}

		started := events.FileStartedPayload{File: file, Index: i}
		if duration, err := myaudio.ProbeDuration(file); err == nil && duration > 0 {
			started.DurationSeconds = &duration
			started.EstimatedSegments = myaudio.EstimateSegments(duration, r.processor.classifier.SegmentDuration(), opts.Overlap)
		}
		r.reporter.FileStarted(started)

		fileStart := time.Now()
		res, err := r.processor.ProcessFile(ctx, file, outputDir, started.EstimatedSegments)
		elapsedMS := time.Since(fileStart).Milliseconds()

		if err != nil {
			if ctx.Err() != nil && errors.IsCategory(err, errors.CategoryCancellation) {
				return stats, r.cancel(stats, i, len(files))
			}
			// another process took the lock after ShouldProcess
			if errors.Is(err, locking.ErrFileLocked) {
				log.Info("skipping locked file", logger.String("file", file))
				r.skip(stats, file, events.FileLocked, metrics.StatusLocked)
				r.batchProgress(i+1, len(files))
				continue
			}
			stats.Failed++
			log.Error("file failed", logger.String("file", file), logger.Error(err))
			r.reporter.FileCompleted(events.FileCompletedPayload{
				File:       file,
				Status:     events.FileFailed,
				DurationMS: &elapsedMS,
				Error:      &events.FileError{Code: errors.Code(err), Message: err.Error()},
			})
			if r.metrics != nil {
				r.metrics.Pipeline.RecordFile(metrics.StatusFailed, time.Since(fileStart).Seconds(), 0, 0)
			}
			r.batchProgress(i+1, len(files))
			if r.cfg.FailFast {
				failErr = err
				break
			}
			continue
		}

		detections := len(res.Detections)
		stats.Processed++
		stats.TotalDetections += detections
		stats.TotalSegments += res.Segments
		stats.AudioSeconds += res.AudioDuration
		if r.cfg.Combine {
			combined = append(combined, res.Detections...)
		}
		r.reporter.FileCompleted(events.FileCompletedPayload{
			File:       file,
			Status:     events.FileProcessed,
			Detections: &detections,
			DurationMS: &elapsedMS,
		})
		if r.metrics != nil {
			r.metrics.Pipeline.RecordFile(metrics.StatusProcessed, res.Elapsed.Seconds(), res.AudioDuration, res.Segments)
		}
		r.batchProgress(i+1, len(files))
	}

	if r.cfg.Combine && !opts.StdoutMode && stats.Processed > 0 {
		r.writeCombined(stats, files, combined)
	}

	if failErr != nil {
		r.reporter.Error(events.ErrorPayload{
			Code:       errors.Code(failErr),
			Severity:   events.SeverityFatal,
			Message:    failErr.Error(),
			Suggestion: errors.Suggestion(failErr),
		})
		failErr = errors.Reported(failErr)
	}

	stats.Duration = time.Since(start)
	r.reporter.PipelineCompleted(events.PipelineCompletedPayload{
		Status:          stats.Status(),
		FilesProcessed:  stats.Processed,
		FilesFailed:     stats.Failed,
		FilesSkipped:    stats.Skipped,
		TotalDetections: stats.TotalDetections,
		TotalSegments:   stats.TotalSegments,
		DurationMS:      stats.Duration.Milliseconds(),
		RealtimeFactor:  stats.RealtimeFactor(),
	})
	r.reporter.Flush()
	log.Info("pipeline completed",
		logger.Int("processed", stats.Processed),
		logger.Int("failed", stats.Failed),
		logger.Int("skipped", stats.Skipped),
		logger.Int("detections", stats.TotalDetections),
		logger.Float64("realtime_factor", stats.RealtimeFactor()),
		logger.Duration("elapsed", stats.Duration))

	r.writeMetrics(stats)
	return stats, failErr
}

func (r *Runner) skip(stats *Stats, file string, status events.FileStatus, metricStatus string) {
	stats.Skipped++
	r.reporter.FileCompleted(events.FileCompletedPayload{File: file, Status: status})
	if r.metrics != nil {
		r.metrics.Pipeline.RecordFile(metricStatus, 0, 0, 0)
	}
}

func (r *Runner) batchProgress(current, total int) {
	r.reporter.Progress(events.ProgressPayload{
		Batch: &events.BatchProgress{
			Current: current,
			Total:   total,
			Percent: events.Percent(current, total),
		},
	})
}

// recoverStaleLock removes a lock older than the configured timeout.
func (r *Runner) recoverStaleLock(file, outputDir string) {
	if r.cfg.StaleLockTimeout <= 0 || r.processor.opts.StdoutMode {
		return
	}
	removed, err := locking.RemoveStale(file, outputDir, r.cfg.StaleLockTimeout)
	if err != nil {
		GetLogger().Warn("failed to remove stale lock",
			logger.String("file", file),
			logger.Error(err))
		return
	}
	if removed && r.metrics != nil {
		r.metrics.Pipeline.StaleLocksRemoved.Inc()
	}
}

// cancel releases held locks and reports the interruption.
func (r *Runner) cancel(stats *Stats, completed, total int) error {
	released := locking.ReleaseAll()
	GetLogger().Warn("pipeline cancelled",
		logger.Int("files_completed", completed),
		logger.Int("locks_released", released))
	r.reporter.Cancelled(events.CancelledPayload{
		Reason:         events.CancelUserInterrupt,
		FilesCompleted: completed,
		FilesTotal:     total,
	})
	r.reporter.Flush()
	r.writeMetrics(stats)
	return errors.Newf("analysis cancelled after %d of %d files", completed, total).
		Component("pipeline").
		Category(errors.CategoryCancellation).
		Build()
}

func (r *Runner) writeCombined(stats *Stats, files []string, dets []output.Detection) {
	opts := r.processor.opts
	dir := r.cfg.OutputDir
	if dir == "" {
		dir = OutputDirFor(files[0], "")
	}
	output.SortDetections(dets)
	paths, err := output.WriteCombined(dir, r.cfg.CombinedPrefix, opts.Formats, dets, &output.Options{
		CSVColumns:    opts.CSVColumns,
		CSVBOM:        opts.CSVBOM,
		RunID:         r.runID,
		Model:         opts.ModelName,
		MinConfidence: opts.MinConfidence,
		Overlap:       opts.Overlap,
		AudioDuration: stats.AudioSeconds,
	})
	stats.CombinedOutputs = paths
	if err != nil {
		GetLogger().Error("failed to write combined results", logger.Error(err))
		r.reporter.Error(events.ErrorPayload{
			Code:     errors.Code(err),
			Severity: events.SeverityWarning,
			Message:  err.Error(),
		})
	}
}

func (r *Runner) writeMetrics(stats *Stats) {
	if r.metrics == nil {
		return
	}
	r.metrics.Pipeline.RealtimeFactor.Set(stats.RealtimeFactor())
	if r.cfg.MetricsFile == "" {
		return
	}
	if err := r.metrics.WriteTextfile(r.cfg.MetricsFile); err != nil {
		GetLogger().Warn("failed to write metrics file", logger.Error(err))
	}
}
