// Package clipper cuts audio clips around detections listed in result
// files: it parses the detections, merges overlapping ones per species,
// finds the source recording and writes one WAV file per merged group.
package clipper

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/birda/internal/errors"
	"github.com/tphakala/birda/internal/events"
	"github.com/tphakala/birda/internal/logger"
	"github.com/tphakala/birda/internal/observability/metrics"
)

// Clip outcome labels recorded in metrics.
const (
	StatusWritten = "written"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// Options controls clip extraction.
type Options struct {
	OutputDir     string
	MinConfidence float64
	PreRoll       float64 // seconds added before each detection
	PostRoll      float64 // seconds added after each detection
	AudioPath     string  // explicit source recording, skips discovery
	BaseDir       string  // where source recordings are looked up
	Force         bool
	Workers       int // detection files processed concurrently, 0 means GOMAXPROCS
}

// GetLogger returns the clipper package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("clipper")
}

// Clipper extracts clips for detection result files.
type Clipper struct {
	opts      Options
	extractor *Extractor
	writer    *ClipWriter
	metrics   *metrics.ClipMetrics

	mu     sync.Mutex
	onClip func(events.ClipEntry)
}

// Option configures a Clipper.
type Option func(*Clipper)

// WithDecoder replaces the audio decoder.
func WithDecoder(decode DecodeFunc) Option {
	return func(c *Clipper) { c.extractor.decode = decode }
}

// WithMetrics records clip outcomes in m.
func WithMetrics(m *metrics.ClipMetrics) Option {
	return func(c *Clipper) {
		c.metrics = m
		c.extractor.metrics = m
	}
}

// WithClipCallback calls fn for every clip written. Calls are serialized.
func WithClipCallback(fn func(events.ClipEntry)) Option {
	return func(c *Clipper) { c.onClip = fn }
}

// New creates a clipper.
func New(opts Options, options ...Option) *Clipper {
	if opts.OutputDir == "" {
		opts.OutputDir = "clips"
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	c := &Clipper{
		opts:      opts,
		extractor: NewExtractor(nil, nil),
		writer:    NewClipWriter(opts.OutputDir, opts.Force),
	}
	for _, o := range options {
		o(c)
	}
	return c
}

// Run extracts clips for every detection file. A file that cannot be
// parsed or whose source recording is missing is logged and skipped;
// TotalFiles counts the files that were handled.
func (c *Clipper) Run(ctx context.Context, detectionFiles []string) (*events.ClipExtractionResult, error) {
	perFile := make([][]events.ClipEntry, len(detectionFiles))
	handled := make([]bool, len(detectionFiles))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Workers)
	for i, file := range detectionFiles {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			entries, err := c.processFile(gctx, file)
			if err != nil {
				if errors.IsCategory(err, errors.CategoryCancellation) {
					return err
				}
				GetLogger().Warn("failed to process detection file",
					logger.String("file", file),
					logger.Error(err))
				return nil
			}
			perFile[i] = entries
			handled[i] = true
			return nil
		})
	}
	waitErr := g.Wait()

	result := &events.ClipExtractionResult{
		ResultType: events.ResultClipExtraction,
		OutputDir:  c.opts.OutputDir,
		Clips:      []events.ClipEntry{},
	}
	for i, entries := range perFile {
		if handled[i] {
			result.TotalFiles++
		}
		result.Clips = append(result.Clips, entries...)
	}
	result.TotalClips = len(result.Clips)

	if waitErr != nil || ctx.Err() != nil {
		return result, cancelled(result.TotalFiles, len(detectionFiles))
	}

	GetLogger().Info("clip extraction completed",
		logger.Int("clips", result.TotalClips),
		logger.Int("files", result.TotalFiles),
		logger.String("output_dir", c.opts.OutputDir))
	return result, nil
}

func (c *Clipper) processFile(ctx context.Context, detectionFile string) ([]events.ClipEntry, error) {
	log := GetLogger().With(logger.String("file", detectionFile))

	dets, err := ParseFile(detectionFile)
	if err != nil {
		return nil, err
	}
	dets = FilterByConfidence(dets, c.opts.MinConfidence)
	if len(dets) == 0 {
		log.Info("no detections above confidence threshold",
			logger.Float64("min_confidence", c.opts.MinConfidence))
		return nil, nil
	}

	groups := GroupDetections(dets, c.opts.PreRoll, c.opts.PostRoll)
	log.Info("grouped detections",
		logger.Int("detections", len(dets)),
		logger.Int("groups", len(groups)))

	audioPath, err := FindSourceAudio(detectionFile, c.opts.AudioPath, c.opts.BaseDir)
	if err != nil {
		return nil, err
	}
	source, err := c.extractor.Open(audioPath)
	if err != nil {
		return nil, err
	}

	entries := make([]events.ClipEntry, 0, len(groups))
	for i := range groups {
		if ctx.Err() != nil {
			return entries, cancelled(0, 0)
		}
		entry, err := c.extractGroup(source, &groups[i])
		if err != nil {
			log.Warn("failed to extract clip",
				logger.String("species", groups[i].ScientificName),
				logger.Float64("start", groups[i].Start),
				logger.Float64("end", groups[i].End),
				logger.Error(err))
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (c *Clipper) extractGroup(source *Source, group *DetectionGroup) (events.ClipEntry, error) {
	clip, err := source.Extract(group)
	if err != nil {
		c.record(StatusFailed, 0)
		return events.ClipEntry{}, err
	}
	path, skipped, err := c.writer.Write(clip.Samples, clip.SampleRate, group)
	if err != nil {
		c.record(StatusFailed, 0)
		return events.ClipEntry{}, err
	}
	if skipped {
		GetLogger().Debug("clip already exists", logger.String("path", path))
		c.record(StatusSkipped, 0)
	} else {
		c.record(StatusWritten, clip.End-clip.Start)
	}

	entry := events.ClipEntry{
		SourceAudio:    source.Path,
		ScientificName: group.ScientificName,
		Confidence:     group.MaxConfidence,
		StartTime:      group.Start,
		EndTime:        group.End,
		OutputFile:     path,
	}
	if c.onClip != nil {
		c.mu.Lock()
		c.onClip(entry)
		c.mu.Unlock()
	}
	return entry, nil
}

// ExtractRange cuts one clip from audioPath between start and end seconds,
// widened by the configured padding.
func (c *Clipper) ExtractRange(audioPath string, start, end float64) (*events.ClipExtractionResult, error) {
	if end <= start {
		return nil, errors.Newf("invalid time range: end (%.2f) must be greater than start (%.2f)", end, start).
			Component("clipper").
			Category(errors.CategoryValidation).
			Build()
	}
	if audioPath == "" {
		return nil, errors.Newf("--audio is required when extracting a time range").
			Component("clipper").
			Category(errors.CategoryValidation).
			Build()
	}
	if !fileExists(audioPath) {
		return nil, sourceNotFound("", audioPath)
	}

	group := DetectionGroup{
		ScientificName: fmt.Sprintf("detection_%.0f-%.0f", start, end),
		Start:          max(0, start-c.opts.PreRoll),
		End:            end + c.opts.PostRoll,
		MaxConfidence:  1.0,
		DetectionCount: 1,
	}

	source, err := c.extractor.Open(audioPath)
	if err != nil {
		return nil, err
	}
	entry, err := c.extractGroup(source, &group)
	if err != nil {
		return nil, err
	}
	return &events.ClipExtractionResult{
		ResultType: events.ResultClipExtraction,
		OutputDir:  c.opts.OutputDir,
		TotalClips: 1,
		TotalFiles: 1,
		Clips:      []events.ClipEntry{entry},
	}, nil
}

func (c *Clipper) record(status string, seconds float64) {
	if c.metrics != nil {
		c.metrics.RecordClip(status, seconds)
	}
}

func cancelled(done, total int) error {
	return errors.Newf("clip extraction cancelled after %d of %d files", done, total).
		Component("clipper").
		Category(errors.CategoryCancellation).
		Build()
}
