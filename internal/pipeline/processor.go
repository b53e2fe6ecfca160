package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/tphakala/birda/internal/birdnet"
	"github.com/tphakala/birda/internal/errors"
	"github.com/tphakala/birda/internal/events"
	"github.com/tphakala/birda/internal/locking"
	"github.com/tphakala/birda/internal/logger"
	"github.com/tphakala/birda/internal/myaudio"
	"github.com/tphakala/birda/internal/observability/metrics"
	"github.com/tphakala/birda/internal/output"
	"github.com/tphakala/birda/internal/reporter"
	"github.com/tphakala/birda/internal/watchdog"
)

// Classifier scores fixed-length audio segments.
type Classifier interface {
	Predict(segment []float32) ([]birdnet.Prediction, error)
	PredictBatch(segments [][]float32) ([][]birdnet.Prediction, error)
	SampleRate() int
	SegmentDuration() float64
	SampleCount() int
}

// LocationFilter returns the species expected at a place and date.
type LocationFilter interface {
	Predict(lat, lon float64, month, day int) ([]birdnet.LocationScore, error)
}

// DecodeFunc decodes an audio file to mono samples.
type DecodeFunc func(path string) (*myaudio.Audio, error)

// Options configures how files are analysed and written.
type Options struct {
	Formats          []string
	MinConfidence    float64
	Overlap          float64 // seconds
	BatchSize        int
	ModelName        string
	Sensitivity      float64
	CSVColumns       []string
	CSVBOM           bool
	RunID            string
	InferenceTimeout time.Duration

	// Range filter, active when Latitude, Longitude and Week are all set
	// and the processor has a LocationFilter.
	Latitude  *float64
	Longitude *float64
	Week      *int
	Rerank    bool

	// Species list, used only when the range filter is inactive.
	SpeciesList     map[string]struct{}
	SpeciesListPath string

	// StdoutMode emits detections as a result event and writes no files.
	StdoutMode bool
}

// Result summarises one processed file.
type Result struct {
	Detections    []output.Detection
	Segments      int
	AudioDuration float64 // seconds
	Elapsed       time.Duration
	Outputs       []string // result files written
}

// Processor runs single files through the analysis pipeline.
type Processor struct {
	classifier  Classifier
	rangeFilter LocationFilter
	decode      DecodeFunc
	watchdog    *watchdog.Watchdog
	reporter    reporter.Reporter
	metrics     *metrics.PipelineMetrics
	opts        Options
}

// ProcessorOption customises a Processor.
type ProcessorOption func(*Processor)

// WithRangeFilter enables location based filtering.
func WithRangeFilter(f LocationFilter) ProcessorOption {
	return func(p *Processor) { p.rangeFilter = f }
}

// WithDecoder replaces myaudio.Decode.
func WithDecoder(decode DecodeFunc) ProcessorOption {
	return func(p *Processor) { p.decode = decode }
}

// WithWatchdog replaces the default process-exiting watchdog.
func WithWatchdog(wd *watchdog.Watchdog) ProcessorOption {
	return func(p *Processor) { p.watchdog = wd }
}

// WithMetrics records per file and per inference metrics.
func WithMetrics(m *metrics.PipelineMetrics) ProcessorOption {
	return func(p *Processor) { p.metrics = m }
}

// NewProcessor creates a processor. A nil reporter discards events.
func NewProcessor(classifier Classifier, rep reporter.Reporter, opts Options, options ...ProcessorOption) *Processor {
	if rep == nil {
		rep = reporter.Null{}
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = 1
	}
	if opts.InferenceTimeout <= 0 {
		opts.InferenceTimeout = watchdog.DefaultTimeout
	}
	p := &Processor{
		classifier: classifier,
		decode:     myaudio.Decode,
		reporter:   rep,
		opts:       opts,
	}
	for _, o := range options {
		o(p)
	}
	if p.watchdog == nil {
		p.watchdog = watchdog.New()
	}
	return p
}

// rangeFilterActive reports whether location filtering applies.
func (p *Processor) rangeFilterActive() bool {
	return p.rangeFilter != nil && p.opts.Latitude != nil && p.opts.Longitude != nil && p.opts.Week != nil
}

// ProcessFile analyses input and writes its results into outputDir.
// estimatedSegments is the probe's guess; progress is sized by the decoded
// segment count. Progress is reported after every batch and the reporter
// decides what to show.
func (p *Processor) ProcessFile(ctx context.Context, input, outputDir string, estimatedSegments int) (*Result, error) {
	start := time.Now()
	log := GetLogger().With(logger.String("file", input))
	log.Info("processing file")

	if !p.opts.StdoutMode {
		lock, err := locking.Acquire(input, outputDir, p.opts.RunID)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := lock.Release(); err != nil {
				log.Warn("failed to release lock", logger.Error(err))
			}
		}()
	}

	audio, err := p.decode(input)
	if err != nil {
		return nil, err
	}

	samples, err := myaudio.Resample(audio.Samples, audio.SampleRate, p.classifier.SampleRate())
	if err != nil {
		return nil, errors.New(err).
			Component("pipeline").
			Category(errors.CategoryResample).
			FileContext(input).
			Build()
	}

	chunks := myaudio.Chunk(samples, p.classifier.SampleRate(), p.classifier.SegmentDuration(), p.opts.Overlap)
	if estimatedSegments > 0 && estimatedSegments != len(chunks) {
		log.Debug("segment estimate differs from decoded audio",
			logger.Int("estimated", estimatedSegments),
			logger.Int("segments", len(chunks)))
	}
	total := len(chunks)

	scores, err := p.locationScores()
	if err != nil {
		return nil, err
	}

	dets, err := p.infer(ctx, input, chunks, total, scores)
	if err != nil {
		return nil, err
	}
	output.SortDetections(dets)

	result := &Result{
		Detections:    dets,
		Segments:      len(chunks),
		AudioDuration: audio.Duration,
	}

	if p.opts.StdoutMode {
		p.reporter.Result(analysisResult(input, dets))
	} else {
		paths, err := p.writeOutputs(input, outputDir, dets, audio.Duration)
		result.Outputs = paths
		if err != nil {
			return nil, err
		}
	}

	result.Elapsed = time.Since(start)
	if p.metrics != nil {
		for i := range dets {
			p.metrics.RecordDetection(dets[i].ScientificName)
		}
	}
	log.Info("file processed",
		logger.Int("detections", len(dets)),
		logger.Int("segments", result.Segments),
		logger.Float64("audio_seconds", result.AudioDuration),
		logger.Duration("elapsed", result.Elapsed))
	return result, nil
}

// locationScores returns the range filter scores for the configured place
// and week, or nil when the range filter is inactive.
func (p *Processor) locationScores() ([]birdnet.LocationScore, error) {
	if !p.rangeFilterActive() {
		return nil, nil
	}
	month, day := birdnet.WeekToDate(*p.opts.Week)
	return p.rangeFilter.Predict(*p.opts.Latitude, *p.opts.Longitude, month, day)
}

// infer runs every chunk through the classifier in batches of the
// configured size and returns the detections that pass the filters.
func (p *Processor) infer(ctx context.Context, input string, chunks []myaudio.AudioChunk, total int, scores []birdnet.LocationScore) ([]output.Detection, error) {
	batchSize := p.opts.BatchSize
	filterActive := p.rangeFilterActive()
	meta := p.metadata()

	var dets []output.Detection
	for begin := 0; begin < len(chunks); begin += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, errors.New(err).
				Component("pipeline").
				Category(errors.CategoryCancellation).
				FileContext(input).
				Build()
		}

		end := min(begin+batchSize, len(chunks))
		batch := chunks[begin:end]

		results, err := p.predict(batch)
		if err != nil {
			return nil, errors.New(err).
				Component("pipeline").
				Category(errors.CategoryInference).
				FileContext(input).
				Context("segment_start", batch[0].StartTime).
				Build()
		}

		for i, chunk := range batch {
			preds := keepConfident(results[i], p.opts.MinConfidence)
			switch {
			case filterActive:
				preds = birdnet.FilterPredictions(preds, scores, p.opts.Rerank)
			case p.opts.SpeciesList != nil:
				preds = birdnet.FilterBySpeciesList(preds, p.opts.SpeciesList)
			}
			for _, pred := range preds {
				d := output.NewDetection(input, pred.Label, float64(pred.Confidence), chunk.StartTime, chunk.EndTime)
				d.Metadata = meta
				dets = append(dets, d)
			}
		}

		p.reportProgress(input, end, total)
	}
	return dets, nil
}

// predict classifies one batch under the watchdog. A batch of one uses
// Predict; a short final batch is padded with silence to the configured
// size and only the real results are returned.
func (p *Processor) predict(batch []myaudio.AudioChunk) ([][]birdnet.Prediction, error) {
	valid := len(batch)
	segments := make([][]float32, valid, max(valid, p.opts.BatchSize))
	for i := range batch {
		segments[i] = batch[i].Samples
	}
	if valid < p.opts.BatchSize {
		silence := make([]float32, p.classifier.SampleCount())
		for len(segments) < p.opts.BatchSize {
			segments = append(segments, silence)
		}
	}

	start := time.Now()
	guard := p.watchdog.Start(p.opts.InferenceTimeout, len(segments))
	var (
		results [][]birdnet.Prediction
		err     error
	)
	if len(segments) == 1 {
		var preds []birdnet.Prediction
		preds, err = p.classifier.Predict(segments[0])
		results = [][]birdnet.Prediction{preds}
	} else {
		results, err = p.classifier.PredictBatch(segments)
	}
	guard.Cancel()

	if p.metrics != nil {
		p.metrics.RecordInference(p.opts.ModelName, time.Since(start).Seconds(), err)
	}
	if err != nil {
		return nil, err
	}
	if len(results) < valid {
		return nil, fmt.Errorf("classifier returned %d results for %d segments", len(results), valid)
	}
	return results[:valid], nil
}

func keepConfident(preds []birdnet.Prediction, minConfidence float64) []birdnet.Prediction {
	kept := make([]birdnet.Prediction, 0, len(preds))
	for _, pred := range preds {
		if float64(pred.Confidence) >= minConfidence {
			kept = append(kept, pred)
		}
	}
	return kept
}

func (p *Processor) reportProgress(input string, done, total int) {
	p.reporter.Progress(events.ProgressPayload{
		File: &events.FileProgress{
			Path:          input,
			SegmentsDone:  done,
			SegmentsTotal: total,
			Percent:       min(events.Percent(done, total), 100),
		},
	})
}

// metadata returns the per-detection settings recorded in CSV metadata
// columns.
func (p *Processor) metadata() output.Metadata {
	minConf := p.opts.MinConfidence
	overlap := p.opts.Overlap
	meta := output.Metadata{
		Model:         p.opts.ModelName,
		MinConfidence: &minConf,
		Overlap:       &overlap,
	}
	if p.opts.Sensitivity > 0 {
		sens := p.opts.Sensitivity
		meta.Sensitivity = &sens
	}
	if p.rangeFilterActive() {
		meta.Lat = p.opts.Latitude
		meta.Lon = p.opts.Longitude
		meta.Week = p.opts.Week
	} else if p.opts.SpeciesList != nil {
		meta.SpeciesList = p.opts.SpeciesListPath
	}
	return meta
}

// outputOptions returns the writer options for one file.
func (p *Processor) outputOptions(input string, audioDuration float64) *output.Options {
	opts := &output.Options{
		SourceFile:    input,
		CSVColumns:    p.opts.CSVColumns,
		CSVBOM:        p.opts.CSVBOM,
		RunID:         p.opts.RunID,
		Model:         p.opts.ModelName,
		MinConfidence: p.opts.MinConfidence,
		Overlap:       p.opts.Overlap,
		AudioDuration: audioDuration,
	}
	if p.rangeFilterActive() {
		opts.Latitude = p.opts.Latitude
		opts.Longitude = p.opts.Longitude
		opts.Week = p.opts.Week
	}
	return opts
}

// writeOutputs writes dets in every requested format. All formats are
// attempted; the joined error fails the file.
func (p *Processor) writeOutputs(input, outputDir string, dets []output.Detection, audioDuration float64) ([]string, error) {
	opts := p.outputOptions(input, audioDuration)
	var written []string
	var errs []error
	for _, format := range p.opts.Formats {
		path, err := OutputPathFor(input, outputDir, format)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := output.WriteFile(format, path, dets, opts); err != nil {
			errs = append(errs, err)
			continue
		}
		written = append(written, path)
	}
	return written, errors.Join(errs...)
}

func analysisResult(input string, dets []output.Detection) events.AnalysisResult {
	infos := make([]events.DetectionInfo, len(dets))
	for i := range dets {
		d := &dets[i]
		infos[i] = events.DetectionInfo{
			Species:        d.ScientificName + "_" + d.CommonName,
			CommonName:     d.CommonName,
			ScientificName: d.ScientificName,
			Confidence:     d.Confidence,
			StartTime:      d.StartTime,
			EndTime:        d.EndTime,
		}
	}
	return events.AnalysisResult{
		ResultType: events.ResultAnalysis,
		File:       input,
		Detections: infos,
	}
}
