// Package birdnet runs BirdNET compatible tflite models: the audio
// classifier and the location/season range filter (meta model).
package birdnet

import (
	"fmt"
	"os"
	"sync"
	"time"

	tflite "github.com/tphakala/go-tflite"
	"github.com/tphakala/go-tflite/delegates/xnnpack"

	"github.com/tphakala/birda/internal/cpuspec"
	"github.com/tphakala/birda/internal/errors"
	"github.com/tphakala/birda/internal/logger"
)

// ModelSpec describes the input geometry of a classifier type.
type ModelSpec struct {
	Type            string
	SampleRate      int
	SegmentDuration float64 // seconds
}

// SampleCount is the number of samples in one input segment.
func (s ModelSpec) SampleCount() int {
	return int(float64(s.SampleRate) * s.SegmentDuration)
}

var modelSpecs = map[string]ModelSpec{
	"birdnet-v24": {Type: "birdnet-v24", SampleRate: 48000, SegmentDuration: 3.0},
	"perch-v2":    {Type: "perch-v2", SampleRate: 32000, SegmentDuration: 5.0},
}

// SpecFor returns the input geometry for a model type. An empty type is
// treated as BirdNET v2.4.
func SpecFor(modelType string) (ModelSpec, error) {
	if modelType == "" {
		modelType = "birdnet-v24"
	}
	spec, ok := modelSpecs[modelType]
	if !ok {
		return ModelSpec{}, errors.Newf("unknown model type %q", modelType).
			Component("birdnet").
			Category(errors.CategoryModelLoad).
			Build()
	}
	return spec, nil
}

// Config configures a Classifier.
type Config struct {
	ModelPath   string
	LabelsPath  string
	ModelType   string
	Device      string // auto, cpu or gpu
	Threads     int    // 0 selects from CPU topology
	UseXNNPACK  bool
	Sensitivity float64
	TopK        int
}

// Classifier wraps a tflite interpreter running the audio classifier.
type Classifier struct {
	spec        ModelSpec
	labels      []string
	sensitivity float64
	topK        int

	mu          sync.Mutex
	model       *tflite.Model
	options     *tflite.InterpreterOptions
	delegate    *xnnpack.Delegate
	interpreter *tflite.Interpreter
	outputIndex int
	batchSize   int // current batch dimension of the input tensor
}

// GetLogger returns the birdnet package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("birdnet")
}

// NewClassifier loads the model and labels described by cfg.
func NewClassifier(cfg *Config) (*Classifier, error) {
	start := time.Now()

	spec, err := SpecFor(cfg.ModelType)
	if err != nil {
		return nil, err
	}
	labels, err := LoadLabels(cfg.LabelsPath)
	if err != nil {
		return nil, err
	}

	threads := cpuspec.ThreadCount(cfg.Threads)
	if cfg.Device == "gpu" {
		GetLogger().Warn("GPU delegate is not available in this build, running on CPU")
	}

	rt, err := newRuntime(cfg.ModelPath, threads, cfg.UseXNNPACK, "classifier")
	if err != nil {
		return nil, err
	}

	c := &Classifier{
		spec:        spec,
		labels:      labels,
		sensitivity: cfg.Sensitivity,
		topK:        cfg.TopK,
		model:       rt.model,
		options:     rt.options,
		delegate:    rt.delegate,
		interpreter: rt.interpreter,
		batchSize:   1,
	}
	if c.sensitivity <= 0 {
		c.sensitivity = 1.0
	}

	if err := c.resolveOutput(); err != nil {
		c.Close()
		return nil, err
	}

	GetLogger().Info("classifier initialized",
		logger.String("model", cfg.ModelPath),
		logger.String("type", spec.Type),
		logger.Int("labels", len(labels)),
		logger.Int("threads", threads),
		logger.Bool("xnnpack", rt.delegate != nil),
		logger.Duration("load_time", time.Since(start)))
	return c, nil
}

// resolveOutput selects the output tensor whose last dimension matches the
// label count. Models with several heads expose embeddings next to logits.
func (c *Classifier) resolveOutput() error {
	n := c.interpreter.GetOutputTensorCount()
	for i := range n {
		t := c.interpreter.GetOutputTensor(i)
		if t != nil && t.Dim(t.NumDims()-1) == len(c.labels) {
			c.outputIndex = i
			return nil
		}
	}
	return errors.Newf("model has no output matching %d labels", len(c.labels)).
		Component("birdnet").
		Category(errors.CategoryLabelLoad).
		Context("outputs", n).
		Build()
}

// SampleRate is the sample rate the model expects.
func (c *Classifier) SampleRate() int { return c.spec.SampleRate }

// SegmentDuration is the input segment length in seconds.
func (c *Classifier) SegmentDuration() float64 { return c.spec.SegmentDuration }

// SampleCount is the number of samples per input segment.
func (c *Classifier) SampleCount() int { return c.spec.SampleCount() }

// Labels returns the classifier labels in output order.
func (c *Classifier) Labels() []string { return c.labels }

// Predict classifies a single segment.
func (c *Classifier) Predict(segment []float32) ([]Prediction, error) {
	results, err := c.run([][]float32{segment})
	if err != nil {
		return nil, err
	}
	return results[0], nil
}

// PredictBatch classifies segments in one interpreter call, returning one
// result per segment in input order.
func (c *Classifier) PredictBatch(segments [][]float32) ([][]Prediction, error) {
	if len(segments) == 0 {
		return nil, nil
	}
	return c.run(segments)
}

func (c *Classifier) run(segments [][]float32) ([][]Prediction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.interpreter == nil {
		return nil, inferenceError(fmt.Errorf("classifier is closed"), len(segments))
	}

	sampleCount := c.SampleCount()
	if err := c.resizeLocked(len(segments), sampleCount); err != nil {
		return nil, err
	}

	input := c.interpreter.GetInputTensor(0)
	if input == nil {
		return nil, inferenceError(fmt.Errorf("cannot get input tensor"), len(segments))
	}
	data := input.Float32s()
	if len(data) < len(segments)*sampleCount {
		return nil, inferenceError(fmt.Errorf("input tensor holds %d values, need %d", len(data), len(segments)*sampleCount), len(segments))
	}
	for i, seg := range segments {
		row := data[i*sampleCount : (i+1)*sampleCount]
		n := copy(row, seg)
		clear(row[n:])
	}

	if status := c.interpreter.Invoke(); status != tflite.OK {
		return nil, inferenceError(fmt.Errorf("tensor invoke failed: %v", status), len(segments))
	}

	output := c.interpreter.GetOutputTensor(c.outputIndex)
	numClasses := output.Dim(output.NumDims() - 1)
	logits := output.Float32s()
	if len(logits) < len(segments)*numClasses {
		return nil, inferenceError(fmt.Errorf("output tensor holds %d values, need %d", len(logits), len(segments)*numClasses), len(segments))
	}

	results := make([][]Prediction, len(segments))
	for i := range segments {
		preds, err := scoreLogits(c.labels, logits[i*numClasses:(i+1)*numClasses], c.sensitivity, c.topK)
		if err != nil {
			return nil, inferenceError(err, len(segments))
		}
		results[i] = preds
	}
	return results, nil
}

// resizeLocked changes the batch dimension of the input tensor when it
// differs from the previous call.
func (c *Classifier) resizeLocked(batch, sampleCount int) error {
	if batch == c.batchSize {
		return nil
	}
	dims := []int32{int32(batch), int32(sampleCount)} //nolint:gosec // batch and segment sizes are small
	if status := c.interpreter.ResizeInputTensor(0, dims); status != tflite.OK {
		return inferenceError(fmt.Errorf("resize input tensor to %v failed: %v", dims, status), batch)
	}
	if status := c.interpreter.AllocateTensors(); status != tflite.OK {
		return inferenceError(fmt.Errorf("tensor allocation failed for batch %d: %v", batch, status), batch)
	}
	c.batchSize = batch
	GetLogger().Debug("resized classifier input", logger.Int("batch_size", batch))
	return nil
}

// Close releases the interpreter. It is safe to call more than once.
func (c *Classifier) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	rt := runtime{model: c.model, options: c.options, delegate: c.delegate, interpreter: c.interpreter}
	rt.delete()
	c.interpreter, c.model, c.options, c.delegate = nil, nil, nil, nil
}

func inferenceError(err error, batch int) error {
	return errors.New(err).
		Component("birdnet").
		Category(errors.CategoryInference).
		Context("batch_size", batch).
		Build()
}

// runtime bundles the tflite objects that must be released together.
type runtime struct {
	model       *tflite.Model
	options     *tflite.InterpreterOptions
	delegate    *xnnpack.Delegate
	interpreter *tflite.Interpreter
}

func newRuntime(modelPath string, threads int, useXNNPACK bool, name string) (*runtime, error) {
	start := time.Now()
	modelError := func(err error) error {
		return errors.New(err).
			Component("birdnet").
			Category(errors.CategoryModelLoad).
			FileContext(modelPath).
			Context("model_type", name).
			Timing("model-load", time.Since(start)).
			Build()
	}

	if _, err := os.Stat(modelPath); err != nil {
		return nil, modelError(fmt.Errorf("cannot read %s model: %w", name, err))
	}

	rt := &runtime{model: tflite.NewModelFromFile(modelPath)}
	if rt.model == nil {
		return nil, modelError(fmt.Errorf("cannot load TensorFlow Lite %s model", name))
	}

	rt.options = tflite.NewInterpreterOptions()
	if useXNNPACK {
		rt.delegate = xnnpack.New(xnnpack.DelegateOptions{NumThreads: int32(max(1, threads-1))}) //nolint:gosec // bounded by CPU count
		if rt.delegate == nil {
			GetLogger().Warn("failed to create XNNPACK delegate, falling back to default CPU")
			rt.options.SetNumThread(threads)
		} else {
			rt.options.AddDelegate(rt.delegate)
			rt.options.SetNumThread(1)
		}
	} else {
		rt.options.SetNumThread(threads)
	}
	rt.options.SetErrorReporter(func(msg string, _ any) {
		GetLogger().Error("tflite error", logger.String("model_type", name), logger.String("message", msg))
	}, nil)

	rt.interpreter = tflite.NewInterpreter(rt.model, rt.options)
	if rt.interpreter == nil {
		rt.delete()
		return nil, modelError(fmt.Errorf("cannot create %s interpreter", name))
	}
	if status := rt.interpreter.AllocateTensors(); status != tflite.OK {
		rt.delete()
		return nil, modelError(fmt.Errorf("tensor allocation failed for %s: %v", name, status))
	}
	return rt, nil
}

func (rt *runtime) delete() {
	if rt.interpreter != nil {
		rt.interpreter.Delete()
	}
	if rt.delegate != nil {
		rt.delegate.Delete()
	}
	if rt.options != nil {
		rt.options.Delete()
	}
	if rt.model != nil {
		rt.model.Delete()
	}
}
