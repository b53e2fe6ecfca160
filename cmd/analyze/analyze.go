package analyze

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tphakala/birda/internal/birdnet"
	"github.com/tphakala/birda/internal/cli"
	"github.com/tphakala/birda/internal/conf"
	"github.com/tphakala/birda/internal/errors"
	"github.com/tphakala/birda/internal/logger"
	"github.com/tphakala/birda/internal/observability"
	"github.com/tphakala/birda/internal/pipeline"
	"github.com/tphakala/birda/internal/watchdog"
)

// adhocModelName names a model given only by --model-path.
const adhocModelName = "custom"

// options holds the analyze flags that have no config key.
type options struct {
	ModelPath     string
	LabelsPath    string
	ModelType     string
	MetaModelPath string
	OutputDir     string
	Combine       bool
	Force         bool
	FailFast      bool
	NoCSVBOM      bool
	CPU           bool
	GPU           bool
	NoXNNPACK     bool
	Latitude      float64
	Longitude     float64
	Week          int
	Month         int
	Day           int
	Rerank        bool
	Stdout        bool
}

// Command creates the analyze command.
func Command(c *cli.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <files or directories>...",
		Short: "Analyze audio files for bird vocalizations",
		Long:  "Analyze audio files or directories of audio files and write detection results next to each input or into --output-dir.",
		Args:  cobra.MinimumNArgs(1),
	}
	Setup(cmd, c)
	return cmd
}

// Setup adds the analysis flags and run function to cmd. The root command
// uses it to analyse positional arguments without a subcommand.
func Setup(cmd *cobra.Command, c *cli.Context) {
	opts := &options{}
	setupFlags(cmd, c, opts)
	if cmd.Args == nil {
		cmd.Args = cobra.ArbitraryArgs
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}
		applyFlags(cmd, c.Settings, opts)
		return run(cmd, c, opts, args)
	}
}

func setupFlags(cmd *cobra.Command, c *cli.Context, opts *options) {
	flags := cmd.Flags()
	flags.StringP("model", "m", "", "Model name from configuration")
	flags.StringVar(&opts.ModelPath, "model-path", "", "Path to a tflite model file (overrides config)")
	flags.StringVar(&opts.LabelsPath, "labels-path", "", "Path to the labels file (overrides config)")
	flags.StringVar(&opts.ModelType, "model-type", "", "Model type for --model-path: birdnet-v24 or perch-v2")
	flags.StringVar(&opts.MetaModelPath, "meta-model-path", "", "Path to the range filter model (overrides config)")
	flags.StringSliceP("format", "f", nil, "Output formats (csv, raven, audacity, kaleidoscope, json, parquet, sqlite)")
	flags.StringVarP(&opts.OutputDir, "output-dir", "o", "", "Output directory (default: next to each input)")
	flags.Float64P("min-confidence", "c", conf.DefaultMinConfidence, "Minimum confidence threshold (0.0-1.0)")
	flags.Float64("overlap", conf.DefaultOverlap, "Segment overlap in seconds")
	flags.IntP("batch-size", "b", conf.DefaultBatchSize, "Inference batch size")
	flags.Float64("sensitivity", conf.DefaultSensitivity, "Sigmoid sensitivity (0.0-1.5]")
	flags.Int("top-k", conf.DefaultTopK, "Predictions kept per segment")
	flags.Int("threads", 0, "Inference threads (0 selects from CPU topology)")
	flags.BoolVar(&opts.CPU, "cpu", false, "Force CPU inference")
	flags.BoolVar(&opts.GPU, "gpu", false, "Request GPU inference")
	flags.BoolVar(&opts.NoXNNPACK, "no-xnnpack", false, "Disable the XNNPACK delegate")
	flags.BoolVar(&opts.Combine, "combine", false, "Also write combined results for all files")
	flags.BoolVar(&opts.Force, "force", false, "Reprocess files even if output exists")
	flags.BoolVar(&opts.FailFast, "fail-fast", false, "Stop on the first failed file")
	flags.BoolVar(&c.NoProgress, "no-progress", false, "Disable the progress line")
	flags.BoolVar(&opts.NoCSVBOM, "no-csv-bom", false, "Write CSV output without a UTF-8 BOM")
	flags.Float64Var(&opts.Latitude, "lat", 0, "Latitude for range filtering (-90 to 90)")
	flags.Float64Var(&opts.Longitude, "lon", 0, "Longitude for range filtering (-180 to 180)")
	flags.IntVar(&opts.Week, "week", 0, "Week number for range filtering (1-48)")
	flags.IntVar(&opts.Month, "month", 0, "Month for range filtering (1-12)")
	flags.IntVar(&opts.Day, "day", 0, "Day of month for range filtering (1-31)")
	flags.Float64("range-threshold", conf.DefaultRangeThreshold, "Range filter threshold (0.0-1.0)")
	flags.BoolVar(&opts.Rerank, "rerank", false, "Re-rank predictions by confidence x location score")
	flags.String("slist", "", "Species list file, one label per line (ignored when range filtering)")
	flags.Duration("stale-lock-timeout", 0, "Remove locks older than this (e.g. 1h, 30m)")
	flags.BoolVar(&opts.Stdout, "stdout", false, "Stream detections of a single file to stdout as NDJSON")
	flags.String("metrics-file", "", "Write Prometheus metrics to this file when done")

	cmd.MarkFlagsMutuallyExclusive("cpu", "gpu")
	cmd.MarkFlagsMutuallyExclusive("week", "month")
	cmd.MarkFlagsMutuallyExclusive("week", "day")
	cmd.MarkFlagsRequiredTogether("month", "day")

	c.BindFlag("defaults.model", flags, "model")
	c.BindFlag("defaults.formats", flags, "format")
	c.BindFlag("defaults.min_confidence", flags, "min-confidence")
	c.BindFlag("defaults.overlap", flags, "overlap")
	c.BindFlag("defaults.batch_size", flags, "batch-size")
	c.BindFlag("defaults.sensitivity", flags, "sensitivity")
	c.BindFlag("defaults.top_k", flags, "top-k")
	c.BindFlag("defaults.range_threshold", flags, "range-threshold")
	c.BindFlag("defaults.species_list", flags, "slist")
	c.BindFlag("inference.threads", flags, "threads")
	c.BindFlag("locking.stale_timeout", flags, "stale-lock-timeout")
	c.BindFlag("output.metrics_file", flags, "metrics-file")
}

// applyFlags copies flags without a config binding into settings.
func applyFlags(cmd *cobra.Command, settings *conf.Settings, opts *options) {
	flags := cmd.Flags()
	if flags.Changed("lat") {
		settings.Defaults.Latitude = &opts.Latitude
	}
	if flags.Changed("lon") {
		settings.Defaults.Longitude = &opts.Longitude
	}
	if opts.MetaModelPath != "" {
		settings.Defaults.MetaModel = opts.MetaModelPath
	}
	if opts.NoCSVBOM {
		settings.Defaults.CSVBOM = false
	}
	if opts.NoXNNPACK {
		settings.Inference.UseXNNPACK = false
	}
	switch {
	case opts.CPU:
		settings.Inference.Device = conf.DeviceCPU
	case opts.GPU:
		settings.Inference.Device = conf.DeviceGPU
	}
}

func run(cmd *cobra.Command, c *cli.Context, opts *options, inputs []string) error {
	log := logger.Global().Module("analyze")
	settings := c.Settings

	if err := conf.ValidateSettings(settings); err != nil {
		return err
	}
	if err := validateStdout(cmd, opts, inputs); err != nil {
		return err
	}
	if opts.Stdout {
		c.ForceNDJSON()
	}

	// configuration errors abort before any file is touched
	modelName, model, err := resolveModel(settings, opts, cmd.Flags().Changed("model"), log)
	if err != nil {
		return err
	}
	if err := checkModelFiles(&model); err != nil {
		return err
	}
	formats, err := normalizeFormats(settings.Defaults.Formats)
	if err != nil {
		return err
	}
	week, err := rangeWeek(opts)
	if err != nil {
		return err
	}

	files, warnings, err := pipeline.CollectInputFiles(inputs)
	if err != nil {
		return err
	}
	for _, w := range warnings {
		log.Warn(w)
	}
	if len(files) == 0 {
		return errors.Newf("no valid audio files found").
			Component("analyze").
			Category(errors.CategoryValidation).
			Build()
	}
	log.Info("found audio files", logger.Int("files", len(files)))

	classifier, err := birdnet.NewClassifier(&birdnet.Config{
		ModelPath:   model.Path,
		LabelsPath:  model.Labels,
		ModelType:   model.Type,
		Device:      settings.Inference.Device,
		Threads:     settings.Inference.Threads,
		UseXNNPACK:  settings.Inference.UseXNNPACK,
		Sensitivity: settings.Defaults.Sensitivity,
		TopK:        settings.Defaults.TopK,
	})
	if err != nil {
		return err
	}
	defer classifier.Close()

	popts := pipeline.Options{
		Formats:          formats,
		MinConfidence:    settings.Defaults.MinConfidence,
		Overlap:          settings.Defaults.Overlap,
		BatchSize:        settings.Defaults.BatchSize,
		ModelName:        modelName,
		Sensitivity:      settings.Defaults.Sensitivity,
		CSVColumns:       settings.Defaults.CSVColumns,
		CSVBOM:           settings.Defaults.CSVBOM,
		RunID:            pipeline.NewRunID(),
		InferenceTimeout: watchdog.TimeoutFromEnv(settings.Inference.Timeout),
		Rerank:           opts.Rerank,
		StdoutMode:       opts.Stdout,
	}
	var processorOpts []pipeline.ProcessorOption

	metaModel := model.MetaModel
	if metaModel == "" {
		metaModel = settings.Defaults.MetaModel
	}
	rangeActive := settings.Defaults.HasLocation() && week != nil
	if rangeActive {
		if metaModel == "" {
			return errors.Newf("range filtering needs a meta model; set meta_model for %q or use --meta-model-path", modelName).
				Component("analyze").
				Category(errors.CategoryConfiguration).
				Build()
		}
		rf, err := birdnet.NewRangeFilter(metaModel, classifier.Labels(), float32(settings.Defaults.RangeThreshold))
		if err != nil {
			return err
		}
		defer rf.Close()
		popts.Latitude = settings.Defaults.Latitude
		popts.Longitude = settings.Defaults.Longitude
		popts.Week = week
		processorOpts = append(processorOpts, pipeline.WithRangeFilter(rf))
		log.Info("range filter enabled",
			logger.Float64("lat", *popts.Latitude),
			logger.Float64("lon", *popts.Longitude),
			logger.Int("week", *week),
			logger.Float64("threshold", settings.Defaults.RangeThreshold),
			logger.Bool("rerank", opts.Rerank))
	}

	if path := settings.Defaults.SpeciesList; path != "" {
		if rangeActive {
			log.Warn("species list ignored because range filtering is active", logger.String("path", path))
		} else {
			list, err := birdnet.ReadSpeciesList(path)
			if err != nil {
				return err
			}
			popts.SpeciesList = make(map[string]struct{}, len(list))
			for _, label := range list {
				popts.SpeciesList[label] = struct{}{}
			}
			popts.SpeciesListPath = path
			log.Info("species list loaded", logger.String("path", path), logger.Int("species", len(list)))
		}
	}

	m, err := observability.NewMetrics()
	if err != nil {
		return err
	}
	processorOpts = append(processorOpts, pipeline.WithMetrics(m.Pipeline))

	rep := c.Reporter()
	processor := pipeline.NewProcessor(classifier, rep, popts, processorOpts...)
	runner := pipeline.NewRunner(processor, rep, m, pipeline.RunnerConfig{
		OutputDir:        opts.OutputDir,
		Force:            opts.Force,
		FailFast:         opts.FailFast,
		StaleLockTimeout: settings.Locking.StaleTimeout,
		Combine:          opts.Combine,
		CombinedPrefix:   settings.Output.CombinedPrefix,
		MetricsFile:      settings.Output.MetricsFile,
	})

	stats, err := runner.Run(cmd.Context(), files)
	if err != nil {
		return err
	}
	if !c.Structured() && !opts.Stdout {
		for _, path := range stats.CombinedOutputs {
			c.Printf("combined results: %s\n", path)
		}
	}
	return nil
}

// validateStdout checks the constraints of --stdout.
func validateStdout(cmd *cobra.Command, opts *options, inputs []string) error {
	if !opts.Stdout {
		return nil
	}
	var msg string
	switch {
	case len(inputs) != 1:
		msg = "--stdout requires exactly one input file"
	case opts.OutputDir != "":
		msg = "--stdout cannot be used with --output-dir"
	case opts.Combine:
		msg = "--stdout cannot be used with --combine"
	case cmd.Flags().Changed("format"):
		msg = "--stdout cannot be used with --format (detections are written as JSON)"
	default:
		return nil
	}
	return errors.Newf("%s", msg).
		Component("analyze").
		Category(errors.CategoryValidation).
		Build()
}

// resolveModel picks the model in order: -m, an ad-hoc --model-path with
// --model-type, then the configured default. Path flags override the
// paths of a configured model.
func resolveModel(settings *conf.Settings, opts *options, modelFlag bool, log logger.Logger) (string, conf.ModelConfig, error) {
	if !modelFlag && opts.ModelPath != "" && opts.ModelType != "" {
		if opts.LabelsPath == "" {
			return "", conf.ModelConfig{}, configError("--labels-path required when using --model-path with --model-type")
		}
		return adhocModelName, conf.ModelConfig{
			Path:      opts.ModelPath,
			Labels:    opts.LabelsPath,
			MetaModel: opts.MetaModelPath,
			Type:      opts.ModelType,
		}, nil
	}

	if settings.Defaults.Model == "" {
		if opts.ModelPath != "" {
			return "", conf.ModelConfig{}, configError("--model-type required when using --model-path without -m")
		}
		return "", conf.ModelConfig{}, configError("no model specified (use -m, set defaults.model in config, or provide --model-path with --labels-path and --model-type)")
	}

	name, model, err := settings.ResolveModel(settings.Defaults.Model)
	if err != nil {
		return "", conf.ModelConfig{}, err
	}
	if opts.ModelType != "" {
		log.Warn("--model-type is ignored for configured models", logger.String("model", name))
	}
	if opts.ModelPath != "" {
		model.Path = opts.ModelPath
	}
	if opts.LabelsPath != "" {
		model.Labels = opts.LabelsPath
	}
	if opts.MetaModelPath != "" {
		model.MetaModel = opts.MetaModelPath
	}
	return name, model, nil
}

func checkModelFiles(model *conf.ModelConfig) error {
	if _, err := birdnet.SpecFor(model.Type); err != nil {
		return err
	}
	for kind, path := range map[string]string{"model": model.Path, "labels": model.Labels} {
		if path == "" {
			return configError(fmt.Sprintf("%s path is not configured", kind))
		}
		if _, err := os.Stat(path); err != nil {
			return errors.Newf("%s file not found: %s", kind, path).
				Component("analyze").
				Category(errors.CategoryModelLoad).
				FileContext(path).
				Build()
		}
	}
	return nil
}

func normalizeFormats(formats []string) ([]string, error) {
	out := make([]string, 0, len(formats))
	seen := make(map[string]bool, len(formats))
	for _, f := range formats {
		n, err := conf.NormalizeFormat(f)
		if err != nil {
			return nil, configError(err.Error())
		}
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out, nil
}

// rangeWeek returns the range filter week from --week or --month/--day,
// nil when neither is given.
func rangeWeek(opts *options) (*int, error) {
	switch {
	case opts.Week != 0:
		if opts.Week < 1 || opts.Week > 48 {
			return nil, configError(fmt.Sprintf("week must be between 1 and 48, got %d", opts.Week))
		}
		week := opts.Week
		return &week, nil
	case opts.Month != 0 || opts.Day != 0:
		if opts.Month < 1 || opts.Month > 12 {
			return nil, configError(fmt.Sprintf("month must be between 1 and 12, got %d", opts.Month))
		}
		if opts.Day < 1 || opts.Day > 31 {
			return nil, configError(fmt.Sprintf("day must be between 1 and 31, got %d", opts.Day))
		}
		week := birdnet.DateToWeek(opts.Month, opts.Day)
		return &week, nil
	}
	return nil, nil
}

func configError(msg string) error {
	return errors.Newf("%s", msg).
		Component("analyze").
		Category(errors.CategoryValidation).
		Build()
}
