// Package species implements the species command, which writes the
// species expected at a location and week according to the range filter.
package species

import (
	"bufio"
	"cmp"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/birda/internal/birdnet"
	"github.com/tphakala/birda/internal/cli"
	"github.com/tphakala/birda/internal/conf"
	"github.com/tphakala/birda/internal/errors"
	"github.com/tphakala/birda/internal/events"
	"github.com/tphakala/birda/internal/output"
)

const (
	SortFrequency = "freq"
	SortAlpha     = "alpha"

	defaultThreshold  = 0.03
	defaultOutputFile = "species_list.txt"
)

type options struct {
	Latitude  float64
	Longitude float64
	Week      int
	Month     int
	Day       int
	Threshold float64
	Sort      string
	Output    string
	Model     string
}

// Command creates the species command.
func Command(c *cli.Context) *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "species",
		Short: "Generate a species list for a location and week",
		Long: `Generate a species list with the range filter model. The list can be
passed to analyze with --slist.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, c, opts)
		},
	}

	flags := cmd.Flags()
	flags.Float64Var(&opts.Latitude, "lat", 0, "Latitude (-90 to 90)")
	flags.Float64Var(&opts.Longitude, "lon", 0, "Longitude (-180 to 180)")
	flags.IntVar(&opts.Week, "week", 0, "Week number (1-48); defaults to the current week")
	flags.IntVar(&opts.Month, "month", 0, "Month (1-12), used with --day")
	flags.IntVar(&opts.Day, "day", 0, "Day of month, used with --month")
	flags.Float64Var(&opts.Threshold, "threshold", defaultThreshold, "Minimum occurrence score (0.0-1.0)")
	flags.StringVar(&opts.Sort, "sort", SortFrequency, "Sort order: freq or alpha")
	flags.StringVarP(&opts.Output, "output", "o", defaultOutputFile, "Output file")
	flags.StringVarP(&opts.Model, "model", "m", "", "Model whose meta model and labels to use")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lon")
	cmd.MarkFlagsRequiredTogether("month", "day")
	cmd.MarkFlagsMutuallyExclusive("week", "month")

	return cmd
}

func run(cmd *cobra.Command, c *cli.Context, opts *options) error {
	week, err := resolveWeek(opts, time.Now())
	if err != nil {
		return err
	}
	if err := validate(opts); err != nil {
		return err
	}
	metaModel, labelsPath, err := resolveMetaModel(c.Settings, opts.Model)
	if err != nil {
		return err
	}

	labels, err := birdnet.LoadLabels(labelsPath)
	if err != nil {
		return err
	}
	rf, err := birdnet.NewRangeFilter(metaModel, labels, float32(opts.Threshold))
	if err != nil {
		return err
	}
	defer rf.Close()

	scores, err := rf.PredictWeek(opts.Latitude, opts.Longitude, week)
	if err != nil {
		return err
	}
	entries := buildEntries(scores, opts.Threshold, opts.Sort)

	if err := writeList(opts.Output, entries); err != nil {
		return err
	}

	res := events.SpeciesListResult{
		ResultType:   events.ResultSpeciesList,
		Lat:          opts.Latitude,
		Lon:          opts.Longitude,
		Week:         week,
		Threshold:    opts.Threshold,
		SpeciesCount: len(entries),
		OutputFile:   opts.Output,
		Species:      entries,
	}
	if !c.EmitResult(res) {
		c.Printf("Wrote %d species for %.4f, %.4f week %d to %s\n",
			len(entries), opts.Latitude, opts.Longitude, week, opts.Output)
	}
	return nil
}

// resolveWeek returns the BirdNET week from --week, --month/--day or now.
func resolveWeek(opts *options, now time.Time) (int, error) {
	switch {
	case opts.Week != 0:
		if opts.Week < 1 || opts.Week > 48 {
			return 0, validationError("week must be between 1 and 48, got %d", opts.Week)
		}
		return opts.Week, nil
	case opts.Month != 0 || opts.Day != 0:
		if opts.Month < 1 || opts.Month > 12 {
			return 0, validationError("month must be between 1 and 12, got %d", opts.Month)
		}
		if opts.Day < 1 || opts.Day > 31 {
			return 0, validationError("day must be between 1 and 31, got %d", opts.Day)
		}
		return birdnet.DateToWeek(opts.Month, opts.Day), nil
	default:
		return birdnet.WeekForTime(now), nil
	}
}

func validate(opts *options) error {
	if opts.Latitude < -90 || opts.Latitude > 90 {
		return validationError("latitude must be between -90 and 90, got %g", opts.Latitude)
	}
	if opts.Longitude < -180 || opts.Longitude > 180 {
		return validationError("longitude must be between -180 and 180, got %g", opts.Longitude)
	}
	if opts.Threshold < 0 || opts.Threshold > 1 {
		return validationError("threshold must be between 0 and 1, got %g", opts.Threshold)
	}
	if opts.Sort != SortFrequency && opts.Sort != SortAlpha {
		return validationError("sort must be %q or %q, got %q", SortFrequency, SortAlpha, opts.Sort)
	}
	if opts.Output == "" {
		return validationError("output file must not be empty")
	}
	return nil
}

// resolveMetaModel returns the meta model and labels paths for name, or the
// default model. A model without its own meta model uses defaults.meta_model.
func resolveMetaModel(settings *conf.Settings, name string) (metaModel, labels string, err error) {
	_, model, err := settings.ResolveModel(name)
	if err != nil {
		return "", "", err
	}
	metaModel = cmp.Or(model.MetaModel, settings.Defaults.MetaModel)
	if metaModel == "" {
		return "", "", errors.Newf("no meta model configured; set meta_model on the model or defaults.meta_model").
			Component("species").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if model.Labels == "" {
		return "", "", errors.Newf("model has no labels file configured").
			Component("species").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return metaModel, model.Labels, nil
}

// buildEntries converts range filter scores into list entries at or above
// threshold in the requested order.
func buildEntries(scores []birdnet.LocationScore, threshold float64, order string) []events.SpeciesEntry {
	entries := make([]events.SpeciesEntry, 0, len(scores))
	for _, s := range scores {
		if float64(s.Score) < threshold {
			continue
		}
		scientific, common := output.SplitLabel(s.Label)
		entries = append(entries, events.SpeciesEntry{
			ScientificName: scientific,
			CommonName:     common,
			Frequency:      float64(s.Score),
		})
	}
	if order == SortAlpha {
		slices.SortStableFunc(entries, func(a, b events.SpeciesEntry) int {
			return cmp.Compare(a.ScientificName, b.ScientificName)
		})
	} else {
		slices.SortStableFunc(entries, func(a, b events.SpeciesEntry) int {
			return cmp.Compare(b.Frequency, a.Frequency)
		})
	}
	return entries
}

// writeList writes one "Scientific_Common" label per line.
func writeList(path string, entries []events.SpeciesEntry) error {
	f, err := os.Create(path)
	if err != nil {
		return listError(path, err)
	}
	w := bufio.NewWriter(f)
	for _, e := range entries {
		label := e.ScientificName
		if e.CommonName != "" && e.CommonName != e.ScientificName {
			label += "_" + e.CommonName
		}
		if _, err := fmt.Fprintln(w, label); err != nil {
			_ = f.Close()
			return listError(path, err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return listError(path, err)
	}
	if err := f.Close(); err != nil {
		return listError(path, err)
	}
	return nil
}

func listError(path string, err error) error {
	return errors.New(fmt.Errorf("failed to write species list: %w", err)).
		Component("species").
		Category(errors.CategoryFileIO).
		FileContext(path).
		Build()
}

func validationError(format string, args ...any) error {
	return errors.Newf(format, args...).
		Component("species").
		Category(errors.CategoryValidation).
		Build()
}
