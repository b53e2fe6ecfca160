package clip

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tphakala/birda/internal/cli"
	"github.com/tphakala/birda/internal/clipper"
	"github.com/tphakala/birda/internal/errors"
	"github.com/tphakala/birda/internal/events"
	"github.com/tphakala/birda/internal/observability"
)

// maxPadding bounds --pre and --post, in seconds.
const maxPadding = 300

type options struct {
	Audio   string
	BaseDir string
	Force   bool
	Start   float64
	End     float64
}

// Command creates the clip command.
func Command(c *cli.Context) *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "clip [detection files]...",
		Short: "Extract audio clips from detection results",
		Long: `Extract audio clips around detections listed in result CSV files.
Overlapping detections of the same species are merged into one clip.
With --start and --end a single range is cut from --audio instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, c, opts, args)
		},
	}

	flags := cmd.Flags()
	flags.StringP("output", "o", "clips", "Output directory for clips")
	flags.Float64P("confidence", "c", 0, "Minimum confidence (0.0-1.0)")
	flags.Float64("pre", 5, "Seconds of audio before each detection (0-300)")
	flags.Float64("post", 5, "Seconds of audio after each detection (0-300)")
	flags.IntP("jobs", "j", 4, "Detection files processed in parallel")
	flags.StringVarP(&opts.Audio, "audio", "a", "", "Source audio file (skips discovery)")
	flags.StringVar(&opts.BaseDir, "base-dir", "", "Directory to look for source audio in")
	flags.BoolVar(&opts.Force, "force", false, "Overwrite existing clips")
	flags.Float64Var(&opts.Start, "start", 0, "Start of a single clip in seconds (needs --end and --audio)")
	flags.Float64Var(&opts.End, "end", 0, "End of a single clip in seconds")
	cmd.MarkFlagsRequiredTogether("start", "end")

	c.BindFlag("clip.output_dir", flags, "output")
	c.BindFlag("clip.min_confidence", flags, "confidence")
	c.BindFlag("clip.pre_roll", flags, "pre")
	c.BindFlag("clip.post_roll", flags, "post")
	c.BindFlag("clip.workers", flags, "jobs")

	return cmd
}

func run(cmd *cobra.Command, c *cli.Context, opts *options, args []string) error {
	settings := c.Settings.Clip
	if settings.PreRoll > maxPadding || settings.PostRoll > maxPadding {
		return errors.Newf("padding must be between 0 and %d seconds", maxPadding).
			Component("clip").
			Category(errors.CategoryValidation).
			Build()
	}

	m, err := observability.NewMetrics()
	if err != nil {
		return err
	}

	clipperOpts := []clipper.Option{clipper.WithMetrics(m.Clip)}
	direct := cmd.Flags().Changed("start")
	if !c.Structured() && !direct {
		clipperOpts = append(clipperOpts, clipper.WithClipCallback(func(e events.ClipEntry) {
			c.Printf("  %s (%.0f%%): %.1fs-%.1fs -> %s\n",
				e.ScientificName, e.Confidence*100, e.StartTime, e.EndTime, filepath.Base(e.OutputFile))
		}))
	}

	cl := clipper.New(clipper.Options{
		OutputDir:     settings.OutputDir,
		MinConfidence: settings.MinConfidence,
		PreRoll:       settings.PreRoll,
		PostRoll:      settings.PostRoll,
		AudioPath:     opts.Audio,
		BaseDir:       opts.BaseDir,
		Force:         opts.Force,
		Workers:       settings.Workers,
	}, clipperOpts...)

	if direct {
		res, err := cl.ExtractRange(opts.Audio, opts.Start, opts.End)
		if err != nil {
			return err
		}
		if !c.EmitResult(res) {
			c.Printf("%s\n", res.Clips[0].OutputFile)
		}
		return nil
	}

	if len(args) == 0 {
		return errors.Newf("no detection files given").
			Component("clip").
			Category(errors.CategoryValidation).
			Build()
	}

	res, err := cl.Run(cmd.Context(), args)
	if errors.IsCategory(err, errors.CategoryCancellation) {
		rep := c.Reporter()
		rep.Cancelled(events.CancelledPayload{
			Reason:         events.CancelUserInterrupt,
			FilesCompleted: res.TotalFiles,
			FilesTotal:     len(args),
		})
		rep.Flush()
	}
	if err != nil {
		return err
	}
	if !c.EmitResult(res) {
		c.Printf("Extracted %d clips from %d detection files to %s\n", res.TotalClips, res.TotalFiles, res.OutputDir)
	}
	return nil
}
