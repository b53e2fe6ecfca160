package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tphakala/birda/cmd/analyze"
	"github.com/tphakala/birda/cmd/clip"
	"github.com/tphakala/birda/cmd/config"
	"github.com/tphakala/birda/cmd/providers"
	"github.com/tphakala/birda/cmd/species"
	"github.com/tphakala/birda/cmd/version"
	"github.com/tphakala/birda/internal/cli"
	"github.com/tphakala/birda/internal/conf"
	"github.com/tphakala/birda/internal/errors"
)

// RootCommand creates the birda command tree. Without a subcommand the
// positional arguments are analysed.
func RootCommand(c *cli.Context) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "birda [flags] <files or directories>...",
		Short:         "Bird species detection for audio recordings",
		Long:          "birda analyses audio recordings with BirdNET compatible models and writes detection results.",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	setupFlags(rootCmd, c)
	analyze.Setup(rootCmd, c)

	versionCmd := version.Command(c)
	configCmd := config.Command(c)
	rootCmd.AddCommand(
		analyze.Command(c),
		clip.Command(c),
		species.Command(c),
		configCmd,
		providers.Command(c),
		versionCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := c.Load(cmd); err != nil {
			return err
		}
		if err := c.SetupLogging(); err != nil {
			return err
		}
		// version and config work with an invalid configuration
		if cmd == versionCmd || cmd.Parent() == configCmd {
			return nil
		}
		return conf.ValidateSettings(c.Settings)
	}

	return rootCmd
}

// setupFlags defines the flags shared by every command.
func setupFlags(rootCmd *cobra.Command, c *cli.Context) {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&c.ConfigFile, "config", "", "Path to config file (default: search standard locations)")
	flags.String("output-mode", conf.OutputModeHuman, "CLI output: human, json (buffered) or ndjson (streaming)")
	flags.CountVarP(&c.Verbose, "verbose", "v", "Increase verbosity (-v debug, -vv trace)")
	flags.BoolVarP(&c.Quiet, "quiet", "q", false, "Only log warnings and errors, no progress")

	c.BindFlag("output.mode", flags, "output-mode")
}

// exitInterrupted is 128 + SIGINT.
const exitInterrupted = 130

// Execute runs the CLI and returns the process exit code. SIGINT and
// SIGTERM cancel the command context.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := cli.NewContext()
	defer c.Close()

	return exitCode(c, RootCommand(c).ExecuteContext(ctx))
}

// exitCode presents err unless its event was already emitted and maps it
// to the process exit code.
func exitCode(c *cli.Context, err error) int {
	switch {
	case err == nil:
		return 0
	case errors.IsCategory(err, errors.CategoryCancellation):
		return exitInterrupted
	case errors.IsReported(err):
		return 1
	}
	c.ReportError(err)
	return 1
}
