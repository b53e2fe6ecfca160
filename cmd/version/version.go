package version

import (
	"github.com/spf13/cobra"

	"github.com/tphakala/birda/internal/buildinfo"
	"github.com/tphakala/birda/internal/cli"
	"github.com/tphakala/birda/internal/events"
)

// Command creates the version command.
func Command(c *cli.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res := result(c.Build)
			if !c.EmitResult(res) {
				c.Printf("birda %s (commit %s, built %s)\n", res.Version, res.Commit, res.BuildDate)
			}
			return nil
		},
	}
}

func result(info buildinfo.BuildInfo) events.VersionResult {
	return events.VersionResult{
		ResultType: events.ResultVersion,
		Version:    info.Version(),
		Commit:     info.Commit(),
		BuildDate:  info.BuildDate(),
	}
}
