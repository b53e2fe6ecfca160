// Package config implements the config command and its subcommands.
package config

import (
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/birda/internal/cli"
	"github.com/tphakala/birda/internal/conf"
	"github.com/tphakala/birda/internal/errors"
	"github.com/tphakala/birda/internal/events"
)

// Command creates the config parent command.
func Command(c *cli.Context) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the configuration file",
	}
	configCmd.AddCommand(showCommand(c), pathCommand(c), initCommand(c))
	return configCmd
}

func showCommand(c *cli.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res := events.ConfigResult{
				ResultType: events.ResultConfig,
				ConfigPath: configPath(c),
				Config:     c.Settings,
			}
			if c.EmitResult(res) {
				return nil
			}
			data, err := yaml.Marshal(c.Settings)
			if err != nil {
				return errors.New(err).
					Component("config").
					Category(errors.CategoryConfiguration).
					Build()
			}
			c.Printf("# %s\n%s", res.ConfigPath, data)
			return nil
		},
	}
}

func pathCommand(c *cli.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res := events.ConfigResult{
				ResultType: events.ResultConfig,
				ConfigPath: configPath(c),
			}
			if !c.EmitResult(res) {
				c.Printf("%s\n", res.ConfigPath)
			}
			return nil
		},
	}
}

func initCommand(c *cli.Context) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file with default settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := c.ConfigFile
			if path == "" {
				path = conf.DefaultConfigFile()
			}
			if err := initConfig(path, force); err != nil {
				return err
			}
			res := events.ConfigResult{
				ResultType: events.ResultConfig,
				ConfigPath: path,
				Config:     conf.Defaults(),
			}
			if !c.EmitResult(res) {
				c.Printf("Created %s\n", path)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	return cmd
}

// initConfig writes the default settings to path. An existing file is
// kept unless force is set.
func initConfig(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return errors.Newf("config file %s already exists (use --force to overwrite)", path).
			Component("config").
			Category(errors.CategoryValidation).
			FileContext(path).
			Build()
	}
	return conf.SaveYAMLConfig(path, conf.Defaults())
}

// configPath returns the file settings were read from: --config, the first
// existing default location, or where init would create one.
func configPath(c *cli.Context) string {
	if c.ConfigFile != "" {
		return c.ConfigFile
	}
	if path, err := conf.FindConfigFile(); err == nil {
		return path
	}
	return conf.DefaultConfigFile()
}
