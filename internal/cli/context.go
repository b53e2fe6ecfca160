// Package cli holds the state shared by the birda commands: effective
// settings, output mode and the writers events and results go to.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tphakala/birda/internal/buildinfo"
	"github.com/tphakala/birda/internal/conf"
	"github.com/tphakala/birda/internal/errors"
	"github.com/tphakala/birda/internal/events"
	"github.com/tphakala/birda/internal/logger"
	"github.com/tphakala/birda/internal/reporter"
)

// Context carries the application state from the root command to the
// subcommands.
type Context struct {
	Settings   *conf.Settings
	ConfigFile string // --config, empty searches the default paths
	Verbose    int
	Quiet      bool
	NoProgress bool
	Build      *buildinfo.Context

	Stdout io.Writer
	Stderr io.Writer

	bindings []conf.FlagBinding
	reporter reporter.Reporter
	logger   *logger.CentralLogger
}

// NewContext creates a context writing to the process streams, with
// built-in default settings until Load runs.
func NewContext() *Context {
	return &Context{
		Settings: conf.Defaults(),
		Build:    buildinfo.Current(),
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
	}
}

// Bind registers flag as the command line source of a config key.
func (c *Context) Bind(key string, flag *pflag.Flag) {
	c.bindings = append(c.bindings, conf.FlagBinding{Key: key, Flag: flag})
}

// BindFlag is Bind for a flag looked up by name in flags.
func (c *Context) BindFlag(key string, flags *pflag.FlagSet, name string) {
	if f := flags.Lookup(name); f != nil {
		c.Bind(key, f)
	}
}

// Load reads the settings for cmd: defaults, config file, environment and
// the flags registered with Bind that belong to cmd.
func (c *Context) Load(cmd *cobra.Command) error {
	var active []conf.FlagBinding
	for _, b := range c.bindings {
		if cmd.Flags().Lookup(b.Flag.Name) == b.Flag {
			active = append(active, b)
		}
	}
	settings, err := conf.Load(c.ConfigFile, active...)
	if err != nil {
		return err
	}
	c.Settings = settings
	c.reporter = nil
	return nil
}

// SetupLogging installs the global logger. -v and -q override the
// configured console level.
func (c *Context) SetupLogging() error {
	cfg := c.Settings.Logging
	if c.Verbose > 0 || c.Quiet {
		level := logger.LevelFromVerbosity(c.Verbose, c.Quiet)
		if cfg.Console == nil {
			cfg.Console = &logger.ConsoleOutput{Enabled: true}
		} else {
			console := *cfg.Console
			cfg.Console = &console
		}
		cfg.Console.Level = level
	}
	cl, err := logger.NewCentralLogger(&cfg)
	if err != nil {
		return errors.New(fmt.Errorf("failed to initialize logging: %w", err)).
			Category(errors.CategoryConfiguration).
			Build()
	}
	logger.SetGlobal(cl)
	c.logger = cl
	return nil
}

// Close flushes and closes the logger.
func (c *Context) Close() {
	if c.logger != nil {
		_ = c.logger.Flush()
		_ = c.logger.Close()
	}
}

// OutputMode returns the effective output mode.
func (c *Context) OutputMode() string {
	if c.Settings == nil || c.Settings.Output.Mode == "" {
		return conf.OutputModeHuman
	}
	return c.Settings.Output.Mode
}

// Structured reports whether output is JSON or NDJSON.
func (c *Context) Structured() bool {
	mode := c.OutputMode()
	return mode == conf.OutputModeJSON || mode == conf.OutputModeNDJSON
}

// ForceNDJSON switches output to NDJSON, used by --stdout.
func (c *Context) ForceNDJSON() {
	c.Settings.Output.Mode = conf.OutputModeNDJSON
	c.reporter = nil
}

// Reporter returns the reporter for the output mode. Structured modes
// write envelopes to stdout; human mode writes to stderr.
func (c *Context) Reporter() reporter.Reporter {
	if c.reporter != nil {
		return c.reporter
	}
	switch c.OutputMode() {
	case conf.OutputModeJSON:
		c.reporter = reporter.NewJSON(c.Stdout, reporter.ModeJSON)
	case conf.OutputModeNDJSON:
		c.reporter = reporter.NewJSON(c.Stdout, reporter.ModeNDJSON)
	default:
		c.reporter = reporter.NewConsole(c.Stderr, !c.Quiet && !c.NoProgress)
	}
	return c.reporter
}

// EmitResult sends a command result in structured modes. It reports
// whether the result was emitted; in human mode the caller prints instead.
func (c *Context) EmitResult(payload any) bool {
	if !c.Structured() {
		return false
	}
	rep := c.Reporter()
	rep.Result(payload)
	rep.Flush()
	return true
}

// Printf writes human-readable output to stdout.
func (c *Context) Printf(format string, args ...any) {
	_, _ = fmt.Fprintf(c.Stdout, format, args...)
}

// ReportError presents a fatal command error: an error event in structured
// modes, an "error:" line on stderr otherwise.
func (c *Context) ReportError(err error) {
	if err == nil {
		return
	}
	if c.Structured() {
		rep := c.Reporter()
		rep.Error(events.ErrorPayload{
			Code:       errors.Code(err),
			Severity:   events.SeverityFatal,
			Message:    err.Error(),
			Suggestion: errors.Suggestion(err),
		})
		rep.Flush()
		return
	}
	_, _ = fmt.Fprintf(c.Stderr, "error: %s\n", err)
	if hint := errors.Suggestion(err); hint != "" {
		_, _ = fmt.Fprintf(c.Stderr, "hint: %s\n", hint)
	}
}
