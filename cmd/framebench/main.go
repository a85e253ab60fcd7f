// Command framebench measures how fast frames can be captured, handed to an
// isolated processing context and reduced to an average colour.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/e7canasta/framebench/internal/config"
)

// Version information
const version = "v0.1.0"

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// cli carries the loaded configuration from the root pre-run to the
// subcommands.
type cli struct {
	configPath string
	logLevel   string
	logFormat  string

	cfg    *config.Config
	logger *slog.Logger
}

func buildRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "framebench",
		Short:         "Capture-to-processing frame pipeline benchmark",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&c.configPath, "config", "", "Path to configuration file (.yaml, .toml, .json)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "Log level: debug|info|warn|error (overrides config)")
	root.PersistentFlags().StringVar(&c.logFormat, "log-format", "", "Log format: text|json (overrides config)")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return c.load()
	}

	root.AddCommand(
		newRunCmd(c),
		newWarmupCmd(c),
		newCaptureCmd(c),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "framebench %s\n", version)
			},
		},
	)
	return root
}

func (c *cli) load() error {
	var err error
	if c.configPath != "" {
		c.cfg, err = config.Load(c.configPath)
		if err != nil {
			return err
		}
	} else {
		c.cfg = config.Default()
	}

	if c.logLevel != "" {
		c.cfg.Log.Level = c.logLevel
	}
	if c.logFormat != "" {
		c.cfg.Log.Format = c.logFormat
	}
	if err := config.Validate(c.cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// stdout carries the status line and reports; logs go to stderr.
	c.logger = newLogger(os.Stderr, c.cfg.Log)
	slog.SetDefault(c.logger)
	return nil
}

func newLogger(w io.Writer, lc config.LogConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(lc.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if lc.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
