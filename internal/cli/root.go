// Package cli implements netpulse-watch, a command-line subscriber and
// control client for a running netpulse server.
package cli

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nerrad567/netpulse/internal/infrastructure/config"
	"github.com/nerrad567/netpulse/internal/infrastructure/logging"
)

// globals are flags shared by every subcommand.
type globals struct {
	cfgPath  string
	logLevel string
	stdout   io.Writer
	stderr   io.Writer
}

// Main runs the CLI against os.Args and exits non-zero on failure.
func Main() {
	if err := NewRootCommand(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

// NewRootCommand builds the command tree writing to stdout and stderr.
func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	g := &globals{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "netpulse-watch",
		Short:         "Watch and control a netpulse telemetry server",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&g.cfgPath, "config", "", "config file (yaml); client defaults apply when empty")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "warn", "log level for connection events")

	root.AddCommand(watchCmd(g))
	root.AddCommand(healthCmd(g))
	root.AddCommand(broadcastCmd(g))
	root.AddCommand(statusCmd(g))
	return root
}

// config returns the loaded config file, or defaults when none was given.
func (g *globals) config() (*config.Config, error) {
	if g.cfgPath == "" {
		return config.Default(), nil
	}
	return config.Load(g.cfgPath)
}

func (g *globals) logger() *logging.Logger {
	return logging.NewWithWriter(g.stderr, config.LoggingConfig{Level: g.logLevel, Format: "text"}, "cli")
}
