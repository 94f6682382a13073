// Package main is the entry point for the navtags CLI.
//
// navtags can be run either as a library (SDK) or as a standalone binary
// with YAML configuration. This CLI provides the standalone binary approach.
//
// Usage:
//
//	navtags serve -c config.yaml    # Start the dashboard
//	navtags watch -c config.yaml    # Terminal viewer
//	navtags tags -c config.yaml     # Fetch tags once
//	navtags validate -c config.yaml # Validate configuration
//	navtags version                 # Show version info
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "navtags",
	Short: "Live notification badges for a business application",
	Long: `navtags shows the notification tags (unread mail, pending tasks) of a
business application on a live dashboard.

The tag service is polled only while someone is using the dashboard: after
two polling intervals without input, polling pauses until the next mouse,
keyboard, wheel or touch event.

Quick start:
  1. Create a config file (navtags.yaml)
  2. Run: navtags serve -c navtags.yaml
  3. Open http://localhost:8080 in your browser

Example config:
  port: 8080
  polling_interval: 10s
  source:
    url: https://erp.example.com/ws/tags
    decoder: default`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this navtags binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "navtags %s\n", version)
		_, _ = fmt.Fprintf(out, "  commit: %s\n", commit)
		_, _ = fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("debug", false, "log fetch results and poller transitions")
	rootCmd.AddCommand(versionCmd)
}

// newLogger creates a JSON logger for CLI use.
func newLogger(cmd *cobra.Command, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
